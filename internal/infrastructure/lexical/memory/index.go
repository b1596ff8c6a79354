// Package memory is an in-process document store used when no database is
// configured. It serves lexical search, entity widening, chunk text and
// document metadata from the same tenant-partitioned data.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
	"github.com/kirillkom/docqa-retrieval/internal/core/lexical"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

type chunk struct {
	domain.ChunkText
	termFreq map[string]float64
	length   float64
}

type document struct {
	meta   domain.DocumentMeta
	chunks []*chunk
}

type Index struct {
	mu   sync.RWMutex
	docs map[string]*document
}

func NewIndex() *Index {
	return &Index{docs: make(map[string]*document)}
}

// Put stores a document and its chunks, replacing any previous version.
// Chunk indexes follow slice order.
func (i *Index) Put(meta domain.DocumentMeta, chunks []string) {
	doc := &document{meta: meta, chunks: make([]*chunk, 0, len(chunks))}
	for idx, text := range chunks {
		tokens := lexical.SplitAlphaNumLower(text)
		tf := make(map[string]float64, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		doc.chunks = append(doc.chunks, &chunk{
			ChunkText: domain.ChunkText{DocumentID: meta.ID, ChunkIndex: idx, Text: text},
			termFreq:  tf,
			length:    float64(len(tokens)),
		})
	}

	i.mu.Lock()
	i.docs[meta.ID] = doc
	i.mu.Unlock()
}

func (i *Index) tenantChunks(tenantID, knowledgeBaseID string) []*chunk {
	var out []*chunk
	for _, doc := range i.docs {
		if doc.meta.TenantID != tenantID {
			continue
		}
		if knowledgeBaseID != "" && doc.meta.KnowledgeBaseID != knowledgeBaseID {
			continue
		}
		out = append(out, doc.chunks...)
	}
	return out
}

// SearchLexical ranks tenant chunks with BM25. Any single query term is enough
// for a chunk to match.
func (i *Index) SearchLexical(ctx context.Context, tenantID, query string, k int, knowledgeBaseID string) ([]domain.LexicalHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := lexical.Terms(query)
	if len(terms) == 0 || k <= 0 || tenantID == "" {
		return []domain.LexicalHit{}, nil
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	corpus := i.tenantChunks(tenantID, knowledgeBaseID)
	if len(corpus) == 0 {
		return []domain.LexicalHit{}, nil
	}

	var totalLen float64
	df := make(map[string]float64, len(terms))
	for _, c := range corpus {
		totalLen += c.length
		for _, term := range terms {
			if c.termFreq[term] > 0 {
				df[term]++
			}
		}
	}
	n := float64(len(corpus))
	avgLen := totalLen / n
	if avgLen == 0 {
		avgLen = 1
	}

	hits := make([]domain.LexicalHit, 0, len(corpus))
	for _, c := range corpus {
		var score float64
		for _, term := range terms {
			tf := c.termFreq[term]
			if tf == 0 {
				continue
			}
			idf := math.Log(1 + (n-df[term]+0.5)/(df[term]+0.5))
			norm := tf + bm25K1*(1-bm25B+bm25B*c.length/avgLen)
			score += idf * tf * (bm25K1 + 1) / norm
		}
		if score <= 0 {
			continue
		}
		hits = append(hits, domain.LexicalHit{
			DocumentID: c.DocumentID,
			ChunkIndex: c.ChunkIndex,
			Text:       c.Text,
			Score:      domain.SafeScore(score, 0),
		})
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		if hits[a].DocumentID != hits[b].DocumentID {
			return hits[a].DocumentID < hits[b].DocumentID
		}
		return hits[a].ChunkIndex < hits[b].ChunkIndex
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// FindEntityCandidates applies the same phrase, pair and trigram filter as the
// SQL store and keeps the strongest matches: phrase, then pair, then single
// term, then trigram only, each tier by similarity to the name.
func (i *Index) FindEntityCandidates(ctx context.Context, tenantID, entityName string, limit int, knowledgeBaseID string) ([]domain.ChunkText, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filter := lexical.BuildEntityFilter(entityName)
	if filter.Empty() || limit <= 0 {
		return []domain.ChunkText{}, nil
	}

	i.mu.RLock()
	corpus := i.tenantChunks(tenantID, knowledgeBaseID)
	i.mu.RUnlock()

	type graded struct {
		chunk      domain.ChunkText
		tier       int
		similarity float64
	}
	matched := make([]graded, 0, len(corpus))
	for _, c := range corpus {
		tier, sim := filter.Strength(c.Text)
		if tier == lexical.MatchNone {
			continue
		}
		matched = append(matched, graded{chunk: c.ChunkText, tier: tier, similarity: sim})
	}

	sort.Slice(matched, func(a, b int) bool {
		x, y := matched[a], matched[b]
		switch {
		case x.tier != y.tier:
			return x.tier > y.tier
		case x.similarity != y.similarity:
			return x.similarity > y.similarity
		case x.chunk.DocumentID != y.chunk.DocumentID:
			return x.chunk.DocumentID < y.chunk.DocumentID
		default:
			return x.chunk.ChunkIndex < y.chunk.ChunkIndex
		}
	})

	if len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]domain.ChunkText, 0, len(matched))
	for _, m := range matched {
		out = append(out, m.chunk)
	}
	return out, nil
}

func (i *Index) GetChunkText(ctx context.Context, documentID string, chunkIndex int, maxChars int) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	i.mu.RLock()
	defer i.mu.RUnlock()

	doc, ok := i.docs[documentID]
	if !ok || chunkIndex < 0 || chunkIndex >= len(doc.chunks) {
		return "", false, nil
	}
	text := doc.chunks[chunkIndex].Text
	if maxChars > 0 {
		if r := []rune(text); len(r) > maxChars {
			text = string(r[:maxChars])
		}
	}
	return text, true, nil
}

func (i *Index) GetDocumentMeta(ctx context.Context, documentID, tenantID string) (*domain.DocumentMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i.mu.RLock()
	defer i.mu.RUnlock()

	doc, ok := i.docs[documentID]
	if !ok || doc.meta.TenantID != tenantID {
		return nil, nil
	}
	meta := doc.meta
	return &meta, nil
}
