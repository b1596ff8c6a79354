package usecase

import (
	"context"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
	"github.com/kirillkom/docqa-retrieval/internal/core/ports"
	"github.com/kirillkom/docqa-retrieval/internal/core/rerank"
)

// embeddingBatch collects the texts one request needs embedded and resolves
// them with a single Embed call, consulting the tenant cache first.
// It lives for one retrieve call only.
type embeddingBatch struct {
	tenantID string
	embedder ports.Embedder
	cache    ports.EmbeddingCache

	pending []string
	queued  map[string]struct{}
	vectors map[string][]float32
}

func newEmbeddingBatch(tenantID string, embedder ports.Embedder, cache ports.EmbeddingCache) *embeddingBatch {
	return &embeddingBatch{
		tenantID: tenantID,
		embedder: embedder,
		cache:    cache,
		queued:   make(map[string]struct{}),
		vectors:  make(map[string][]float32),
	}
}

func (b *embeddingBatch) add(text string) {
	if text == "" {
		return
	}
	if _, ok := b.vectors[text]; ok {
		return
	}
	if _, ok := b.queued[text]; ok {
		return
	}
	if b.cache != nil {
		if vec, ok := b.cache.Get(b.tenantID, text); ok {
			b.vectors[text] = vec
			return
		}
	}
	b.queued[text] = struct{}{}
	b.pending = append(b.pending, text)
}

// flush embeds every pending text. Vectors are matched to texts by index;
// a short response leaves the trailing texts without a vector.
func (b *embeddingBatch) flush(ctx context.Context) error {
	if len(b.pending) == 0 || b.embedder == nil {
		return nil
	}
	pending := b.pending
	b.pending = nil
	b.queued = make(map[string]struct{})

	vectors, err := b.embedder.Embed(ctx, pending)
	if err != nil {
		return err
	}
	for i, text := range pending {
		if i >= len(vectors) || len(vectors[i]) == 0 {
			continue
		}
		b.vectors[text] = vectors[i]
		if b.cache != nil {
			b.cache.Add(b.tenantID, text, vectors[i])
		}
	}
	return nil
}

func (b *embeddingBatch) vector(text string) ([]float32, bool) {
	vec, ok := b.vectors[text]
	return vec, ok
}

// selectMMR greedily picks take candidates maximizing
// lambda*rel(c) - (1-lambda)*max sim(c, selected).
// rel is cosine to the query. When the query or every candidate lacks a
// vector, rel is the fused score scaled to the best one instead; a candidate
// without a vector among embedded ones gets rel 0 so scales never mix.
// Ties keep fused order.
func selectMMR(query []float32, candidates []domain.Candidate, vectorOf func(domain.Candidate) ([]float32, bool), take int, lambda float64) []domain.Candidate {
	if len(candidates) == 0 {
		return []domain.Candidate{}
	}
	if take <= 0 || take > len(candidates) {
		take = len(candidates)
	}

	maxFused := 0.0
	for _, c := range candidates {
		if c.FusedScore > maxFused {
			maxFused = c.FusedScore
		}
	}

	vectors := make([][]float32, len(candidates))
	embedded := false
	for i, c := range candidates {
		if vec, ok := vectorOf(c); ok {
			vectors[i] = vec
			embedded = true
		}
	}
	useCosine := embedded && len(query) > 0

	relevance := make([]float64, len(candidates))
	for i, c := range candidates {
		switch {
		case useCosine && vectors[i] != nil:
			relevance[i] = rerank.Cosine(query, vectors[i])
		case useCosine:
			relevance[i] = 0
		case maxFused > 0:
			relevance[i] = c.FusedScore / maxFused
		}
	}

	selected := make([]int, 0, take)
	used := make([]bool, len(candidates))
	for len(selected) < take {
		best := -1
		bestScore := 0.0
		for i := range candidates {
			if used[i] {
				continue
			}
			redundancy := 0.0
			if vectors[i] != nil {
				seen := false
				for _, j := range selected {
					if vectors[j] == nil {
						continue
					}
					if sim := rerank.Cosine(vectors[i], vectors[j]); !seen || sim > redundancy {
						redundancy = sim
						seen = true
					}
				}
			}
			score := lambda*relevance[i] - (1-lambda)*redundancy
			if best < 0 || score > bestScore {
				best = i
				bestScore = score
			}
		}
		used[best] = true
		selected = append(selected, best)
	}

	out := make([]domain.Candidate, len(selected))
	for i, idx := range selected {
		out[i] = candidates[idx]
	}
	return out
}
