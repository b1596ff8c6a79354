package usecase

import (
	"context"
	"sync"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
	"github.com/kirillkom/docqa-retrieval/internal/core/ports"
)

type embedderFake struct {
	mu        sync.Mutex
	vectors   map[string][]float32
	err       error
	truncate  int
	calls     int
	lastTexts []string
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastTexts = append([]string(nil), texts...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		if f.truncate > 0 && i >= f.truncate {
			break
		}
		if v, ok := f.vectors[text]; ok {
			out = append(out, v)
			continue
		}
		out = append(out, []float32{1, 0})
	}
	return out, nil
}

type vectorSearcherFake struct {
	hits   []domain.VectorHit
	err    error
	calls  int
	tenant string
	k      int
}

func (f *vectorSearcherFake) SearchVectors(_ context.Context, tenantID string, _ []float32, k int) ([]domain.VectorHit, error) {
	f.calls++
	f.tenant = tenantID
	f.k = k
	return f.hits, f.err
}

type lexicalSearcherFake struct {
	hits  []domain.LexicalHit
	err   error
	calls int
	kbID  string
	k     int
}

func (f *lexicalSearcherFake) SearchLexical(_ context.Context, _ string, _ string, k int, kbID string) ([]domain.LexicalHit, error) {
	f.calls++
	f.kbID = kbID
	f.k = k
	return f.hits, f.err
}

type chunkStoreFake struct {
	chunks map[string]string
}

func (f *chunkStoreFake) GetChunkText(_ context.Context, documentID string, chunkIndex int, _ int) (string, bool, error) {
	text, ok := f.chunks[domain.ChunkKey(documentID, chunkIndex)]
	return text, ok, nil
}

type documentMetaFake struct {
	metas map[string]domain.DocumentMeta
	err   error
}

func (f *documentMetaFake) GetDocumentMeta(_ context.Context, documentID, tenantID string) (*domain.DocumentMeta, error) {
	if f.err != nil {
		return nil, f.err
	}
	meta, ok := f.metas[documentID]
	if !ok || meta.TenantID != tenantID {
		return nil, nil
	}
	return &meta, nil
}

type rerankerFake struct {
	out   []domain.Candidate
	err   error
	input []domain.Candidate
	topN  int
}

func (f *rerankerFake) Rerank(_ context.Context, _ string, candidates []domain.Candidate, topN int) ([]domain.Candidate, error) {
	f.input = append([]domain.Candidate(nil), candidates...)
	f.topN = topN
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	if topN < len(candidates) {
		candidates = candidates[:topN]
	}
	return candidates, nil
}

type rerankerSetFake struct {
	reranker  *rerankerFake
	requested domain.RerankStrategy
}

func (f *rerankerSetFake) For(strategy domain.RerankStrategy) ports.Reranker {
	f.requested = strategy
	return f.reranker
}

type observerFake struct {
	mu     sync.Mutex
	events []domain.StageEvent
}

func (f *observerFake) ObserveStage(_ context.Context, event domain.StageEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *observerFake) stage(name string) (domain.StageEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.Stage == name {
			return e, true
		}
	}
	return domain.StageEvent{}, false
}
