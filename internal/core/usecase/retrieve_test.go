package usecase

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
	"github.com/kirillkom/docqa-retrieval/internal/core/rerank"
)

type retrieveFixture struct {
	embedder  *embedderFake
	vectors   *vectorSearcherFake
	lexical   *lexicalSearcherFake
	chunks    *chunkStoreFake
	documents *documentMetaFake
	reranker  *rerankerFake
	observer  *observerFake
}

func newRetrieveFixture() *retrieveFixture {
	return &retrieveFixture{
		embedder: &embedderFake{},
		vectors:  &vectorSearcherFake{},
		lexical:  &lexicalSearcherFake{},
		chunks:   &chunkStoreFake{chunks: map[string]string{}},
		documents: &documentMetaFake{metas: map[string]domain.DocumentMeta{
			"doc1": {ID: "doc1", TenantID: "tenant-a", Title: "Guida", URL: "https://example.test/guida"},
			"doc2": {ID: "doc2", TenantID: "tenant-a", Title: "Orari"},
			"doc3": {ID: "doc3", TenantID: "tenant-b", Title: "Altro tenant"},
		}},
		reranker: &rerankerFake{},
		observer: &observerFake{},
	}
}

func (f *retrieveFixture) useCase() *RetrievalUseCase {
	return NewRetrievalUseCase(RetrievalDeps{
		Embedder:  f.embedder,
		Vectors:   f.vectors,
		Lexical:   f.lexical,
		Chunks:    f.chunks,
		Documents: f.documents,
		Rerankers: &rerankerSetFake{reranker: f.reranker},
		Observer:  f.observer,
	})
}

func request(query string, cfg domain.RetrievalConfig, limit int) domain.RetrieveRequest {
	return domain.RetrieveRequest{
		TenantID:       "tenant-a",
		Query:          query,
		QueryEmbedding: []float32{1, 0},
		Config:         cfg,
		Limit:          limit,
	}
}

func TestRetrieveEmptyQueryMakesNoCalls(t *testing.T) {
	f := newRetrieveFixture()
	result, err := f.useCase().Retrieve(context.Background(), request("   ", domain.RetrievalConfig{}, 5))
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(result.Citations) != 0 || result.Confidence != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
	if f.vectors.calls != 0 || f.lexical.calls != 0 || f.embedder.calls != 0 {
		t.Fatalf("expected no collaborator calls")
	}
}

func TestRetrieveRequiresTenant(t *testing.T) {
	f := newRetrieveFixture()
	req := request("orari", domain.RetrievalConfig{}, 5)
	req.TenantID = ""
	result, err := f.useCase().Retrieve(context.Background(), req)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if result.Citations == nil {
		t.Fatalf("expected well-formed empty citations")
	}
}

func TestRetrieveEndToEndSingleChunk(t *testing.T) {
	f := newRetrieveFixture()
	f.vectors.hits = []domain.VectorHit{{DocumentID: "doc1", ChunkIndex: 0, Text: "orari biblioteca", Score: 0.9}}
	f.lexical.hits = []domain.LexicalHit{{DocumentID: "doc1", ChunkIndex: 0, Text: "orari biblioteca", Score: 3.1}}
	f.chunks.chunks[domain.ChunkKey("doc1", 1)] = "lunedì 9:00-13:00"

	cfg := domain.RetrievalConfig{RRFK: 60, MMRTake: 1, NeighborRadius: 1, MMRLambda: 0.7}
	result, err := f.useCase().Retrieve(context.Background(), request("orari", cfg, 5))
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	if len(f.reranker.input) != 1 {
		t.Fatalf("expected one candidate after MMR, got %d", len(f.reranker.input))
	}
	want := 1.0/61 + 1.0/61
	if got := f.reranker.input[0].FusedScore; math.Abs(got-want) > 1e-12 {
		t.Fatalf("expected fused score %v, got %v", want, got)
	}
	if f.reranker.topN != 5 {
		t.Fatalf("expected reranker topN=limit, got %d", f.reranker.topN)
	}

	if len(result.Citations) != 1 {
		t.Fatalf("expected one citation, got %+v", result.Citations)
	}
	c := result.Citations[0]
	if c.DocumentID != "doc1" || c.ChunkIndex != 0 || c.Title != "Guida" {
		t.Fatalf("unexpected citation %+v", c)
	}
	if c.Snippet != "orari biblioteca\nlunedì 9:00-13:00" {
		t.Fatalf("expected neighbour-expanded snippet, got %q", c.Snippet)
	}
	if result.Diagnostics.Fused != 1 || result.Diagnostics.VectorHits != 1 || result.Diagnostics.LexicalHits != 1 {
		t.Fatalf("unexpected diagnostics %+v", result.Diagnostics)
	}
	done, ok := f.observer.stage(domain.StageComplete)
	if !ok || done.Count != 1 || done.Confidence != result.Confidence {
		t.Fatalf("expected complete event with confidence, got %+v", done)
	}
}

func TestRetrieveVectorFailureDegradesToLexical(t *testing.T) {
	f := newRetrieveFixture()
	f.vectors.err = errors.New("qdrant down")
	f.lexical.hits = []domain.LexicalHit{{DocumentID: "doc2", ChunkIndex: 3, Text: "orari sportello"}}

	result, err := f.useCase().Retrieve(context.Background(), request("orari", domain.RetrievalConfig{}, 5))
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(result.Citations) != 1 || result.Citations[0].DocumentID != "doc2" {
		t.Fatalf("expected lexical-only citation, got %+v", result.Citations)
	}
	event, ok := f.observer.stage(domain.StageVectorSearch)
	if !ok || event.Error == "" {
		t.Fatalf("expected vector failure to be observed, got %+v", event)
	}
}

func TestRetrieveBothChannelsFailReturnsEmpty(t *testing.T) {
	f := newRetrieveFixture()
	f.vectors.err = errors.New("down")
	f.lexical.err = errors.New("down")

	result, err := f.useCase().Retrieve(context.Background(), request("orari", domain.RetrievalConfig{}, 5))
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(result.Citations) != 0 || result.Confidence != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestRetrieveSkipsVectorChannelWithoutEmbedding(t *testing.T) {
	f := newRetrieveFixture()
	f.embedder.err = errors.New("no model")
	f.lexical.hits = []domain.LexicalHit{{DocumentID: "doc1", ChunkIndex: 0, Text: "testo"}}

	req := request("orari", domain.RetrievalConfig{KnowledgeBaseID: "kb-1", BM25TopK: 7}, 5)
	req.QueryEmbedding = nil
	if _, err := f.useCase().Retrieve(context.Background(), req); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if f.vectors.calls != 0 {
		t.Fatalf("expected vector channel skipped without query embedding")
	}
	if f.lexical.kbID != "kb-1" || f.lexical.k != 7 {
		t.Fatalf("expected kb scope and k forwarded, got kb=%q k=%d", f.lexical.kbID, f.lexical.k)
	}
}

func TestRetrieveRerankFailureFallsBackToMMROrder(t *testing.T) {
	f := newRetrieveFixture()
	f.reranker.err = errors.New("judge timeout")
	f.lexical.hits = []domain.LexicalHit{
		{DocumentID: "doc1", ChunkIndex: 0, Text: "uno"},
		{DocumentID: "doc2", ChunkIndex: 0, Text: "due"},
	}

	result, err := f.useCase().Retrieve(context.Background(), request("orari", domain.RetrievalConfig{MMRLambda: 1}, 5))
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(result.Citations) != 2 || result.Citations[0].DocumentID != "doc1" {
		t.Fatalf("expected MMR order preserved, got %+v", result.Citations)
	}
	event, ok := f.observer.stage(domain.StageRerank)
	if !ok || !event.Fallback {
		t.Fatalf("expected rerank fallback to be observed, got %+v", event)
	}
}

func TestRetrieveEmptyRerankOutputFallsBack(t *testing.T) {
	f := newRetrieveFixture()
	f.reranker.out = []domain.Candidate{}
	f.lexical.hits = []domain.LexicalHit{{DocumentID: "doc1", ChunkIndex: 0, Text: "uno"}}

	result, err := f.useCase().Retrieve(context.Background(), request("orari", domain.RetrievalConfig{}, 5))
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(result.Citations) != 1 {
		t.Fatalf("expected fallback citation, got %+v", result.Citations)
	}
}

func TestRetrieveDedupesByDocumentAndDropsForeignDocuments(t *testing.T) {
	f := newRetrieveFixture()
	f.lexical.hits = []domain.LexicalHit{
		{DocumentID: "doc1", ChunkIndex: 0, Text: "a"},
		{DocumentID: "doc1", ChunkIndex: 5, Text: "b"},
		{DocumentID: "doc3", ChunkIndex: 0, Text: "c"},
		{DocumentID: "doc2", ChunkIndex: 2, Text: "d"},
	}

	cfg := domain.RetrievalConfig{MMRLambda: 1, NeighborRadius: 0}
	result, err := f.useCase().Retrieve(context.Background(), request("q", cfg, 10))
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	ids := make([]string, 0, len(result.Citations))
	for _, c := range result.Citations {
		ids = append(ids, c.DocumentID)
	}
	if strings.Join(ids, ",") != "doc1,doc2" {
		t.Fatalf("expected one citation per tenant document, got %v", ids)
	}

	cfg.MultiChunkPerDocument = true
	result, err = f.useCase().Retrieve(context.Background(), request("q", cfg, 10))
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(result.Citations) != 3 {
		t.Fatalf("expected two chunks of doc1 in multi-chunk mode, got %+v", result.Citations)
	}
}

func TestRetrieveFillsMissingTextFromChunkStore(t *testing.T) {
	f := newRetrieveFixture()
	f.vectors.hits = []domain.VectorHit{{DocumentID: "doc1", ChunkIndex: 2, Score: 0.5}}
	f.chunks.chunks[domain.ChunkKey("doc1", 2)] = "testo recuperato"

	result, err := f.useCase().Retrieve(context.Background(), request("q", domain.RetrievalConfig{NeighborRadius: 0}, 5))
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(result.Citations) != 1 || result.Citations[0].Snippet != "testo recuperato" {
		t.Fatalf("expected text loaded from chunk store, got %+v", result.Citations)
	}
}

func TestRetrieveWithLexicalRerankerConfidence(t *testing.T) {
	f := newRetrieveFixture()
	f.lexical.hits = []domain.LexicalHit{{DocumentID: "doc1", ChunkIndex: 0, Text: "orari della biblioteca comunale"}}
	uc := NewRetrievalUseCase(RetrievalDeps{
		Lexical:   f.lexical,
		Chunks:    f.chunks,
		Documents: f.documents,
		Rerankers: rerank.NewSet(rerank.Deps{}),
	})

	result, err := uc.Retrieve(context.Background(), request("orari biblioteca", domain.RetrievalConfig{}, 3))
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if result.Confidence <= 0 || result.Confidence > 1 {
		t.Fatalf("expected confidence in (0,1], got %v", result.Confidence)
	}
	if result.Confidence != result.Citations[0].Score {
		t.Fatalf("expected confidence from top score, got %v vs %v", result.Confidence, result.Citations[0].Score)
	}
}

func TestConfidenceOfSquashesJudgeScale(t *testing.T) {
	cases := []struct {
		scores []float64
		want   float64
	}{
		{nil, 0},
		{[]float64{0.42}, 0.42},
		{[]float64{85, 40}, 0.85},
		{[]float64{math.NaN()}, 0},
		{[]float64{-3}, 0},
	}
	for _, tc := range cases {
		candidates := make([]domain.Candidate, len(tc.scores))
		for i, s := range tc.scores {
			candidates[i].FinalScore = s
		}
		if got := confidenceOf(candidates); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("confidenceOf(%v) = %v, want %v", tc.scores, got, tc.want)
		}
	}
}

func TestRetrieveCancelledContextReturnsEmptyWithError(t *testing.T) {
	f := newRetrieveFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.vectors.err = context.Canceled
	f.lexical.err = context.Canceled

	result, err := f.useCase().Retrieve(ctx, request("orari", domain.RetrievalConfig{}, 5))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if result.Citations == nil || len(result.Citations) != 0 {
		t.Fatalf("expected empty citations, got %+v", result.Citations)
	}
}
