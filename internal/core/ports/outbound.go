package ports

import (
	"context"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
)

// Embedder builds vectors for query and chunk text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorSearcher performs tenant-scoped nearest-neighbour search.
type VectorSearcher interface {
	SearchVectors(ctx context.Context, tenantID string, queryVector []float32, k int) ([]domain.VectorHit, error)
}

// LexicalSearcher performs tenant-scoped full-text search with OR semantics.
type LexicalSearcher interface {
	SearchLexical(ctx context.Context, tenantID, query string, k int, knowledgeBaseID string) ([]domain.LexicalHit, error)
}

// EntityCandidateSource returns chunks likely to mention an entity.
type EntityCandidateSource interface {
	FindEntityCandidates(ctx context.Context, tenantID, entityName string, limit int, knowledgeBaseID string) ([]domain.ChunkText, error)
}

// ChunkStore reads stored chunk text. found is false when the chunk does not exist.
// maxChars <= 0 disables truncation.
type ChunkStore interface {
	GetChunkText(ctx context.Context, documentID string, chunkIndex int, maxChars int) (text string, found bool, err error)
}

// DocumentMetaStore returns nil metadata when the document is unknown to the tenant.
type DocumentMetaStore interface {
	GetDocumentMeta(ctx context.Context, documentID, tenantID string) (*domain.DocumentMeta, error)
}

// CrossEncoder is an external relevance scoring service.
type CrossEncoder interface {
	Configured() bool
	RerankExternal(ctx context.Context, query string, documents []string, topN int) ([]domain.RerankScore, error)
}

// ChatCompleter runs OpenAI-compatible chat completions.
type ChatCompleter interface {
	ChatComplete(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)
}

// EmbeddingCache memoizes embeddings per tenant and exact text.
type EmbeddingCache interface {
	Get(tenantID, text string) ([]float32, bool)
	Add(tenantID, text string, vector []float32)
}

// Reranker reorders candidates and returns at most topN of them.
// Empty input yields empty output without calling any collaborator.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []domain.Candidate, topN int) ([]domain.Candidate, error)
}

// RerankerSet resolves the reranker for a configured strategy.
type RerankerSet interface {
	For(strategy domain.RerankStrategy) Reranker
}

// RetrievalObserver receives per-stage telemetry. Implementations must not block.
type RetrievalObserver interface {
	ObserveStage(ctx context.Context, event domain.StageEvent)
}
