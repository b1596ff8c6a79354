package domain

import (
	"fmt"
	"strings"
	"time"
)

type RerankStrategy string

const (
	RerankLexical      RerankStrategy = "lexical"
	RerankEmbedding    RerankStrategy = "embedding"
	RerankCrossEncoder RerankStrategy = "cross_encoder"
	RerankLLMJudge     RerankStrategy = "llm_judge"
)

// ParseRerankStrategy accepts the canonical names plus a few aliases.
// Empty input selects the lexical strategy.
func ParseRerankStrategy(raw string) (RerankStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "lexical", "lexical_fast", "fast":
		return RerankLexical, nil
	case "embedding", "embeddings", "semantic":
		return RerankEmbedding, nil
	case "cross_encoder", "cross-encoder", "crossencoder", "external":
		return RerankCrossEncoder, nil
	case "llm_judge", "llm-judge", "llm":
		return RerankLLMJudge, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse rerank strategy", fmt.Errorf("unknown strategy %q", raw))
	}
}

const (
	DefaultVectorTopK           = 20
	DefaultBM25TopK             = 20
	DefaultMMRTake              = 8
	DefaultMMRLambda            = 0.7
	DefaultRRFK                 = 60
	DefaultNeighborRadius       = 1
	DefaultMaxChunksPerDocument = 2 // only used when MultiChunkPerDocument is set
	DefaultRetrieveLimit        = 5
)

// RetrievalConfig is the per-tenant tuning of a retrieve call.
type RetrievalConfig struct {
	VectorTopK            int            `json:"vector_top_k"`
	BM25TopK              int            `json:"bm25_top_k"`
	MMRTake               int            `json:"mmr_take"`
	MMRLambda             float64        `json:"mmr_lambda"`
	RRFK                  int            `json:"rrf_k"`
	NeighborRadius        int            `json:"neighbor_radius"`
	RerankStrategy        RerankStrategy `json:"rerank_strategy"`
	KnowledgeBaseID       string         `json:"knowledge_base_id,omitempty"`
	MultiChunkPerDocument bool           `json:"multi_chunk_per_document"`
	MaxChunksPerDocument  int            `json:"max_chunks_per_document"`
}

func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		VectorTopK:           DefaultVectorTopK,
		BM25TopK:             DefaultBM25TopK,
		MMRTake:              DefaultMMRTake,
		MMRLambda:            DefaultMMRLambda,
		RRFK:                 DefaultRRFK,
		NeighborRadius:       DefaultNeighborRadius,
		RerankStrategy:       RerankLexical,
		MaxChunksPerDocument: DefaultMaxChunksPerDocument,
	}
}

// Normalize fills zero or out-of-range fields with defaults.
func (c RetrievalConfig) Normalize() RetrievalConfig {
	if c.VectorTopK <= 0 {
		c.VectorTopK = DefaultVectorTopK
	}
	if c.BM25TopK <= 0 {
		c.BM25TopK = DefaultBM25TopK
	}
	if c.MMRTake <= 0 {
		c.MMRTake = DefaultMMRTake
	}
	lambda := SafeScore(c.MMRLambda, DefaultMMRLambda)
	if lambda < 0 || lambda > 1 {
		lambda = DefaultMMRLambda
	}
	c.MMRLambda = lambda
	if c.RRFK <= 0 {
		c.RRFK = DefaultRRFK
	}
	if c.NeighborRadius < 0 {
		c.NeighborRadius = 0
	}
	if c.RerankStrategy == "" {
		c.RerankStrategy = RerankLexical
	}
	if c.MaxChunksPerDocument <= 0 {
		c.MaxChunksPerDocument = DefaultMaxChunksPerDocument
	}
	return c
}

type VectorHit struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text,omitempty"`
	Score      float64 `json:"score"`
	Distance   float64 `json:"distance"`
}

type LexicalHit struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text,omitempty"`
	Score      float64 `json:"score"`
}

// Candidate is a chunk moving through fusion, diversification and reranking.
// LexicalRank is 1-based; zero means the chunk was not returned by the lexical channel.
type Candidate struct {
	DocumentID  string   `json:"document_id"`
	ChunkIndex  int      `json:"chunk_index"`
	Text        string   `json:"text"`
	VectorScore *float64 `json:"vector_score,omitempty"`
	LexicalRank int      `json:"lexical_rank,omitempty"`
	FusedScore  float64  `json:"fused_score"`
	FinalScore  float64  `json:"final_score"`
}

func (c Candidate) Key() string {
	return ChunkKey(c.DocumentID, c.ChunkIndex)
}

func ChunkKey(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s:%d", documentID, chunkIndex)
}

type Citation struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Title      string  `json:"title"`
	URL        string  `json:"url,omitempty"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
}

type RetrieveRequest struct {
	TenantID       string          `json:"tenant_id"`
	Query          string          `json:"query"`
	QueryEmbedding []float32       `json:"query_embedding,omitempty"`
	Config         RetrievalConfig `json:"config"`
	Limit          int             `json:"limit"`
}

// RetrievalStats counts what each stage produced. It never carries failure reasons.
type RetrievalStats struct {
	VectorHits     int            `json:"vector_hits"`
	LexicalHits    int            `json:"lexical_hits"`
	Fused          int            `json:"fused"`
	Selected       int            `json:"selected"`
	Reranked       int            `json:"reranked"`
	RerankStrategy RerankStrategy `json:"rerank_strategy"`
}

type RetrievalResult struct {
	Citations   []Citation     `json:"citations"`
	Confidence  float64        `json:"confidence"`
	Diagnostics RetrievalStats `json:"diagnostics"`
}

// EmptyResult is the well-formed answer when nothing could be retrieved.
func EmptyResult() RetrievalResult {
	return RetrievalResult{Citations: []Citation{}}
}

const (
	StageVectorSearch  = "vector_search"
	StageLexicalSearch = "lexical_search"
	StageFusion        = "fusion"
	StageMMR           = "mmr"
	StageRerank        = "rerank"
	StageExpand        = "expand"
	StageFacts         = "facts"
	StageComplete      = "complete"
)

// StageEvent reports the outcome of one pipeline stage to observers.
type StageEvent struct {
	TenantID string        `json:"tenant_id"`
	Stage    string        `json:"stage"`
	Strategy string        `json:"strategy,omitempty"`
	Count    int           `json:"count"`
	Duration time.Duration `json:"duration_ns"`
	Fallback bool          `json:"fallback,omitempty"`
	Error    string        `json:"error,omitempty"`

	// Confidence is only set on the complete stage.
	Confidence float64 `json:"confidence,omitempty"`
}
