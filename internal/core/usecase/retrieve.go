package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
	"github.com/kirillkom/docqa-retrieval/internal/core/ports"
)

const tracerName = "github.com/kirillkom/docqa-retrieval/internal/core/usecase"

// RetrievalTimeouts bound each external call made while retrieving.
// Zero disables the bound and relies on the caller's context.
type RetrievalTimeouts struct {
	Channel   time.Duration
	Embedding time.Duration
	Rerank    time.Duration
	Lookup    time.Duration
}

type RetrievalDeps struct {
	Embedder  ports.Embedder
	Vectors   ports.VectorSearcher
	Lexical   ports.LexicalSearcher
	Chunks    ports.ChunkStore
	Documents ports.DocumentMetaStore
	Rerankers ports.RerankerSet
	Cache     ports.EmbeddingCache
	Observer  ports.RetrievalObserver
	Logger    *slog.Logger
	Timeouts  RetrievalTimeouts
}

type RetrievalUseCase struct {
	embedder  ports.Embedder
	vectors   ports.VectorSearcher
	lexical   ports.LexicalSearcher
	chunks    ports.ChunkStore
	documents ports.DocumentMetaStore
	rerankers ports.RerankerSet
	cache     ports.EmbeddingCache
	observer  ports.RetrievalObserver
	logger    *slog.Logger
	tracer    trace.Tracer
	timeouts  RetrievalTimeouts
}

func NewRetrievalUseCase(deps RetrievalDeps) *RetrievalUseCase {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrievalUseCase{
		embedder:  deps.Embedder,
		vectors:   deps.Vectors,
		lexical:   deps.Lexical,
		chunks:    deps.Chunks,
		documents: deps.Documents,
		rerankers: deps.Rerankers,
		cache:     deps.Cache,
		observer:  deps.Observer,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
		timeouts:  deps.Timeouts,
	}
}

// Retrieve runs hybrid search, fusion, diversification, reranking and
// citation assembly. Channel and rerank failures degrade the result instead
// of failing the call; only a missing tenant or a cancelled caller context
// is reported as an error, always alongside a well-formed result.
func (uc *RetrievalUseCase) Retrieve(ctx context.Context, req domain.RetrieveRequest) (domain.RetrievalResult, error) {
	result := domain.EmptyResult()
	tenantID := strings.TrimSpace(req.TenantID)
	if tenantID == "" {
		return result, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("tenant id is required"))
	}
	cfg := req.Config.Normalize()
	result.Diagnostics.RerankStrategy = cfg.RerankStrategy
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return result, nil
	}
	limit := req.Limit
	if limit <= 0 {
		limit = domain.DefaultRetrieveLimit
	}

	started := time.Now()
	ctx, span := uc.tracer.Start(ctx, "retrieval.retrieve", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("rerank.strategy", string(cfg.RerankStrategy)),
		attribute.Int("limit", limit),
	))
	defer span.End()

	batch := newEmbeddingBatch(tenantID, uc.embedder, uc.cache)
	queryVector := req.QueryEmbedding
	if len(queryVector) == 0 {
		queryVector = uc.embedQuery(ctx, batch, tenantID, query)
	}

	vectorHits, lexicalHits := uc.searchChannels(ctx, tenantID, query, queryVector, cfg)
	result.Diagnostics.VectorHits = len(vectorHits)
	result.Diagnostics.LexicalHits = len(lexicalHits)
	if len(vectorHits) == 0 && len(lexicalHits) == 0 {
		span.SetAttributes(attribute.Int("citations", 0))
		uc.complete(ctx, tenantID, result, started)
		return result, ctx.Err()
	}

	start := time.Now()
	fused := fuseCandidatesRRF(vectorHits, lexicalHits, cfg.RRFK)
	uc.fillMissingText(ctx, fused)
	result.Diagnostics.Fused = len(fused)
	uc.observe(ctx, domain.StageEvent{TenantID: tenantID, Stage: domain.StageFusion, Count: len(fused), Duration: time.Since(start)})

	selected := uc.diversify(ctx, batch, tenantID, queryVector, fused, cfg)
	result.Diagnostics.Selected = len(selected)

	final := uc.rerank(ctx, tenantID, query, cfg.RerankStrategy, selected, limit)
	result.Diagnostics.Reranked = len(final)

	result.Citations = uc.buildCitations(ctx, tenantID, final, cfg)
	result.Confidence = confidenceOf(final)
	span.SetAttributes(
		attribute.Int("citations", len(result.Citations)),
		attribute.Float64("confidence", result.Confidence),
	)
	uc.complete(ctx, tenantID, result, started)
	return result, ctx.Err()
}

func (uc *RetrievalUseCase) complete(ctx context.Context, tenantID string, result domain.RetrievalResult, started time.Time) {
	uc.observe(ctx, domain.StageEvent{
		TenantID:   tenantID,
		Stage:      domain.StageComplete,
		Strategy:   string(result.Diagnostics.RerankStrategy),
		Count:      len(result.Citations),
		Duration:   time.Since(started),
		Confidence: result.Confidence,
	})
}

func (uc *RetrievalUseCase) embedQuery(ctx context.Context, batch *embeddingBatch, tenantID, query string) []float32 {
	if uc.embedder == nil {
		return nil
	}
	callCtx, cancel := withTimeout(ctx, uc.timeouts.Embedding)
	defer cancel()

	batch.add(query)
	if err := batch.flush(callCtx); err != nil {
		uc.logger.Warn("query_embedding_failed", "tenant_id", tenantID, "error", err)
		return nil
	}
	vec, _ := batch.vector(query)
	return vec
}

// searchChannels queries both channels concurrently. A failed channel
// contributes no hits; the error is logged and observed, never returned.
func (uc *RetrievalUseCase) searchChannels(
	ctx context.Context,
	tenantID string,
	query string,
	queryVector []float32,
	cfg domain.RetrievalConfig,
) ([]domain.VectorHit, []domain.LexicalHit) {
	var (
		vectorHits  []domain.VectorHit
		lexicalHits []domain.LexicalHit
		g           errgroup.Group
	)

	if len(queryVector) > 0 && uc.vectors != nil {
		g.Go(func() error {
			hits, err := runStage(ctx, uc, tenantID, domain.StageVectorSearch, uc.timeouts.Channel, func(callCtx context.Context) ([]domain.VectorHit, error) {
				return uc.vectors.SearchVectors(callCtx, tenantID, queryVector, cfg.VectorTopK)
			})
			if err == nil {
				vectorHits = hits
			}
			return nil
		})
	}
	if uc.lexical != nil {
		g.Go(func() error {
			hits, err := runStage(ctx, uc, tenantID, domain.StageLexicalSearch, uc.timeouts.Channel, func(callCtx context.Context) ([]domain.LexicalHit, error) {
				return uc.lexical.SearchLexical(callCtx, tenantID, query, cfg.BM25TopK, cfg.KnowledgeBaseID)
			})
			if err == nil {
				lexicalHits = hits
			}
			return nil
		})
	}

	_ = g.Wait()
	return vectorHits, lexicalHits
}

// runStage executes one channel call inside its own span and timeout.
func runStage[T any](
	ctx context.Context,
	uc *RetrievalUseCase,
	tenantID, stage string,
	timeout time.Duration,
	call func(context.Context) ([]T, error),
) ([]T, error) {
	ctx, span := uc.tracer.Start(ctx, "retrieval."+stage)
	defer span.End()
	callCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	hits, err := call(callCtx)
	event := domain.StageEvent{TenantID: tenantID, Stage: stage, Count: len(hits), Duration: time.Since(start)}
	if err != nil {
		err = domain.WrapError(domain.ErrChannelFailure, stage, err)
		event.Count = 0
		event.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "channel failed")
		uc.logger.Warn("retrieval_channel_failed", "tenant_id", tenantID, "stage", stage, "error", err)
	}
	span.SetAttributes(attribute.Int("hits", event.Count))
	uc.observe(ctx, event)
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// fillMissingText loads chunk text for hits that arrived without it.
func (uc *RetrievalUseCase) fillMissingText(ctx context.Context, candidates []domain.Candidate) {
	if uc.chunks == nil {
		return
	}
	for i := range candidates {
		if candidates[i].Text != "" {
			continue
		}
		text, ok := uc.lookupChunk(ctx, candidates[i].DocumentID, candidates[i].ChunkIndex)
		if ok {
			candidates[i].Text = text
		}
	}
}

func (uc *RetrievalUseCase) diversify(
	ctx context.Context,
	batch *embeddingBatch,
	tenantID string,
	queryVector []float32,
	fused []domain.Candidate,
	cfg domain.RetrievalConfig,
) []domain.Candidate {
	ctx, span := uc.tracer.Start(ctx, "retrieval."+domain.StageMMR)
	defer span.End()
	start := time.Now()

	event := domain.StageEvent{TenantID: tenantID, Stage: domain.StageMMR}
	if len(queryVector) > 0 && uc.embedder != nil {
		for _, c := range fused {
			batch.add(c.Text)
		}
		callCtx, cancel := withTimeout(ctx, uc.timeouts.Embedding)
		err := batch.flush(callCtx)
		cancel()
		if err != nil {
			// relevance falls back to fused order without redundancy penalties
			event.Error = err.Error()
			event.Fallback = true
			uc.logger.Warn("mmr_embedding_failed", "tenant_id", tenantID, "error", err)
		}
	}

	selected := selectMMR(queryVector, fused, func(c domain.Candidate) ([]float32, bool) {
		return batch.vector(c.Text)
	}, cfg.MMRTake, cfg.MMRLambda)

	event.Count = len(selected)
	event.Duration = time.Since(start)
	span.SetAttributes(attribute.Int("selected", len(selected)))
	uc.observe(ctx, event)
	return selected
}

// rerank applies the configured strategy and falls back to the MMR order
// on error or on an empty answer for non-empty input.
func (uc *RetrievalUseCase) rerank(
	ctx context.Context,
	tenantID string,
	query string,
	strategy domain.RerankStrategy,
	selected []domain.Candidate,
	limit int,
) []domain.Candidate {
	fallback := trimCandidates(selected, limit)
	if len(selected) == 0 || uc.rerankers == nil {
		return fallback
	}

	ctx, span := uc.tracer.Start(ctx, "retrieval."+domain.StageRerank, trace.WithAttributes(attribute.String("strategy", string(strategy))))
	defer span.End()
	callCtx, cancel := withTimeout(ctx, uc.timeouts.Rerank)
	defer cancel()

	start := time.Now()
	out, err := uc.rerankers.For(strategy).Rerank(callCtx, query, selected, limit)
	event := domain.StageEvent{TenantID: tenantID, Stage: domain.StageRerank, Strategy: string(strategy), Duration: time.Since(start)}
	switch {
	case err != nil:
		event.Error = err.Error()
		event.Fallback = true
		span.RecordError(err)
		uc.logger.Warn("rerank_fallback", "tenant_id", tenantID, "strategy", strategy, "error", err)
		out = fallback
	case len(out) == 0:
		event.Fallback = true
		uc.logger.Warn("rerank_fallback", "tenant_id", tenantID, "strategy", strategy, "reason", "empty result")
		out = fallback
	}
	for i := range out {
		out[i].FinalScore = domain.SafeScore(out[i].FinalScore, out[i].FusedScore)
	}
	event.Count = len(out)
	uc.observe(ctx, event)
	return out
}

func (uc *RetrievalUseCase) observe(ctx context.Context, event domain.StageEvent) {
	if uc.observer == nil {
		return
	}
	uc.observer.ObserveStage(ctx, event)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
