package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
	"github.com/kirillkom/docqa-retrieval/internal/core/factextract"
	"github.com/kirillkom/docqa-retrieval/internal/core/ports"
)

const (
	factCandidateFactor = 8
	minFactCandidates   = 40
)

type FactUseCase struct {
	candidates ports.EntityCandidateSource
	observer   ports.RetrievalObserver
	logger     *slog.Logger
	tracer     trace.Tracer
	timeout    time.Duration
}

func NewFactUseCase(
	candidates ports.EntityCandidateSource,
	observer ports.RetrievalObserver,
	logger *slog.Logger,
	timeout time.Duration,
) *FactUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &FactUseCase{
		candidates: candidates,
		observer:   observer,
		logger:     logger,
		tracer:     otel.Tracer(tracerName),
		timeout:    timeout,
	}
}

// ExtractFacts returns facts of one kind anchored on an entity name.
// A failing candidate source yields no facts rather than an error.
func (uc *FactUseCase) ExtractFacts(ctx context.Context, req domain.FactRequest) ([]domain.ExtractedFact, error) {
	tenantID := strings.TrimSpace(req.TenantID)
	entity := strings.TrimSpace(req.EntityName)
	switch {
	case tenantID == "":
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract facts", errors.New("tenant id is required"))
	case entity == "":
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract facts", errors.New("entity name is required"))
	case !factextract.Supported(req.Kind):
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract facts", errors.New("unsupported fact kind "+string(req.Kind)))
	}
	limit := req.Limit
	if limit <= 0 {
		limit = domain.DefaultFactLimit
	}

	ctx, span := uc.tracer.Start(ctx, "retrieval."+domain.StageFacts, trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("fact.kind", string(req.Kind)),
	))
	defer span.End()
	start := time.Now()

	callCtx, cancel := withTimeout(ctx, uc.timeout)
	chunks, err := uc.candidates.FindEntityCandidates(callCtx, tenantID, entity, max(limit*factCandidateFactor, minFactCandidates), req.KnowledgeBaseID)
	cancel()

	event := domain.StageEvent{TenantID: tenantID, Stage: domain.StageFacts, Strategy: string(req.Kind)}
	if err != nil {
		event.Error = err.Error()
		event.Duration = time.Since(start)
		span.RecordError(err)
		uc.logger.Warn("fact_candidates_failed", "tenant_id", tenantID, "kind", req.Kind, "error", err)
		uc.observeFacts(ctx, event)
		return []domain.ExtractedFact{}, nil
	}

	facts := factextract.Extract(req.Kind, entity, chunks, limit)
	event.Count = len(facts)
	event.Duration = time.Since(start)
	span.SetAttributes(attribute.Int("candidates", len(chunks)), attribute.Int("facts", len(facts)))
	uc.observeFacts(ctx, event)
	return facts, nil
}

func (uc *FactUseCase) observeFacts(ctx context.Context, event domain.StageEvent) {
	if uc.observer != nil {
		uc.observer.ObserveStage(ctx, event)
	}
}
