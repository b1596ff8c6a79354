package usecase

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
)

func (uc *RetrievalUseCase) buildCitations(
	ctx context.Context,
	tenantID string,
	final []domain.Candidate,
	cfg domain.RetrievalConfig,
) []domain.Citation {
	ctx, span := uc.tracer.Start(ctx, "retrieval."+domain.StageExpand)
	defer span.End()
	start := time.Now()

	perDocument := 1
	if cfg.MultiChunkPerDocument {
		perDocument = cfg.MaxChunksPerDocument
	}
	kept := dedupeByDocument(final, perDocument)

	metas := make(map[string]*domain.DocumentMeta, len(kept))
	out := make([]domain.Citation, 0, len(kept))
	for _, c := range kept {
		meta, ok := uc.documentMeta(ctx, metas, c.DocumentID, tenantID)
		if !ok {
			continue
		}
		out = append(out, domain.Citation{
			DocumentID: c.DocumentID,
			ChunkIndex: c.ChunkIndex,
			Title:      meta.Title,
			URL:        meta.URL,
			Snippet:    uc.expandSnippet(ctx, c, cfg.NeighborRadius),
			Score:      domain.SafeScore(c.FinalScore, 0),
		})
	}

	span.SetAttributes(attribute.Int("citations", len(out)))
	uc.observe(ctx, domain.StageEvent{TenantID: tenantID, Stage: domain.StageExpand, Count: len(out), Duration: time.Since(start)})
	return out
}

// dedupeByDocument keeps at most perDocument candidates per document,
// preserving order so the best-ranked chunks survive.
func dedupeByDocument(candidates []domain.Candidate, perDocument int) []domain.Candidate {
	if perDocument <= 0 {
		perDocument = 1
	}
	seen := make(map[string]int, len(candidates))
	out := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if seen[c.DocumentID] >= perDocument {
			continue
		}
		seen[c.DocumentID]++
		out = append(out, c)
	}
	return out
}

// documentMeta returns false only when the document is unknown to the tenant.
// Lookup failures keep the citation without a title.
func (uc *RetrievalUseCase) documentMeta(
	ctx context.Context,
	cache map[string]*domain.DocumentMeta,
	documentID string,
	tenantID string,
) (*domain.DocumentMeta, bool) {
	if meta, ok := cache[documentID]; ok {
		return meta, meta != nil
	}
	if uc.documents == nil {
		meta := &domain.DocumentMeta{ID: documentID, TenantID: tenantID}
		cache[documentID] = meta
		return meta, true
	}

	callCtx, cancel := withTimeout(ctx, uc.timeouts.Lookup)
	defer cancel()
	meta, err := uc.documents.GetDocumentMeta(callCtx, documentID, tenantID)
	if err != nil {
		uc.logger.Warn("document_meta_lookup_failed", "tenant_id", tenantID, "document_id", documentID, "error", err)
		meta = &domain.DocumentMeta{ID: documentID, TenantID: tenantID}
	}
	cache[documentID] = meta
	return meta, meta != nil
}

// expandSnippet joins the chunk with up to radius neighbours on each side,
// in index order. Missing neighbours are skipped.
func (uc *RetrievalUseCase) expandSnippet(ctx context.Context, c domain.Candidate, radius int) string {
	if radius <= 0 || uc.chunks == nil {
		return c.Text
	}
	parts := make([]string, 0, 2*radius+1)
	for idx := c.ChunkIndex - radius; idx <= c.ChunkIndex+radius; idx++ {
		if idx < 0 {
			continue
		}
		if idx == c.ChunkIndex {
			if c.Text != "" {
				parts = append(parts, c.Text)
			}
			continue
		}
		if text, ok := uc.lookupChunk(ctx, c.DocumentID, idx); ok && text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

func (uc *RetrievalUseCase) lookupChunk(ctx context.Context, documentID string, chunkIndex int) (string, bool) {
	callCtx, cancel := withTimeout(ctx, uc.timeouts.Lookup)
	defer cancel()
	text, found, err := uc.chunks.GetChunkText(callCtx, documentID, chunkIndex, 0)
	if err != nil {
		uc.logger.Debug("chunk_lookup_failed", "document_id", documentID, "chunk_index", chunkIndex, "error", err)
		return "", false
	}
	return text, found
}

const judgeScale = 100.0

// confidenceOf squashes the best final score into [0,1]. Scores on the
// 0..100 judge scale are divided by 100.
func confidenceOf(final []domain.Candidate) float64 {
	best := 0.0
	for _, c := range final {
		if v := domain.SafeScore(c.FinalScore, 0); v > best {
			best = v
		}
	}
	if best > 1 {
		best /= judgeScale
	}
	return domain.Clamp01(best)
}
