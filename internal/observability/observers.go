// Package observability groups the logging, metrics and telemetry fan-out
// used by the retrieval pipeline.
package observability

import (
	"context"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
	"github.com/kirillkom/docqa-retrieval/internal/core/ports"
)

// Observers forwards every stage event to each member in order.
type Observers []ports.RetrievalObserver

func NewObservers(members ...ports.RetrievalObserver) Observers {
	out := make(Observers, 0, len(members))
	for _, m := range members {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

func (o Observers) ObserveStage(ctx context.Context, event domain.StageEvent) {
	for _, m := range o {
		m.ObserveStage(ctx, event)
	}
}
