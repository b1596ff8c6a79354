package ports

import (
	"context"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
)

// Retriever is the inbound contract for hybrid citation retrieval.
type Retriever interface {
	Retrieve(ctx context.Context, req domain.RetrieveRequest) (domain.RetrievalResult, error)
}

// FactFinder is the inbound contract for entity-anchored fact extraction.
type FactFinder interface {
	ExtractFacts(ctx context.Context, req domain.FactRequest) ([]domain.ExtractedFact, error)
}
