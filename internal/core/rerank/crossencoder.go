package rerank

import (
	"context"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
	"github.com/kirillkom/docqa-retrieval/internal/core/ports"
)

// CrossEncoder delegates scoring to an external rerank service.
// Without credentials, or when the response maps onto no candidate,
// the first topN candidates are returned untouched.
type CrossEncoder struct {
	client ports.CrossEncoder
}

func NewCrossEncoder(client ports.CrossEncoder) *CrossEncoder {
	return &CrossEncoder{client: client}
}

func (r *CrossEncoder) Rerank(ctx context.Context, query string, candidates []domain.Candidate, topN int) ([]domain.Candidate, error) {
	if len(candidates) == 0 {
		return []domain.Candidate{}, nil
	}
	topN = clampTopN(topN, len(candidates))
	if r.client == nil || !r.client.Configured() {
		return firstN(candidates, topN), nil
	}

	documents := make([]string, len(candidates))
	for i, c := range candidates {
		documents[i] = c.Text
	}

	scores, err := r.client.RerankExternal(ctx, query, documents, topN)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRerankFailure, "cross-encoder rerank", err)
	}

	out := make([]domain.Candidate, 0, len(scores))
	used := make(map[int]struct{}, len(scores))
	for _, s := range scores {
		if s.Index < 0 || s.Index >= len(candidates) {
			continue
		}
		if _, dup := used[s.Index]; dup {
			continue
		}
		used[s.Index] = struct{}{}
		c := candidates[s.Index]
		c.FinalScore = domain.SafeScore(s.RelevanceScore, 0)
		out = append(out, c)
	}
	if len(out) == 0 {
		return firstN(candidates, topN), nil
	}

	sortByFinalScore(out)
	if len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}
