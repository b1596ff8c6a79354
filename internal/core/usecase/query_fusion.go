package usecase

import (
	"sort"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
)

// fuseCandidatesRRF merges both channels by reciprocal rank fusion:
// each appearance contributes 1/(rrfK+rank) with 1-based rank.
// Equal scores are ordered by document id, then chunk index.
func fuseCandidatesRRF(vector []domain.VectorHit, lexical []domain.LexicalHit, rrfK int) []domain.Candidate {
	if rrfK <= 0 {
		rrfK = domain.DefaultRRFK
	}

	acc := make(map[string]*domain.Candidate, len(vector)+len(lexical))
	upsert := func(documentID string, chunkIndex int, text string) *domain.Candidate {
		key := domain.ChunkKey(documentID, chunkIndex)
		c, ok := acc[key]
		if !ok {
			c = &domain.Candidate{DocumentID: documentID, ChunkIndex: chunkIndex}
			acc[key] = c
		}
		c.Text = preferRicherText(c.Text, text)
		return c
	}

	for i, hit := range vector {
		c := upsert(hit.DocumentID, hit.ChunkIndex, hit.Text)
		if c.VectorScore == nil {
			score := hit.Score
			c.VectorScore = &score
		}
		c.FusedScore += 1.0 / float64(rrfK+i+1)
	}
	for i, hit := range lexical {
		c := upsert(hit.DocumentID, hit.ChunkIndex, hit.Text)
		if c.LexicalRank == 0 {
			c.LexicalRank = i + 1
		}
		c.FusedScore += 1.0 / float64(rrfK+i+1)
	}

	out := make([]domain.Candidate, 0, len(acc))
	for _, c := range acc {
		c.FinalScore = c.FusedScore
		out = append(out, *c)
	}
	sortCandidates(out, func(c domain.Candidate) float64 { return c.FusedScore })
	return out
}

func sortCandidates(out []domain.Candidate, score func(domain.Candidate) float64) {
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := score(out[i]), score(out[j])
		if si != sj {
			return si > sj
		}
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].ChunkIndex < out[j].ChunkIndex
	})
}

func trimCandidates(candidates []domain.Candidate, limit int) []domain.Candidate {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}
	return candidates[:limit]
}

func preferRicherText(current, candidate string) string {
	if len(candidate) > len(current) {
		return candidate
	}
	return current
}
