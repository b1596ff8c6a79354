package rerank

import (
	"context"
	"math"
	"unicode/utf8"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
	"github.com/kirillkom/docqa-retrieval/internal/core/lexical"
)

const (
	lexicalOverlapWeight  = 0.4
	lexicalTFWeight       = 0.3
	lexicalLengthWeight   = 0.2
	lexicalPositionWeight = 0.1

	lexicalIdealMinChars = 300
	lexicalIdealMaxChars = 800

	tfSaturationK = 1.2
)

// Lexical scores candidates on query-term overlap, saturated term frequency,
// chunk length and retrieval position. It never calls external services.
type Lexical struct{}

func NewLexical() *Lexical {
	return &Lexical{}
}

func (r *Lexical) Rerank(_ context.Context, query string, candidates []domain.Candidate, topN int) ([]domain.Candidate, error) {
	if len(candidates) == 0 {
		return []domain.Candidate{}, nil
	}

	queryTokens := lexical.TokenSet(query)
	out := make([]domain.Candidate, len(candidates))
	copy(out, candidates)

	n := float64(len(out))
	for i := range out {
		tokens := lexical.SplitAlphaNumLower(out[i].Text)
		tokenSet := make(map[string]struct{}, len(tokens))
		for _, token := range tokens {
			tokenSet[token] = struct{}{}
		}
		score := lexicalOverlapWeight*lexical.Overlap(queryTokens, tokenSet) +
			lexicalTFWeight*saturatedTF(queryTokens, tokens) +
			lexicalLengthWeight*lengthCurve(utf8.RuneCountInString(out[i].Text), lexicalIdealMinChars, lexicalIdealMaxChars) +
			lexicalPositionWeight*(1-float64(i)/n)
		out[i].FinalScore = domain.SafeScore(score, 0)
	}

	sortByFinalScore(out)
	return out[:clampTopN(topN, len(out))], nil
}

// saturatedTF averages tf*(k+1)/(tf+k) over query terms, scaled to [0,1).
func saturatedTF(query map[string]struct{}, tokens []string) float64 {
	if len(query) == 0 || len(tokens) == 0 {
		return 0
	}
	counts := make(map[string]int, len(query))
	for _, token := range tokens {
		if _, ok := query[token]; ok {
			counts[token]++
		}
	}
	total := 0.0
	for _, tf := range counts {
		f := float64(tf)
		total += (f * (tfSaturationK + 1) / (f + tfSaturationK)) / (tfSaturationK + 1)
	}
	return total / float64(len(query))
}

// lengthCurve is 1 inside [lo,hi] and falls off linearly outside it.
func lengthCurve(length, lo, hi int) float64 {
	switch {
	case length <= 0:
		return 0
	case length < lo:
		return float64(length) / float64(lo)
	case length <= hi:
		return 1
	default:
		return math.Max(0, 1-float64(length-hi)/float64(hi))
	}
}
