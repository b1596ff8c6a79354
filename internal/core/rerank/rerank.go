// Package rerank holds the interchangeable strategies that reorder
// diversified candidates before citations are built.
package rerank

import (
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
	"github.com/kirillkom/docqa-retrieval/internal/core/ports"
)

// Set maps strategies to rerankers. Unknown strategies resolve to the lexical one.
type Set struct {
	byStrategy map[domain.RerankStrategy]ports.Reranker
	fallback   ports.Reranker
}

type Deps struct {
	Embedder       ports.Embedder
	CrossEncoder   ports.CrossEncoder
	Chat           ports.ChatCompleter
	JudgeModel     string
	JudgeBatchSize int
	Logger         *slog.Logger
}

func NewSet(deps Deps) *Set {
	lexical := NewLexical()
	set := &Set{
		byStrategy: map[domain.RerankStrategy]ports.Reranker{
			domain.RerankLexical: lexical,
		},
		fallback: lexical,
	}
	if deps.Embedder != nil {
		set.byStrategy[domain.RerankEmbedding] = NewEmbedding(deps.Embedder)
	}
	if deps.CrossEncoder != nil {
		set.byStrategy[domain.RerankCrossEncoder] = NewCrossEncoder(deps.CrossEncoder)
	}
	if deps.Chat != nil {
		set.byStrategy[domain.RerankLLMJudge] = NewLLMJudge(deps.Chat, deps.JudgeModel, deps.JudgeBatchSize, deps.Logger)
	}
	return set
}

func (s *Set) For(strategy domain.RerankStrategy) ports.Reranker {
	if r, ok := s.byStrategy[strategy]; ok {
		return r
	}
	return s.fallback
}

func clampTopN(topN, n int) int {
	if topN <= 0 || topN > n {
		return n
	}
	return topN
}

func firstN(candidates []domain.Candidate, topN int) []domain.Candidate {
	topN = clampTopN(topN, len(candidates))
	out := make([]domain.Candidate, topN)
	copy(out, candidates[:topN])
	return out
}

// sortByFinalScore orders by FinalScore descending; equal scores keep input order.
func sortByFinalScore(candidates []domain.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].FinalScore > candidates[j].FinalScore
	})
}

// normalizedFused maps fused scores onto [0,1] relative to the best candidate.
func normalizedFused(candidates []domain.Candidate) []float64 {
	maxScore := 0.0
	for _, c := range candidates {
		if c.FusedScore > maxScore {
			maxScore = c.FusedScore
		}
	}
	out := make([]float64, len(candidates))
	if maxScore <= 0 {
		return out
	}
	for i, c := range candidates {
		out[i] = domain.Clamp01(c.FusedScore / maxScore)
	}
	return out
}

// truncateRunes cuts s to at most max runes.
func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// truncateAtSentence cuts s to at most max runes, preferring the last
// sentence end inside the window when it keeps at least half of it.
func truncateAtSentence(s string, max int) string {
	cut := truncateRunes(s, max)
	if len(cut) == len(s) {
		return s
	}
	idx := strings.LastIndexAny(cut, ".!?\n")
	if idx >= len(cut)/2 {
		return strings.TrimSpace(cut[:idx+1])
	}
	return strings.TrimSpace(cut)
}
