package rerank

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
	"github.com/kirillkom/docqa-retrieval/internal/core/ports"
)

const (
	DefaultJudgeBatchSize = 5

	judgeSnippetChars = 300
	judgeNeutralScore = 50.0
	judgeMinScore     = 0.0
	judgeMaxScore     = 100.0
	judgeTemperature  = 0.0
	judgeMaxTokens    = 64
)

var (
	judgeNumberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	// item labels such as "[2]", "2:", "2)", "2=" or a leading "2. "
	judgeLabelRe = regexp.MustCompile(`(?m)\[\s*\d+\s*\]|(^|[^\d.\-])\d+\s*[:)=]|^\s*\d+\.\s|\(\s*\d+\s+values?\s*\)`)
)

const judgeSystemPrompt = "You grade how well each document answers a question. " +
	"Reply with only a comma-separated list of integer scores from 0 to 100, one per document, in the given order."

// LLMJudge asks a chat model to score candidates in fixed-size batches.
// A failed batch scores its members neutrally instead of failing the call.
type LLMJudge struct {
	chat      ports.ChatCompleter
	model     string
	batchSize int
	logger    *slog.Logger
}

func NewLLMJudge(chat ports.ChatCompleter, model string, batchSize int, logger *slog.Logger) *LLMJudge {
	if batchSize <= 0 {
		batchSize = DefaultJudgeBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMJudge{chat: chat, model: model, batchSize: batchSize, logger: logger}
}

func (r *LLMJudge) Rerank(ctx context.Context, query string, candidates []domain.Candidate, topN int) ([]domain.Candidate, error) {
	if len(candidates) == 0 {
		return []domain.Candidate{}, nil
	}

	out := make([]domain.Candidate, len(candidates))
	copy(out, candidates)

	for start := 0; start < len(out); start += r.batchSize {
		end := start + r.batchSize
		if end > len(out) {
			end = len(out)
		}
		scores := r.scoreBatch(ctx, query, out[start:end])
		for i, score := range scores {
			out[start+i].FinalScore = score
		}
	}

	sortByFinalScore(out)
	return out[:clampTopN(topN, len(out))], nil
}

func (r *LLMJudge) scoreBatch(ctx context.Context, query string, batch []domain.Candidate) []float64 {
	scores := make([]float64, len(batch))
	for i := range scores {
		scores[i] = judgeNeutralScore
	}

	resp, err := r.chat.ChatComplete(ctx, domain.ChatRequest{
		Model:       r.model,
		Temperature: judgeTemperature,
		MaxTokens:   judgeMaxTokens,
		Messages: []domain.ChatMessage{
			{Role: "system", Content: judgeSystemPrompt},
			{Role: "user", Content: buildJudgePrompt(query, batch)},
		},
	})
	if err != nil {
		r.logger.Warn("llm_judge_batch_failed", "batch_size", len(batch), "error", err)
		return scores
	}

	parsed := parseJudgeScores(resp.Content())
	for i := range scores {
		if i < len(parsed) {
			scores[i] = parsed[i]
		}
	}
	return scores
}

func buildJudgePrompt(query string, batch []domain.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", strings.TrimSpace(query))
	for i, c := range batch {
		snippet := strings.Join(strings.Fields(truncateRunes(c.Text, judgeSnippetChars)), " ")
		fmt.Fprintf(&b, "[%d] %s\n", i+1, snippet)
	}
	fmt.Fprintf(&b, "\nScores (%d values):", len(batch))
	return b.String()
}

// parseJudgeScores drops item labels, then reads numbers positionally and
// clamps them to [0,100]. Unparseable numbers score neutrally so positions
// stay aligned.
func parseJudgeScores(content string) []float64 {
	content = judgeLabelRe.ReplaceAllString(content, "$1 ")
	matches := judgeNumberRe.FindAllString(content, -1)
	out := make([]float64, 0, len(matches))
	for _, m := range matches {
		v, err := strconv.ParseFloat(m, 64)
		if err != nil {
			out = append(out, judgeNeutralScore)
			continue
		}
		v = domain.SafeScore(v, judgeNeutralScore)
		if v < judgeMinScore {
			v = judgeMinScore
		}
		if v > judgeMaxScore {
			v = judgeMaxScore
		}
		out = append(out, v)
	}
	return out
}
