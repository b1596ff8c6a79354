package rerank

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
	"github.com/kirillkom/docqa-retrieval/internal/core/lexical"
	"github.com/kirillkom/docqa-retrieval/internal/core/ports"
)

const (
	embeddingCosineWeight   = 0.7
	embeddingCoverageWeight = 0.2
	embeddingLengthWeight   = 0.1

	embeddingNewWeight      = 0.8
	embeddingOriginalWeight = 0.2

	embeddingIdealMinChars = 100
	embeddingIdealMaxChars = 500
	embeddingMaxChars      = 800

	coverageExact   = 1.0
	coverageSynonym = 0.8
	coverageNear    = 0.5

	cosineEpsilon = 1e-9
)

// queryExpansion appends domain vocabulary to queries that ask for a
// specific kind of contact fact, which pulls the query vector toward
// chunks that actually state it.
type queryExpansion struct {
	trigger *regexp.Regexp
	terms   string
}

var queryExpansions = []queryExpansion{
	{
		trigger: regexp.MustCompile(`(?i)\b(orari[oe]?|apertura|chiusura|aperto|chiuso|quando)\b`),
		terms:   "orario apertura chiusura lunedì martedì mercoledì giovedì venerdì sabato domenica",
	},
	{
		trigger: regexp.MustCompile(`(?i)\b(telefono|tel|telefonare|chiamare|numero|cellulare|contatti?)\b`),
		terms:   "telefono numero contatto cellulare centralino",
	},
	{
		trigger: regexp.MustCompile(`(?i)\b(e-?mail|mail|posta|pec)\b`),
		terms:   "email posta elettronica pec indirizzo",
	},
	{
		trigger: regexp.MustCompile(`(?i)\b(indirizzo|dove|sede|ubicazione|trova)\b`),
		terms:   "indirizzo via piazza sede cap",
	},
}

var keywordSynonyms = map[string][]string{
	"telefono":  {"tel", "telefonico", "cellulare", "numero", "centralino"},
	"tel":       {"telefono", "cellulare", "numero"},
	"cellulare": {"telefono", "tel", "mobile"},
	"email":     {"mail", "posta", "pec"},
	"mail":      {"email", "posta", "pec"},
	"indirizzo": {"via", "piazza", "sede", "viale", "corso"},
	"sede":      {"indirizzo", "ufficio", "via"},
	"orario":    {"orari", "apertura", "aperto", "ricevimento"},
	"orari":     {"orario", "apertura", "aperto", "ricevimento"},
	"apertura":  {"orario", "orari", "aperto"},
	"chiusura":  {"chiuso", "orario"},
	"ufficio":   {"sportello", "sede"},
}

// Embedding blends cosine similarity between the expanded query and each
// candidate with keyword coverage and a length factor, then mixes the
// result with the candidate's original retrieval score.
type Embedding struct {
	embedder ports.Embedder
}

func NewEmbedding(embedder ports.Embedder) *Embedding {
	return &Embedding{embedder: embedder}
}

func (r *Embedding) Rerank(ctx context.Context, query string, candidates []domain.Candidate, topN int) ([]domain.Candidate, error) {
	if len(candidates) == 0 {
		return []domain.Candidate{}, nil
	}

	texts := make([]string, 0, len(candidates)+1)
	texts = append(texts, enhanceQuery(query))
	for _, c := range candidates {
		texts = append(texts, truncateAtSentence(c.Text, embeddingMaxChars))
	}

	vectors, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRerankFailure, "embedding rerank", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, domain.WrapError(domain.ErrMalformedResponse, "embedding rerank", errors.New("missing query embedding"))
	}
	queryVector := vectors[0]

	keywords := lexical.Terms(query)
	original := normalizedFused(candidates)
	out := make([]domain.Candidate, len(candidates))
	copy(out, candidates)

	for i := range out {
		cos := 0.0
		if i+1 < len(vectors) {
			cos = Cosine(queryVector, vectors[i+1])
		}
		fresh := embeddingCosineWeight*cos +
			embeddingCoverageWeight*keywordCoverage(keywords, out[i].Text) +
			embeddingLengthWeight*lengthCurve(utf8.RuneCountInString(out[i].Text), embeddingIdealMinChars, embeddingIdealMaxChars)
		out[i].FinalScore = domain.SafeScore(embeddingNewWeight*fresh+embeddingOriginalWeight*original[i], 0)
	}

	sortByFinalScore(out)
	return out[:clampTopN(topN, len(out))], nil
}

func enhanceQuery(query string) string {
	var extra []string
	for _, exp := range queryExpansions {
		if exp.trigger.MatchString(query) {
			extra = append(extra, exp.terms)
		}
	}
	if len(extra) == 0 {
		return query
	}
	return query + " " + strings.Join(extra, " ")
}

// keywordCoverage averages per-keyword credit: exact token match, synonym
// match, or a near match sharing a long common prefix.
func keywordCoverage(keywords []string, text string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	tokens := lexical.TokenSet(text)
	if len(tokens) == 0 {
		return 0
	}

	total := 0.0
	for _, kw := range keywords {
		switch {
		case hasToken(tokens, kw):
			total += coverageExact
		case hasAnyToken(tokens, keywordSynonyms[kw]):
			total += coverageSynonym
		case hasNearToken(tokens, kw):
			total += coverageNear
		}
	}
	return total / float64(len(keywords))
}

func hasToken(tokens map[string]struct{}, token string) bool {
	_, ok := tokens[token]
	return ok
}

func hasAnyToken(tokens map[string]struct{}, candidates []string) bool {
	for _, c := range candidates {
		if hasToken(tokens, c) {
			return true
		}
	}
	return false
}

const (
	nearMatchAffix   = 4
	nearMatchMinLen  = 4
	nearMatchMaxEdit = 2
)

// hasNearToken matches inflected or misspelled forms: a shared prefix or
// suffix of nearMatchAffix runes, or an edit distance of at most two.
func hasNearToken(tokens map[string]struct{}, keyword string) bool {
	kw := []rune(keyword)
	if len(kw) < nearMatchMinLen {
		return false
	}
	for token := range tokens {
		tk := []rune(token)
		if len(tk) < nearMatchMinLen {
			continue
		}
		if sharesAffix(kw, tk, nearMatchAffix) || editDistanceAtMost(kw, tk, nearMatchMaxEdit) {
			return true
		}
	}
	return false
}

func sharesAffix(a, b []rune, n int) bool {
	if len(a) < n || len(b) < n {
		return false
	}
	return string(a[:n]) == string(b[:n]) || string(a[len(a)-n:]) == string(b[len(b)-n:])
}

// editDistanceAtMost reports whether the Levenshtein distance of a and b is <= limit.
func editDistanceAtMost(a, b []rune, limit int) bool {
	if d := len(a) - len(b); d > limit || -d > limit {
		return false
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			rowMin = min(rowMin, cur[j])
		}
		if rowMin > limit {
			return false
		}
		prev, cur = cur, prev
	}
	return prev[len(b)] <= limit
}

// Cosine returns the cosine similarity of a and b over their common length.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	denom := math.Max(math.Sqrt(na), cosineEpsilon) * math.Max(math.Sqrt(nb), cosineEpsilon)
	return domain.SafeScore(dot/denom, 0)
}
