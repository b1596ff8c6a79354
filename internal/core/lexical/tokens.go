package lexical

import (
	"strings"
	"unicode"
)

// SplitAlphaNumLower splits s into lowercase runs of letters and digits.
func SplitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

func TokenSet(s string) map[string]struct{} {
	tokens := SplitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

// Overlap is the share of query tokens present in chunk.
func Overlap(query, chunk map[string]struct{}) float64 {
	if len(query) == 0 || len(chunk) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := chunk[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

var stopwords = map[string]struct{}{
	"a": {}, "ad": {}, "al": {}, "alla": {}, "alle": {}, "allo": {}, "ai": {}, "agli": {},
	"che": {}, "chi": {}, "ci": {}, "come": {}, "con": {}, "cosa": {},
	"da": {}, "dal": {}, "dalla": {}, "dei": {}, "del": {}, "della": {}, "delle": {}, "dello": {}, "degli": {}, "di": {},
	"e": {}, "ed": {}, "gli": {}, "i": {}, "il": {}, "in": {}, "la": {}, "le": {}, "lo": {},
	"ma": {}, "mi": {}, "ne": {}, "nel": {}, "nella": {}, "non": {}, "o": {}, "per": {}, "qual": {}, "quale": {},
	"quali": {}, "quando": {}, "se": {}, "si": {}, "su": {}, "sono": {}, "sul": {}, "sulla": {},
	"tra": {}, "fra": {}, "un": {}, "una": {}, "uno": {}, "è": {},
	"the": {}, "of": {}, "and": {}, "or": {}, "to": {}, "is": {}, "what": {}, "how": {},
}

func IsStopword(token string) bool {
	_, ok := stopwords[token]
	return ok
}

// Terms returns the distinct non-stopword tokens of s in first-seen order.
func Terms(s string) []string {
	tokens := SplitAlphaNumLower(s)
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if IsStopword(token) {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}
