package lexical

import "strings"

// Trigrams follows pg_trgm: each word is padded with two leading spaces
// and one trailing space before being cut into 3-rune windows.
func Trigrams(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, word := range SplitAlphaNumLower(s) {
		padded := []rune("  " + word + " ")
		for i := 0; i+3 <= len(padded); i++ {
			out[string(padded[i:i+3])] = struct{}{}
		}
	}
	return out
}

// Similarity is the Jaccard index of the trigram sets of a and b.
func Similarity(a, b string) float64 {
	ta := Trigrams(a)
	tb := Trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for g := range ta {
		if _, ok := tb[g]; ok {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

// ContainsPhrase reports whether the normalized token stream of text contains phrase.
func ContainsPhrase(text, phrase string) bool {
	hay := " " + strings.Join(SplitAlphaNumLower(text), " ") + " "
	needle := " " + strings.Join(SplitAlphaNumLower(phrase), " ") + " "
	return strings.TrimSpace(needle) != "" && strings.Contains(hay, needle)
}

// Match tiers, weakest first.
const (
	MatchNone = iota
	MatchTrigram
	MatchTerm
	MatchPair
	MatchPhrase
)

// Strength grades text against the filter and reports its trigram similarity
// to the entity name. Capped candidate lists are cut in this order.
func (f EntityFilter) Strength(text string) (tier int, similarity float64) {
	if f.Name != "" {
		similarity = Similarity(text, f.Name)
	}
	for _, phrase := range f.Phrases {
		if ContainsPhrase(text, phrase) {
			return MatchPhrase, similarity
		}
	}
	if len(f.Pairs) > 0 || len(f.Terms) == 1 {
		tokens := TokenSet(text)
		for _, pair := range f.Pairs {
			_, a := tokens[pair[0]]
			_, b := tokens[pair[1]]
			if a && b {
				return MatchPair, similarity
			}
		}
		if term, ok := f.SingleTerm(); ok {
			if _, hit := tokens[term]; hit {
				return MatchTerm, similarity
			}
		}
	}
	if f.Name != "" && similarity > f.TrigramThreshold {
		return MatchTrigram, similarity
	}
	return MatchNone, similarity
}

// Matches evaluates the filter against chunk text in memory.
func (f EntityFilter) Matches(text string) bool {
	tier, _ := f.Strength(text)
	return tier != MatchNone
}
