package lexical

import "strings"

const (
	// MaxEntityTermPairs caps the pairwise AND conditions of an entity filter.
	MaxEntityTermPairs = 10
	// EntityTrigramThreshold is the minimum trigram similarity between chunk and entity name.
	EntityTrigramThreshold = 0.2

	minEntityTermLen = 2
)

// ORQuery joins query terms into a to_tsquery expression with OR semantics,
// so that a chunk matching any single term is a hit.
func ORQuery(query string) string {
	return strings.Join(Terms(query), " | ")
}

// EntityFilter describes which chunks plausibly mention an entity.
// A chunk qualifies when it contains one of Phrases, both terms of one of Pairs,
// the single Term, or is trigram-similar to Name above TrigramThreshold.
type EntityFilter struct {
	Name             string
	Terms            []string
	Phrases          []string
	Pairs            [][2]string
	TrigramThreshold float64
}

func BuildEntityFilter(entityName string) EntityFilter {
	name := strings.Join(strings.Fields(strings.ToLower(entityName)), " ")
	filter := EntityFilter{
		Name:             name,
		TrigramThreshold: EntityTrigramThreshold,
	}

	for _, term := range Terms(name) {
		if len([]rune(term)) < minEntityTermLen {
			continue
		}
		filter.Terms = append(filter.Terms, term)
	}

	terms := filter.Terms
	seen := make(map[string]struct{})
	for i := 0; i+1 < len(terms); i++ {
		for _, phrase := range []string{terms[i] + " " + terms[i+1], terms[i+1] + " " + terms[i]} {
			if _, ok := seen[phrase]; ok {
				continue
			}
			seen[phrase] = struct{}{}
			filter.Phrases = append(filter.Phrases, phrase)
		}
	}

	for i := 0; i < len(terms) && len(filter.Pairs) < MaxEntityTermPairs; i++ {
		for j := i + 1; j < len(terms) && len(filter.Pairs) < MaxEntityTermPairs; j++ {
			filter.Pairs = append(filter.Pairs, [2]string{terms[i], terms[j]})
		}
	}
	return filter
}

// SingleTerm reports the only term when the entity has exactly one.
func (f EntityFilter) SingleTerm() (string, bool) {
	if len(f.Terms) != 1 {
		return "", false
	}
	return f.Terms[0], true
}

func (f EntityFilter) Empty() bool {
	return len(f.Terms) == 0 && f.Name == ""
}
