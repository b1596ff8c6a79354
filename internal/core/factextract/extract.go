// Package factextract finds contact facts (phone numbers, e-mail addresses,
// street addresses, opening hours) in chunk text and ranks them by how close
// they sit to a named entity.
package factextract

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
	"github.com/kirillkom/docqa-retrieval/internal/core/lexical"
)

const excerptRadius = 120

type match struct {
	pattern    string
	start, end int
	raw        string
}

func (m match) overlaps(o match) bool {
	return m.start < o.end && o.start < m.end
}

// Supported reports whether kind has a recognizer.
func Supported(kind domain.FactKind) bool {
	_, ok := recognizers[kind]
	return ok
}

// Extract scans chunks for facts of kind and returns at most limit of them,
// one per distinct normalized value, best score first.
func Extract(kind domain.FactKind, entityName string, chunks []domain.ChunkText, limit int) []domain.ExtractedFact {
	rec, ok := recognizers[kind]
	if !ok || len(chunks) == 0 {
		return []domain.ExtractedFact{}
	}
	if limit <= 0 {
		limit = domain.DefaultFactLimit
	}

	terms := lexical.BuildEntityFilter(entityName).Terms
	label := strings.TrimSpace(entityName)
	best := make(map[string]domain.ExtractedFact)

	for _, chunk := range chunks {
		if strings.TrimSpace(chunk.Text) == "" {
			continue
		}
		anchors := anchorSpans(chunk.Text, terms)
		similarity := lexical.Similarity(chunk.Text, entityName)

		for _, m := range rec.find(chunk.Text) {
			value := rec.normalize(m.raw)
			if value == "" {
				continue
			}
			dist := nearestDistance(chunk.Text, m, anchors, rec.distanceCap)
			proximity := math.Max(0, 1-float64(min(dist, rec.distanceCap))/float64(rec.distanceCap))
			fact := domain.ExtractedFact{
				Kind:        kind,
				Value:       value,
				DocumentID:  chunk.DocumentID,
				ChunkIndex:  chunk.ChunkIndex,
				Score:       domain.SafeScore(similarity+proximity, 0),
				Excerpt:     excerpt(chunk.Text, m.start, m.end),
				EntityLabel: label,
			}
			if prev, ok := best[value]; !ok || fact.Score > prev.Score {
				best[value] = fact
			}
		}
	}

	out := make([]domain.ExtractedFact, 0, len(best))
	for _, fact := range best {
		out = append(out, fact)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		if out[i].ChunkIndex != out[j].ChunkIndex {
			return out[i].ChunkIndex < out[j].ChunkIndex
		}
		return out[i].Value < out[j].Value
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// find returns validated, non-overlapping matches ordered by position.
// Table rows are parsed first, then patterns in declaration order.
func (r recognizer) find(text string) []match {
	var accepted []match
	consider := func(m match) {
		for _, a := range accepted {
			if a.overlaps(m) {
				return
			}
		}
		if r.valid(text, m) {
			accepted = append(accepted, m)
		}
	}

	if r.table != nil {
		for _, row := range tableRows(text) {
			if m, ok := r.table(row); ok {
				consider(m)
			}
		}
	}
	for _, p := range r.patterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[2*p.group], loc[2*p.group+1]
			if start < 0 || end <= start {
				continue
			}
			consider(match{pattern: p.name, start: start, end: end, raw: text[start:end]})
		}
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].start < accepted[j].start })
	return accepted
}

func (r recognizer) valid(text string, m match) bool {
	for _, rl := range r.rules {
		switch rl.check(text, m) {
		case accept:
			return true
		case reject:
			return false
		}
	}
	return true
}

type span struct {
	start, end int
}

// anchorSpans locates every occurrence of an entity term as a whole word.
func anchorSpans(text string, terms []string) []span {
	if len(terms) == 0 {
		return nil
	}
	wanted := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		wanted[t] = struct{}{}
	}

	var out []span
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		if _, ok := wanted[strings.ToLower(text[start:end])]; ok {
			out = append(out, span{start: start, end: end})
		}
		start = -1
	}
	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(text))
	return out
}

// nearestDistance is the rune gap between m and the closest anchor,
// or limit when there is no anchor.
func nearestDistance(text string, m match, anchors []span, limit int) int {
	best := limit
	for _, a := range anchors {
		var gap int
		switch {
		case a.end <= m.start:
			gap = utf8.RuneCountInString(text[a.end:m.start])
		case m.end <= a.start:
			gap = utf8.RuneCountInString(text[m.end:a.start])
		}
		if gap < best {
			best = gap
		}
	}
	return best
}

func excerpt(text string, start, end int) string {
	left := before(text, start, excerptRadius)
	right := after(text, end, excerptRadius)
	out := strings.Join(strings.Fields(left+text[start:end]+right), " ")
	if len(left) < start {
		out = "…" + out
	}
	if end+len(right) < len(text) {
		out += "…"
	}
	return out
}
