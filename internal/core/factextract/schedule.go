package factextract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	rangePartsRe = regexp.MustCompile(`(?i)(?:dalle\s+)?(\d{1,2})(?:[:.](\d{2}))?\s*(?:-|–|—|alle|a)\s*(\d{1,2})(?:[:.](\d{2}))?`)
	dayCellRe    = regexp.MustCompile(`(?i)^(?:dal\s+)?(?:` + dayAlternation + `)(?:[^\p{L}]|$)`)
	labelTailRe  = regexp.MustCompile(`(?i)(?:\s|^)(?:ore|dalle)$`)
)

type clockSpan struct {
	startHour, startMin int
	endHour, endMin     int
}

func (c clockSpan) valid() bool {
	if c.startHour > 23 || c.startMin > 59 || c.endMin > 59 {
		return false
	}
	if c.endHour > 24 || (c.endHour == 24 && c.endMin != 0) {
		return false
	}
	return true
}

func (c clockSpan) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", c.startHour, c.startMin, c.endHour, c.endMin)
}

// parseSchedule splits a schedule span into its day label and clock ranges.
func parseSchedule(raw string) (string, []clockSpan) {
	var ranges []clockSpan
	for _, parts := range rangePartsRe.FindAllStringSubmatch(raw, -1) {
		ranges = append(ranges, clockSpan{
			startHour: atoi(parts[1]),
			startMin:  atoi(parts[2]),
			endHour:   atoi(parts[3]),
			endMin:    atoi(parts[4]),
		})
	}
	return dayLabel(raw), ranges
}

func dayLabel(raw string) string {
	cut := strings.IndexFunc(raw, unicode.IsDigit)
	if cut < 0 {
		cut = len(raw)
	}
	label := strings.Join(strings.Fields(raw[:cut]), " ")
	for {
		trimmed := strings.TrimRight(label, " :,-–—")
		trimmed = strings.TrimSpace(labelTailRe.ReplaceAllString(trimmed, ""))
		if trimmed == label {
			break
		}
		label = trimmed
	}
	if label == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(label)
	return string(unicode.ToUpper(r)) + label[size:]
}

func normalizeSchedule(raw string) string {
	label, ranges := parseSchedule(raw)
	if len(ranges) == 0 {
		return ""
	}
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = r.String()
	}
	value := strings.Join(parts, ", ")
	if label != "" {
		value = label + " " + value
	}
	return value
}

type tableRow struct {
	start, end int
	cells      []string
}

// tableRows returns pipe-delimited lines, skipping markdown separator rows.
func tableRows(text string) []tableRow {
	var rows []tableRow
	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		start := offset
		offset += len(line)
		body := strings.TrimRight(line, "\r\n")
		if strings.Count(body, "|") < 2 {
			continue
		}
		if strings.Trim(body, "|-: \t") == "" {
			continue
		}
		var cells []string
		for _, cell := range strings.Split(body, "|") {
			if cell = strings.TrimSpace(cell); cell != "" {
				cells = append(cells, cell)
			}
		}
		if len(cells) == 0 {
			continue
		}
		rows = append(rows, tableRow{start: start, end: start + len(body), cells: cells})
	}
	return rows
}

// scheduleFromRow joins a day cell with every clock range found in the row.
func scheduleFromRow(row tableRow) (match, bool) {
	label := ""
	var ranges []string
	for _, cell := range row.cells {
		if label == "" && dayCellRe.MatchString(cell) {
			label = dayLabel(cell)
		}
		for _, loc := range scheduleRangeRe.FindAllStringSubmatchIndex(cell, -1) {
			ranges = append(ranges, cell[loc[2]:loc[3]])
		}
	}
	if label == "" || len(ranges) == 0 {
		return match{}, false
	}
	return match{
		pattern: patternTableRow,
		start:   row.start,
		end:     row.end,
		raw:     label + " " + strings.Join(ranges, ", "),
	}, true
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}
