package factextract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	patternEmergency = "emergency"
	patternDayRange  = "day_range"
	patternTableRow  = "table_row"
)

var (
	emergencyContextRe = regexp.MustCompile(`(?i)(emergenz|soccorso|pronto intervento|numero unico|guardia medica|carabinieri|polizia|vigili del fuoco|ambulanza|antiviolenza|chiama|telefon|\btel\b|numero)`)
	fiscalCodeRe       = regexp.MustCompile(`^[A-Za-z]{6}\d{2}[A-Za-z]\d{2}[A-Za-z]\d{3}[A-Za-z]$`)
	vatContextRe       = regexp.MustCompile(`(?i)(p\.?\s?iva|partita\s+iva|\bvat\b|c\.?\s?f\.|codice\s+fiscale|cod\.\s?fisc)`)
	dateShapeRe        = regexp.MustCompile(`^\d{1,2}[./\-]\d{1,2}[./\-](?:\d{2}|\d{4})$`)
	clockShapeRe       = regexp.MustCompile(`^\d{1,2}[:.]\d{2}(?:\s*[-–]\s*\d{1,2}[:.]\d{2})?$`)
	currencyContextRe  = regexp.MustCompile(`(?i)(€|\$|\beur\b|\beuro\b)`)
	addressContextRe   = regexp.MustCompile(`(?i)(\bvia\b|\bpiazza\b|\bcap\b|\bcorso\b|\bviale\b)`)
	assetEmailRe       = regexp.MustCompile(`(?i)\.(png|jpe?g|gif|svg|webp|pdf)$`)
	addressHintRe      = regexp.MustCompile(`(?i)(indirizzo|sede|si trova|ubicat|presso|recapito|raggiungibile)`)

	earlyHoursContextRe = regexp.MustCompile(`(?i)(24\s?h|h\s?24|24 ore|24/24|24/7|continuat|no[\s-]?stop|sempre apert|emergenz|pronto soccorso|guardia)`)
	yearRe              = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	slashDateRe         = regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`)
	dotDateRe           = regexp.MustCompile(`\b\d{1,2}\.\d{1,2}\.\d{2,4}\b`)
	dashDateRe          = regexp.MustCompile(`\b\d{1,2}-\d{1,2}-\d{2,4}\b`)
	monthRe             = regexp.MustCompile(`(?i)\b(gennaio|febbraio|marzo|aprile|maggio|giugno|luglio|agosto|settembre|ottobre|novembre|dicembre)\b`)
	docCodeRe           = regexp.MustCompile(`(?i)(€|\beur\b|\beuro\b|\bprot\b|protocollo|\bart\.|\bdelibera|\bdetermina|\bcig\b|\bcup\b|fattura|importo|\bn°)`)
	timeContextRe       = regexp.MustCompile(`(?i)(orari|apert|chius|dalle|ricevimento|sportello|mattin|pomerigg|\bore\b|h24|` +
		`\bluned|\bmarted|\bmercoled|\bgioved|\bvenerd|\bsabato|\bdomenica|\bfestiv|\bferial|\b(?:lun|mar|mer|gio|ven|sab|dom)\b)`)
)

const (
	emergencyContextChars = 60
	vatContextChars       = 40
	currencyContextChars  = 8
	addressContextChars   = 60
	scheduleRejectChars   = 40
	scheduleContextChars  = 120
)

func emergencyShortCode(text string, m match) verdict {
	if m.pattern != patternEmergency {
		return pass
	}
	if emergencyContextRe.MatchString(around(text, m.start, m.end, emergencyContextChars)) {
		return accept
	}
	return reject
}

func rejectAdjacentAlnum(text string, m match) verdict {
	if r, _ := utf8.DecodeLastRuneInString(text[:m.start]); isAlnum(r) {
		return reject
	}
	if r, _ := utf8.DecodeRuneInString(text[m.end:]); isAlnum(r) {
		return reject
	}
	return pass
}

func rejectFiscalCode(text string, m match) verdict {
	start, end := m.start, m.end
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:start])
		if !isAlnum(r) {
			break
		}
		start -= size
	}
	for end < len(text) {
		r, size := utf8.DecodeRuneInString(text[end:])
		if !isAlnum(r) {
			break
		}
		end += size
	}
	if fiscalCodeRe.MatchString(text[start:end]) {
		return reject
	}
	return pass
}

func rejectVATNumber(text string, m match) verdict {
	if len(digitsOf(m.raw)) != 11 {
		return pass
	}
	if vatContextRe.MatchString(before(text, m.start, vatContextChars)) {
		return reject
	}
	return pass
}

func rejectDateLike(_ string, m match) verdict {
	if dateShapeRe.MatchString(strings.TrimSpace(m.raw)) {
		return reject
	}
	return pass
}

func rejectClockTime(_ string, m match) verdict {
	if clockShapeRe.MatchString(strings.TrimSpace(m.raw)) {
		return reject
	}
	return pass
}

func rejectPostalCode(text string, m match) verdict {
	if len(nationalDigits(m.raw)) != 5 {
		return pass
	}
	if addressContextRe.MatchString(around(text, m.start, m.end, addressContextChars)) {
		return reject
	}
	return pass
}

func rejectCurrency(text string, m match) verdict {
	if currencyContextRe.MatchString(around(text, m.start, m.end, currencyContextChars)) {
		return reject
	}
	return pass
}

// phoneShape accepts Italian landline (0), mobile (3) and toll-free (8) numbers.
func phoneShape(_ string, m match) verdict {
	digits := nationalDigits(m.raw)
	if len(digits) < 6 || len(digits) > 11 {
		return reject
	}
	switch digits[0] {
	case '0', '3', '8':
		return pass
	default:
		return reject
	}
}

func rejectAssetEmail(_ string, m match) verdict {
	if assetEmailRe.MatchString(m.raw) {
		return reject
	}
	local, _, _ := strings.Cut(m.raw, "@")
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") {
		return reject
	}
	return pass
}

func addressEvidence(text string, m match) verdict {
	if strings.IndexFunc(m.raw, unicode.IsDigit) >= 0 {
		return pass
	}
	if addressHintRe.MatchString(before(text, m.start, addressContextChars)) {
		return pass
	}
	return reject
}

func rejectInvalidClock(_ string, m match) verdict {
	_, ranges := parseSchedule(m.raw)
	if len(ranges) == 0 {
		return reject
	}
	for _, r := range ranges {
		if !r.valid() {
			return reject
		}
	}
	return pass
}

const earliestOpeningHour = 6

func rejectEarlyHours(text string, m match) verdict {
	_, ranges := parseSchedule(m.raw)
	for _, r := range ranges {
		if r.startHour >= earliestOpeningHour {
			continue
		}
		if earlyHoursContextRe.MatchString(around(text, m.start, m.end, scheduleContextChars)) {
			return pass
		}
		return reject
	}
	return pass
}

// rejectDateContext drops time-like spans sitting next to dates, years,
// month names, amounts or document codes on the same line.
func rejectDateContext(text string, m match) verdict {
	lineStart, lineEnd := lineBounds(text, m.start, m.end)
	left := text[max(lineStart, m.start-scheduleRejectChars):m.start]
	right := text[m.end:min(lineEnd, m.end+scheduleRejectChars)]
	for _, ctx := range []string{left, right} {
		if yearRe.MatchString(ctx) || slashDateRe.MatchString(ctx) || dotDateRe.MatchString(ctx) ||
			dashDateRe.MatchString(ctx) || monthRe.MatchString(ctx) || docCodeRe.MatchString(ctx) {
			return reject
		}
	}
	return pass
}

func requireTimeContext(text string, m match) verdict {
	if m.pattern == patternDayRange || m.pattern == patternTableRow {
		return pass
	}
	if timeContextRe.MatchString(m.raw) {
		return pass
	}
	if timeContextRe.MatchString(around(text, m.start, m.end, scheduleContextChars)) {
		return pass
	}
	return reject
}

func isAlnum(r rune) bool {
	return r != utf8.RuneError && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// nationalDigits strips an explicit +39 / 0039 country prefix.
func nationalDigits(raw string) string {
	raw = strings.TrimSpace(raw)
	digits := digitsOf(raw)
	switch {
	case strings.HasPrefix(raw, "+39"):
		return strings.TrimPrefix(digits, "39")
	case strings.HasPrefix(raw, "0039"):
		return strings.TrimPrefix(digits, "0039")
	}
	return digits
}

// around returns up to n bytes on each side of [start,end), snapped to rune boundaries.
func around(text string, start, end, n int) string {
	return before(text, start, n) + " " + after(text, end, n)
}

func before(text string, start, n int) string {
	from := max(0, start-n)
	for from < start && !utf8.RuneStart(text[from]) {
		from++
	}
	return text[from:start]
}

func after(text string, end, n int) string {
	to := min(len(text), end+n)
	for to > end && to < len(text) && !utf8.RuneStart(text[to]) {
		to--
	}
	return text[end:to]
}

func lineBounds(text string, start, end int) (int, int) {
	lineStart := strings.LastIndexByte(text[:start], '\n') + 1
	lineEnd := len(text)
	if idx := strings.IndexByte(text[end:], '\n'); idx >= 0 {
		lineEnd = end + idx
	}
	return lineStart, lineEnd
}
