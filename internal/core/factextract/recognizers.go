package factextract

import (
	"regexp"

	"github.com/kirillkom/docqa-retrieval/internal/core/domain"
)

// verdict is the outcome of one validation rule. The first rule that
// does not pass decides; a match that passes every rule is accepted.
type verdict int

const (
	pass verdict = iota
	accept
	reject
)

type rule struct {
	name  string
	check func(text string, m match) verdict
}

type pattern struct {
	name  string
	re    *regexp.Regexp
	group int
}

// recognizer describes how one fact kind is found, validated and normalized.
// Patterns are tried in order; earlier patterns claim their spans first.
type recognizer struct {
	kind        domain.FactKind
	patterns    []pattern
	rules       []rule
	normalize   func(raw string) string
	distanceCap int
	table       func(row tableRow) (match, bool)
}

const (
	dayAlternation = `lunedì|lunedi|lun|martedì|martedi|mar|mercoledì|mercoledi|mer|giovedì|giovedi|gio|` +
		`venerdì|venerdi|ven|sabato|sab|domenica|dom|prefestivi|festivi|feriali`
	clockRange = `\d{1,2}[:.]\d{2}\s*(?:-|–|—|alle|a)\s*\d{1,2}[:.]\d{2}`
	wordRange  = `dalle\s+\d{1,2}(?:[:.]\d{2})?\s+alle\s+\d{1,2}(?:[:.]\d{2})?`
	anyRange   = `(?:` + clockRange + `|` + wordRange + `)`
)

var (
	phoneEmergencyRe = regexp.MustCompile(`(?:^|[^\d+])(112|113|114|115|117|118|1515|1522|116117)(?:[^\d]|$)`)
	phoneGenericRe   = regexp.MustCompile(`(?:^|[^\p{L}\d+])((?:\+|00)?(?:39[\s.\-]?)?\(?\d{2,4}\)?(?:[\s.\-/]?\d{2,8}){1,4})`)

	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9\-]+(?:\.[a-z0-9\-]+)*\.[a-z]{2,}`)

	addressRe = regexp.MustCompile(`(?:^|[^\p{L}])(` +
		`(?i:via|viale|v\.le|piazza|p\.zza|piazzale|p\.le|corso|c\.so|largo|vicolo|strada|contrada|località|loc\.|borgo|lungomare|salita|circonvallazione)` +
		`\s+[\p{Lu}\d][\p{L}\d'’.]*` +
		`(?:\s+(?:[\p{Lu}\d][\p{L}\d'’.]*|d[aeiu]|d[aeiu]l|d[aeiu]ll[aeo]|dei|degli|delle|san|santa|sant'|sant’)){0,5}` +
		`(?:\s*,?\s*(?:n\.?\s*|nr\.?\s*|n°\s*)?\d{1,4}(?:\s?/\s?[A-Za-z0-9]{1,3}|[A-Za-z])?)?` +
		`(?:\s*[,\-–]?\s*\d{5}(?:\s+\p{Lu}[\p{L}'’]+(?:\s+\(?[A-Z]{2}\)?)?)?)?` +
		`)`)

	scheduleDayRe = regexp.MustCompile(`(?:^|[^\p{L}])(` +
		`(?i:(?:dal\s+)?(?:` + dayAlternation + `)\.?(?:\s*(?:-|–|/|al|a|e)\s*(?:` + dayAlternation + `)\.?)?)` +
		`\s*(?::|-|–|,)?\s*(?i:ore\s+)?` +
		`(?i:` + anyRange + `(?:\s*(?:,|;|/|e)\s*` + anyRange + `){0,3})` +
		`)`)
	scheduleRangeRe = regexp.MustCompile(`(?i)(?:^|[^\d:.])(` + anyRange + `)`)
)

var recognizers = map[domain.FactKind]recognizer{
	domain.FactPhone: {
		kind: domain.FactPhone,
		patterns: []pattern{
			{name: patternEmergency, re: phoneEmergencyRe, group: 1},
			{name: "phone", re: phoneGenericRe, group: 1},
		},
		rules: []rule{
			{name: "emergency_short_code", check: emergencyShortCode},
			{name: "adjacent_alnum", check: rejectAdjacentAlnum},
			{name: "fiscal_code", check: rejectFiscalCode},
			{name: "vat_number", check: rejectVATNumber},
			{name: "date", check: rejectDateLike},
			{name: "clock_time", check: rejectClockTime},
			{name: "postal_code", check: rejectPostalCode},
			{name: "currency", check: rejectCurrency},
			{name: "phone_shape", check: phoneShape},
		},
		normalize:   normalizePhone,
		distanceCap: 400,
	},
	domain.FactEmail: {
		kind: domain.FactEmail,
		patterns: []pattern{
			{name: "email", re: emailRe},
		},
		rules: []rule{
			{name: "asset_name", check: rejectAssetEmail},
		},
		normalize:   normalizeEmail,
		distanceCap: 400,
	},
	domain.FactAddress: {
		kind: domain.FactAddress,
		patterns: []pattern{
			{name: "street", re: addressRe, group: 1},
		},
		rules: []rule{
			{name: "address_evidence", check: addressEvidence},
		},
		normalize:   normalizeAddress,
		distanceCap: 500,
	},
	domain.FactSchedule: {
		kind: domain.FactSchedule,
		patterns: []pattern{
			{name: patternDayRange, re: scheduleDayRe, group: 1},
			{name: "hour_range", re: scheduleRangeRe, group: 1},
		},
		rules: []rule{
			{name: "clock_bounds", check: rejectInvalidClock},
			{name: "early_hours", check: rejectEarlyHours},
			{name: "date_context", check: rejectDateContext},
			{name: "time_context", check: requireTimeContext},
		},
		normalize:   normalizeSchedule,
		distanceCap: 350,
		table:       scheduleFromRow,
	},
}
