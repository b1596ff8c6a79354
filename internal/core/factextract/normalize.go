package factextract

import "strings"

func normalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	digits := digitsOf(raw)
	switch {
	case digits == "":
		return ""
	case strings.HasPrefix(raw, "+"):
		return "+" + digits
	case strings.HasPrefix(raw, "00") && len(digits) > 2:
		return "+" + digits[2:]
	}
	return digits
}

func normalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(raw), "."))
}

func normalizeAddress(raw string) string {
	return strings.Trim(strings.Join(strings.Fields(raw), " "), " ,.;:-–")
}
