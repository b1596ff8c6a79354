package domain

import "math"

// SafeScore replaces NaN and infinities with fallback.
func SafeScore(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

// Clamp01 bounds v to [0,1]; non-finite values become 0.
func Clamp01(v float64) float64 {
	v = SafeScore(v, 0)
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
