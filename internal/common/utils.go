package common

import (
	"math"
	"strconv"
	"strings"
)

// HasAny returns true if s contains any of the substrings.
func HasAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// RoundHalfUp rounds to the nearest integer with ties going toward +Inf,
// so -75.5 becomes -75.
func RoundHalfUp(x float64) int64 {
	return int64(math.Floor(x + 0.5))
}

// FormatCoord renders a coordinate with the shortest exact representation so
// identical inputs always produce identical keys.
func FormatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
