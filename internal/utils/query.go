// Package utils holds small parsing helpers for query-string parameters.
package utils

import "strconv"

// IntInRange parses s as an int clamped to [lo, hi]. An empty or malformed
// value yields def, which is clamped the same way.
//
//	utils.IntInRange("", 5, 1, 50)   // 5
//	utils.IntInRange("200", 5, 1, 50) // 50
//	utils.IntInRange("0", 5, 1, 50)   // 1
func IntInRange(s string, def, lo, hi int) int {
	n, err := strconv.Atoi(s)
	if s == "" || err != nil {
		n = def
	}
	return min(max(n, lo), hi)
}

// Flag reports whether s is a true boolean literal ("1", "t", "true", ...).
// Anything else, including garbage, is false.
func Flag(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}
