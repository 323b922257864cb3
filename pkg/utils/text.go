// Package utils provides shared utilities for text, math, and logging.
package utils

import (
	"fmt"
	"strings"
	"unicode"
)

// Truncate returns s truncated to maxLen characters, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// PrettyLabel turns a model label like "tomato__yellow_leaf_curl_virus" into
// "Tomato – Yellow Leaf Curl Virus".
func PrettyLabel(raw string) string {
	s := strings.ReplaceAll(raw, "__", " – ")
	s = strings.ReplaceAll(s, "_", " ")
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToTitle(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// FormatPct formats a probability as a percentage with one decimal.
func FormatPct(p float64) string {
	return fmt.Sprintf("%.1f%%", p*100)
}
