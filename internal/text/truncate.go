// Package text holds small helpers for user-supplied and generated text.
package text

import "strings"

// Clip trims surrounding whitespace and truncates s to at most max
// characters (runes, so multi-byte input is never cut mid-character). A
// truncated result carries a trailing ellipsis so the cut is visible in
// logs and delivered content.
func Clip(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
