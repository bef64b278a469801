// ABOUTME: Small string helpers shared by logging, error messages, and REPL output
// ABOUTME: Truncation that never splits a multi-byte UTF-8 character

package textutil

import "unicode/utf8"

const ellipsis = "..."

// Truncate shortens s to at most maxLen bytes, ending in "..." when cut.
// The cut falls on a rune boundary.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= len(ellipsis) {
		return ellipsis[:max(maxLen, 0)]
	}
	cut := maxLen - len(ellipsis)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + ellipsis
}
