package tgui

import "unicode/utf8"

// TruncRunes returns s truncated to at most n runes, ending with "…" when
// something was cut.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	keep := n - maxEllipsisLen
	i := 0
	for pos := range s {
		if i == keep {
			return s[:pos] + "…"
		}
		i++
	}
	return s
}
