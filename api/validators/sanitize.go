package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeString trims input, drops control characters other than newline
// and tab, and truncates to maxLen runes when maxLen is positive. Truncation
// never splits a multi-byte character.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == utf8.RuneError || (unicode.IsControl(r) && r != '\n' && r != '\t') {
			return -1
		}
		return r
	}, strings.TrimSpace(input))
	if maxLen > 0 && utf8.RuneCountInString(cleaned) > maxLen {
		cleaned = string([]rune(cleaned)[:maxLen])
	}
	return strings.TrimSpace(cleaned)
}
