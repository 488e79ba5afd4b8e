package validation

import (
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var strictHTMLPolicy = bluemonday.StrictPolicy()

// SanitizeText strips all HTML and unprintable characters from free-text user
// input such as position notes, and trims surrounding whitespace.
func SanitizeText(s string) string {
	return strings.TrimSpace(StripUnprintable(strictHTMLPolicy.Sanitize(s)))
}

// StripUnprintable removes non-printable characters, allowing common whitespace
// like space, tab, newline, and carriage return.
func StripUnprintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1
	}, s)
}
