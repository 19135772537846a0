package completion

import (
	"strings"
	"unicode"
)

// allowedPunct is the punctuation that survives Sanitize.
const allowedPunct = `,.?!:;'"-`

// Sanitize strips every rune that is not a letter, number, underscore,
// whitespace or one of , . ? ! : ; ' " -. It is a pure filter, so applying it
// twice yields the same result as once.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if IsAllowedRune(r) {
			return r
		}
		return -1
	}, s)
}

// IsAllowedRune reports whether r survives Sanitize.
func IsAllowedRune(r rune) bool {
	switch {
	case unicode.IsLetter(r), unicode.IsNumber(r), r == '_':
		return true
	case unicode.IsSpace(r):
		return true
	default:
		return strings.ContainsRune(allowedPunct, r)
	}
}
