package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// dropped during sanitizing: invalid UTF-8, NUL and other control runes
// except common whitespace
var unencodable = runes.Predicate(func(r rune) bool {
	if r == utf8.RuneError {
		return true
	}
	switch r {
	case '\n', '\r', '\t':
		return false
	}
	return unicode.IsControl(r) || unicode.Is(unicode.Cs, r)
})

// Sanitize lossily re-encodes s as NFC UTF-8, dropping anything that
// cannot be represented cleanly.
func Sanitize(s string) string {
	t := transform.Chain(runes.Remove(unencodable), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToValidUTF8(s, "")
	}
	return out
}
