package pdfreport

import (
	"strings"
	"unicode"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

var typographic = strings.NewReplacer(
	"\u2192", "->",
	"\u2013", "-",
	"\u2014", "-",
	"\u2212", "-",
	"\u2018", "'",
	"\u2019", "'",
	"\u201a", "'",
	"\u201c", `"`,
	"\u201d", `"`,
	"\u201e", `"`,
	"\u2026", "...",
	"\u00a0", " ",
	"\t", "  ",
	"\r", "",
)

// Sanitize maps arbitrary text onto the characters the report font can show.
// Typographic punctuation becomes its ASCII equivalent, tabs become two spaces
// and carriage returns are removed. Characters outside Windows-1252 become '?'
// and control characters other than '\n' are dropped. The empty string stands
// for missing input and yields the empty string.
//
// Sanitize is idempotent.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	s = typographic.Replace(norm.NFC.String(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n':
			b.WriteRune(r)
		case unicode.IsControl(r):
			// dropped
		case encodable(r):
			b.WriteRune(r)
		default:
			b.WriteByte('?')
		}
	}
	return b.String()
}

func encodable(r rune) bool {
	_, ok := charmap.Windows1252.EncodeRune(r)
	return ok
}
