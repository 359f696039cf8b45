package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics strips combining marks, so "Jiří" becomes "Jiri".
func RemoveDiacritics(s string) string {
	out, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		return s
	}
	return out
}

// NormalizePersonName folds an identity name for comparisons. Case and
// diacritics are dropped and dashes, underscores and runs of whitespace
// become single spaces, so "jan_novak", "Jan-Novák" and " Jan  Novak"
// all fold to "jan novak".
func NormalizePersonName(name string) string {
	folded := strings.ToLower(RemoveDiacritics(name))
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return r == '-' || r == '_' || unicode.IsSpace(r)
	})
	return strings.Join(words, " ")
}

// SamePerson reports whether two identity names fold to the same value.
func SamePerson(a, b string) bool {
	return NormalizePersonName(a) == NormalizePersonName(b)
}
