package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlnum  = regexp.MustCompile(`[^a-z0-9]+`)
	validSlug = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

// Characters that do not decompose into a base letter plus a combining mark.
var specialCases = strings.NewReplacer(
	"ı", "i", "ß", "ss", "ø", "o", "æ", "ae", "œ", "oe", "ł", "l", "đ", "d",
)

// Generate creates a URL-friendly slug from a restaurant name or tenant path
// segment. Diacritics are folded to ASCII.
//
// Examples:
//   - "Café Olé" → "cafe-ole"
//   - "Çiya Sofrası" → "ciya-sofrasi"
//   - "  Joe's   Diner! " → "joe-s-diner"
func Generate(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = specialCases.Replace(s)

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}

	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Valid reports whether s is already in canonical slug form.
func Valid(s string) bool {
	return validSlug.MatchString(s)
}
