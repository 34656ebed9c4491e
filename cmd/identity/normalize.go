package identity

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var lower = cases.Lower(language.Und)

// NormalizeUsername trims, applies NFKC and lower-cases, so visually
// identical compatibility forms (full-width letters, ligatures) collide.
func NormalizeUsername(s string) string {
	return lower.String(norm.NFKC.String(strings.TrimSpace(s)))
}

// NormalizeEmail trims and lower-cases the whole address.
func NormalizeEmail(s string) string {
	return lower.String(strings.TrimSpace(s))
}

// LooksLikeEmail reports whether an identifier should be looked up by email.
func LooksLikeEmail(s string) bool {
	at := strings.IndexByte(s, '@')
	return at > 0 && at < len(s)-1
}
