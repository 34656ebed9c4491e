package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// commonPasswords is a deliberately short deny list; the length floor does
// most of the work.
var commonPasswords = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"password123": {},
	"qwerty":      {},
	"qwerty123":   {},
	"letmein":     {},
	"iloveyou":    {},
	"welcome":     {},
	"admin123":    {},
	"basecampy":   {},
}

// Validate checks policy for a new or changed password. Length is counted in
// runes. Case is significant everywhere except the deny list.
func (c Config) Validate(password string) error {
	n := utf8.RuneCountInString(password)

	switch {
	case n < c.Policy.MinLength:
		return ErrPasswordTooShort
	case n > c.Policy.MaxLength:
		return ErrPasswordTooLong
	case c.Policy.RejectVeryWeak && looksVeryWeak(password):
		return ErrWeakPassword
	}
	return nil
}

// looksVeryWeak flags blank, single-character, short PIN, ascending or
// descending runs ("abcdef", "654321") and deny-listed passwords.
func looksVeryWeak(pw string) bool {
	s := strings.TrimSpace(pw)
	runes := []rune(s)
	if len(runes) == 0 {
		return true
	}

	if _, ok := commonPasswords[strings.ToLower(s)]; ok {
		return true
	}

	if isRun(runes, 0) || isRun(runes, 1) || isRun(runes, -1) {
		return true
	}

	digits := 0
	for _, r := range runes {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits == len(runes) && len(runes) < 12
}

// isRun reports whether every rune differs from its predecessor by step.
func isRun(runes []rune, step rune) bool {
	for i := 1; i < len(runes); i++ {
		if unicode.ToLower(runes[i])-unicode.ToLower(runes[i-1]) != step {
			return false
		}
	}
	return true
}
