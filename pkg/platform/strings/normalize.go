package strings

import (
	"strings"
	"unicode"
)

// NormalizeText lowercases s, drops every rune that is neither a word
// character nor whitespace, and collapses whitespace runs to single spaces.
//
// Example:
//
//	NormalizeText("  Senior Go-Engineer (Remote!) ")
//	// Returns: "senior goengineer remote"
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// TokenSet splits normalized text into a set of distinct tokens.
func TokenSet(s string) map[string]struct{} {
	fields := strings.Fields(NormalizeText(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
