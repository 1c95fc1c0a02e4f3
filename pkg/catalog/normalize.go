package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

var caseFolder = cases.Fold()

// NormalizeName canonicalizes a customer or item name for matching:
// case-fold, strip punctuation, collapse whitespace.
func NormalizeName(s string) string {
	folded := caseFolder.String(s)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
			// Punctuation drops entirely.
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizeSKU canonicalizes a SKU: upper-case, no spaces.
func NormalizeSKU(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

// NormalizeGTIN keeps digits only.
func NormalizeGTIN(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
