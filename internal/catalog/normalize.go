package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Normalize folds a name to its comparison form: NFKC normalization, narrow
// width folding, lower case, punctuation stripped, whitespace collapsed away.
// OCR output mixes full-width and half-width punctuation freely, so both are
// removed rather than mapped.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = width.Narrow.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// qualifierSeparators start the qualifier suffix of a card name. Champion
// cards print as "base, qualifier" (e.g. "奇亚娜, 所向披靡"); variant tags
// appear in parentheses.
var qualifierSeparators = []string{",", "，", "(", "（"}

func qualifierCut(s string) int {
	cut := len(s)
	for _, sep := range qualifierSeparators {
		if i := strings.Index(s, sep); i >= 0 && i < cut {
			cut = i
		}
	}
	return cut
}

// BaseName strips the qualifier suffix from a card name, returning the root
// identity. Names without a qualifier are returned trimmed but intact.
func BaseName(s string) string {
	return strings.TrimSpace(s[:qualifierCut(s)])
}

// Qualifier returns the stripped suffix of a card name, without its leading
// separator, or "" when the name has none.
func Qualifier(s string) string {
	rest := strings.TrimSpace(s[qualifierCut(s):])
	for _, sep := range qualifierSeparators {
		rest = strings.TrimPrefix(rest, sep)
	}
	rest = strings.TrimSuffix(rest, ")")
	rest = strings.TrimSuffix(rest, "）")
	return strings.TrimSpace(rest)
}
