package matcher

import (
	"unicode/utf8"

	"github.com/agext/levenshtein"
)

// Similarity returns how alike two names are as a percentage between 0 and
// 100, based on the Levenshtein distance of their normalized runes. Two
// empty names are identical.
func Similarity(a, b string) float64 {
	a, b = NormalizeName(a), NormalizeName(b)
	return similarity(a, b, utf8.RuneCountInString(a), utf8.RuneCountInString(b))
}

// similarity scores two normalized names whose rune counts are known
func similarity(a, b string, lenA, lenB int) float64 {
	maxLen := max(lenA, lenB)
	if maxLen == 0 {
		return 100
	}
	d := levenshtein.Distance(a, b, nil)
	return float64(maxLen-d) / float64(maxLen) * 100
}
