package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// NormalizeAnswer trims surrounding whitespace and applies Unicode case folding.
func NormalizeAnswer(s string) string {
	return cases.Fold().String(strings.TrimFunc(s, unicode.IsSpace))
}

// AnswerMatches compares a submission with the accepted answer after normalizing both.
func AnswerMatches(submitted, accepted string) bool {
	want := NormalizeAnswer(accepted)
	return want != "" && NormalizeAnswer(submitted) == want
}
