package matcher

import (
	"strings"
	"unicode"
)

// Query is a user query prepared for matching.
type Query struct {
	Raw     string
	Lowered string
	Tokens  []string
}

// Normalize lowercases the query and splits it into word tokens on anything that
// is not a letter or digit. Blank input is rejected with ErrEmptyQuery.
func Normalize(raw string) (Query, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Query{}, ErrEmptyQuery
	}

	lowered := strings.ToLower(trimmed)
	tokens := strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	return Query{Raw: trimmed, Lowered: lowered, Tokens: tokens}, nil
}

// hasTerm reports whether term occurs anywhere in the lowered query.
func (q Query) hasTerm(term string) bool {
	return strings.Contains(q.Lowered, term)
}
