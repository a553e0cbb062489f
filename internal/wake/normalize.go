package wake

import (
	"strings"
	"unicode"
)

// normalize lowercases a transcript, strips punctuation, and collapses
// whitespace, so cancel-phrase matching is forgiving of STT casing and
// trailing punctuation (spec transition 3).
func normalize(s string) string {
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsPunct(r) {
			continue
		}
		b.WriteRune(r)
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

func isCancelPhrase(normalized string) bool {
	_, ok := cancelPhrases[normalized]
	return ok
}
