package chat

import (
	"regexp"
	"strings"
	"unicode"
)

// PlaceholderTitle is the title the backend assigns to a fresh session.
// Title derivation only ever runs while a session still carries it.
const PlaceholderTitle = "New Chat"

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// deriveTitle builds a short session title from the first question.
// Tokens are maximal runs of letters or digits, Unicode-aware: fewer than
// 3 tokens keeps them all, otherwise the first 4 are used, each title-cased
// and joined with spaces. A question with no tokens keeps the placeholder.
func deriveTitle(question string) string {
	words := wordPattern.FindAllString(question, -1)
	if len(words) == 0 {
		return PlaceholderTitle
	}
	if len(words) > 4 {
		words = words[:4]
	}
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
