package memory

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// NoConversationsSummary is the summary of an empty conversation list.
const NoConversationsSummary = "No conversations to summarize."

// Tokenize lower-cases text, strips punctuation and symbols, and splits on
// whitespace.
func Tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, text)
	return strings.Fields(cleaned)
}

// Keywords returns the tokens of text longer than three characters,
// de-duplicated in first-seen order.
func Keywords(text string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, w := range Tokenize(text) {
		if utf8.RuneCountInString(w) <= 3 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// ImportanceLabel maps a 1-5 importance to high, medium or low.
func ImportanceLabel(importance int) string {
	switch {
	case importance >= 5:
		return "high"
	case importance >= 3:
		return "medium"
	default:
		return "low"
	}
}
