package runtime

import (
	"strings"

	"github.com/felixgeelhaar/recall/internal/memory"
)

// Bucket is a knowledge category an episode was classified into.
type Bucket struct {
	Category   string
	Importance string
}

// A token matches a vocabulary word when it equals it or starts with it, so
// "functions" matches "function" and "failed" matches "fail".
var (
	codeVocabulary = []string{
		"function", "method", "class", "variable", "code", "api", "module",
		"package", "interface", "struct", "import", "compile", "syntax",
		"refactor", "algorithm", "endpoint", "query", "script", "library",
	}
	errorVocabulary = []string{
		"error", "bug", "exception", "crash", "fail", "broken", "issue",
		"traceback", "panic", "debug", "problem", "fix",
	}
)

// Classify returns the buckets matched by content, troubleshooting first.
func Classify(content string) []Bucket {
	tokens := memory.Tokenize(content)
	var out []Bucket
	if matches(tokens, errorVocabulary) {
		out = append(out, Bucket{Category: CategoryTroubleshooting, Importance: "high"})
	}
	if matches(tokens, codeVocabulary) {
		out = append(out, Bucket{Category: CategoryCodePatterns, Importance: "medium"})
	}
	return out
}

func matches(tokens, vocabulary []string) bool {
	for _, t := range tokens {
		for _, w := range vocabulary {
			if strings.HasPrefix(t, w) {
				return true
			}
		}
	}
	return false
}
