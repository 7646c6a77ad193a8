package episodic

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/felixgeelhaar/recall/internal/memory"
)

const maxTopicWords = 5

// stopWords are excluded from topic words. Words of three characters or
// fewer are dropped before this set is consulted.
var stopWords = map[string]bool{
	"about": true, "after": true, "again": true, "also": true, "because": true,
	"been": true, "before": true, "being": true, "cant": true, "could": true,
	"does": true, "doesnt": true, "dont": true, "each": true, "from": true,
	"have": true, "hello": true, "here": true, "into": true, "just": true,
	"know": true, "like": true, "make": true, "more": true, "much": true,
	"need": true, "only": true, "other": true, "over": true, "please": true,
	"should": true, "some": true, "such": true, "than": true, "thank": true,
	"thanks": true, "that": true, "their": true, "them": true, "then": true,
	"there": true, "these": true, "they": true, "think": true, "this": true,
	"those": true, "very": true, "want": true, "were": true, "what": true,
	"when": true, "where": true, "which": true, "while": true, "will": true,
	"with": true, "wont": true, "would": true, "your": true, "yours": true,
}

var roleOrder = []string{string(memory.RoleUser), string(memory.RoleAssistant), string(memory.RoleSystem)}

// Summarize renders per-role counts, the covered period and up to five topic
// words by frequency. Equal frequencies keep first-seen order.
func Summarize(list []memory.Episode) string {
	if len(list) == 0 {
		return memory.NoConversationsSummary
	}

	counts := make(map[string]int)
	for _, e := range list {
		counts[e.Type]++
	}
	var parts []string
	for _, role := range roleOrder {
		if n := counts[role]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", role, n))
			delete(counts, role)
		}
	}
	other := make([]string, 0, len(counts))
	for role := range counts {
		other = append(other, role)
	}
	sort.Strings(other)
	for _, role := range other {
		parts = append(parts, fmt.Sprintf("%s: %d", role, counts[role]))
	}

	start, end := span(list)
	topics := TopicWords(list, maxTopicWords)
	topicText := "none"
	if len(topics) > 0 {
		topicText = strings.Join(topics, ", ")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d messages (%s).\n", len(list), strings.Join(parts, ", "))
	fmt.Fprintf(&sb, "Period: %s to %s.\n", start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "Topics: %s.", topicText)
	return sb.String()
}

// TopicWords returns up to n of the most frequent content words in list.
func TopicWords(list []memory.Episode, n int) []string {
	freq := make(map[string]int)
	var order []string
	for _, e := range list {
		for _, w := range memory.Tokenize(e.Content) {
			if utf8.RuneCountInString(w) <= 3 || stopWords[w] {
				continue
			}
			if freq[w] == 0 {
				order = append(order, w)
			}
			freq[w]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return freq[order[i]] > freq[order[j]] })
	if len(order) > n {
		order = order[:n]
	}
	return order
}

func span(list []memory.Episode) (start, end time.Time) {
	for i, e := range list {
		if i == 0 || e.Timestamp.Before(start) {
			start = e.Timestamp
		}
		if i == 0 || e.Timestamp.After(end) {
			end = e.Timestamp
		}
	}
	return start, end
}
