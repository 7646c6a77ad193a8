package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/recall/internal/memory"
	"github.com/felixgeelhaar/recall/internal/runtime"
)

const systemPreamble = "You are an assistant with long-term memory. Use the context below when it is relevant to the user's message."

// Responder adapts p to the controller's response hook. The enriched context
// becomes a system message followed by the recent turns.
func Responder(p Provider) runtime.ResponseFunc {
	return func(ctx context.Context, query string, ec *memory.EnrichedContext) (string, error) {
		resp, err := p.Chat(ctx, Messages(query, ec))
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(resp.Content) == "" {
			return "", fmt.Errorf("%s returned an empty response", p.Name())
		}
		return resp.Content, nil
	}
}

// Messages builds the chat transcript for query.
func Messages(query string, ec *memory.EnrichedContext) []Message {
	msgs := []Message{{Role: "system", Content: RenderContext(ec)}}
	if ec != nil {
		turns := ec.RecentTurns
		// The current query is already the newest turn.
		if n := len(turns); n > 0 && turns[n-1].Role == memory.RoleUser && turns[n-1].Content == query {
			turns = turns[:n-1]
		}
		for _, t := range turns {
			msgs = append(msgs, Message{Role: string(t.Role), Content: t.Content})
		}
	}
	return append(msgs, Message{Role: "user", Content: query})
}

// RenderContext formats enriched context as a system prompt.
func RenderContext(ec *memory.EnrichedContext) string {
	var sb strings.Builder
	sb.WriteString(systemPreamble)
	if ec == nil {
		return sb.String()
	}

	if len(ec.WorkingContext) > 0 {
		sb.WriteString("\n\nWorking context:")
		for _, it := range ec.WorkingContext {
			fmt.Fprintf(&sb, "\n- [%s] %s: %s", memory.ImportanceLabel(it.Importance), it.Topic, it.Details)
		}
	}
	if len(ec.RelevantKnowledge) > 0 {
		sb.WriteString("\n\nRelevant knowledge:")
		for _, n := range ec.RelevantKnowledge {
			fmt.Fprintf(&sb, "\n- %s/%s: %s", n.Category, n.Topic, n.Content)
		}
	}
	if len(ec.RecentConversations) > 0 {
		sb.WriteString("\n\nEarlier in this session:")
		for _, e := range ec.RecentConversations {
			fmt.Fprintf(&sb, "\n- %s: %s", e.Type, e.Content)
		}
	}
	return sb.String()
}
