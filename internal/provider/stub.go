package provider

import (
	"context"
	"fmt"
	"time"
)

// StubProvider answers without a model. Queued Responses are returned first;
// after that it acknowledges the last user message.
type StubProvider struct {
	Responses []Response
	Delay     time.Duration
}

func NewStubProvider() *StubProvider {
	return &StubProvider{}
}

func (m *StubProvider) Chat(ctx context.Context, messages []Message) (*Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(m.Delay):
	}

	if len(m.Responses) > 0 {
		resp := m.Responses[0]
		m.Responses = m.Responses[1:]
		return &resp, nil
	}

	var last string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			last = messages[i].Content
			break
		}
	}
	return &Response{Content: fmt.Sprintf("Acknowledged: %s", last)}, nil
}

func (m *StubProvider) Name() string {
	return "stub"
}
