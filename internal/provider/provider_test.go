package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/felixgeelhaar/recall/internal/config"
	"github.com/felixgeelhaar/recall/internal/memory"
)

func TestOpenAIProvider(t *testing.T) {
	var got struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{"message": {"content": "hello", "role": "assistant"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer server.Close()

	p, _ := NewOpenAIProvider("test-key", server.URL, "gpt-4")
	if p.Name() != "openai" {
		t.Errorf("Expected 'openai', got '%s'", p.Name())
	}

	resp, err := p.Chat(context.Background(), []Message{{Role: "system", Content: "ctx"}, {Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("Expected 'hello', got '%s'", resp.Content)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("Expected 15 tokens, got %d", resp.Usage.TotalTokens)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Errorf("Expected system message to be forwarded, got %+v", got.Messages)
	}
}

func TestOllamaProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message": {"content": "hi from ollama"}, "done": true, "eval_count": 10, "prompt_eval_count": 5}`))
	}))
	defer server.Close()

	p, err := NewOllamaProvider(server.URL, "llama3")
	if err != nil {
		t.Fatalf("NewOllamaProvider failed: %v", err)
	}
	if p.Name() != "ollama" {
		t.Errorf("Expected 'ollama', got '%s'", p.Name())
	}

	resp, err := p.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "hi from ollama" {
		t.Errorf("Expected 'hi from ollama', got '%s'", resp.Content)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("Expected 15 tokens, got %d", resp.Usage.TotalTokens)
	}
}

func TestAnthropicProvider(t *testing.T) {
	var got anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_123",
			"content": [{"type": "text", "text": "hello from claude"}],
			"usage": {"input_tokens": 5, "output_tokens": 5}
		}`))
	}))
	defer server.Close()

	p, _ := NewAnthropicProvider("test-key", "claude-3")
	p.SetBaseURL(server.URL)
	if p.Name() != "anthropic" {
		t.Errorf("Expected 'anthropic', got '%s'", p.Name())
	}

	resp, err := p.Chat(context.Background(), []Message{
		{Role: "system", Content: "remember things"},
		{Role: "user", Content: "hi"},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "hello from claude" {
		t.Errorf("Expected 'hello from claude', got '%s'", resp.Content)
	}
	if got.System != "remember things" {
		t.Errorf("Expected system prompt out of band, got %q", got.System)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" {
		t.Errorf("Expected one user message, got %+v", got.Messages)
	}
}

func TestGeminiProvider_Name(t *testing.T) {
	p, err := NewGeminiProvider("fake-key", "gemini-pro")
	if err != nil {
		t.Logf("Skipping Gemini Name test due to client init error: %v", err)
		return
	}
	defer p.Close()
	if p.Name() != "gemini" {
		t.Errorf("Expected 'gemini', got '%s'", p.Name())
	}
}

func TestStubProvider(t *testing.T) {
	p := NewStubProvider()
	if p.Name() != "stub" {
		t.Errorf("Expected 'stub', got '%s'", p.Name())
	}
	resp, err := p.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "Acknowledged: hi" {
		t.Errorf("Expected acknowledgement, got '%s'", resp.Content)
	}

	p.Responses = []Response{{Content: "queued"}}
	resp, _ = p.Chat(context.Background(), nil)
	if resp.Content != "queued" {
		t.Errorf("Expected queued response, got '%s'", resp.Content)
	}
}

func TestStubProvider_Timeout(t *testing.T) {
	p := NewStubProvider()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Delay = 1 << 30
	_, err := p.Chat(ctx, []Message{{Content: "hi"}})
	if err == nil {
		t.Error("Expected error on canceled context")
	}
}

func TestOpenAIProvider_Init(t *testing.T) {
	_, err := NewOpenAIProvider("", "", "")
	if err == nil {
		t.Error("Expected error for empty key")
	}
}

func TestProvider_Errors(t *testing.T) {
	t.Run("OpenAI Error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(500)
		}))
		defer server.Close()
		p, _ := NewOpenAIProvider("key", server.URL, "")
		_, err := p.Chat(context.Background(), []Message{{Content: "hi"}})
		if err == nil {
			t.Error("Expected error")
		}
	})

	t.Run("Anthropic Error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(401)
		}))
		defer server.Close()
		p, _ := NewAnthropicProvider("key", "")
		p.SetBaseURL(server.URL)
		_, err := p.Chat(context.Background(), []Message{{Content: "hi"}})
		if err == nil {
			t.Error("Expected error")
		}
	})
}

func TestNew(t *testing.T) {
	testCases := []struct {
		cfg     config.ProviderConfig
		name    string
		wantErr bool
	}{
		{config.ProviderConfig{}, "stub", false},
		{config.ProviderConfig{Name: "openai", APIKey: "k"}, "openai", false},
		{config.ProviderConfig{Name: "openai"}, "", true},
		{config.ProviderConfig{Name: "ollama", BaseURL: "http://127.0.0.1:1"}, "ollama", false},
		{config.ProviderConfig{Name: "anthropic", APIKey: "k"}, "anthropic", false},
		{config.ProviderConfig{Name: "cli", CLIPath: "/bin/echo"}, "cli-/bin/echo", false},
		{config.ProviderConfig{Name: "mystery"}, "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.cfg.Name, func(t *testing.T) {
			p, err := New(tc.cfg)
			if tc.wantErr {
				if err == nil {
					t.Fatal("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if p.Name() != tc.name {
				t.Errorf("Expected %q, got %q", tc.name, p.Name())
			}
		})
	}
}

func TestRenderContext(t *testing.T) {
	ec := &memory.EnrichedContext{
		WorkingContext:    []memory.WorkingContextItem{{Topic: "goal", Details: "ship v1", Importance: 5}},
		RelevantKnowledge: []memory.KnowledgeNode{{Category: "infra", Topic: "redis", Content: "session store"}},
	}
	out := RenderContext(ec)
	for _, want := range []string{systemPreamble, "- [high] goal: ship v1", "- infra/redis: session store"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Earlier in this session") {
		t.Error("Expected empty sections to be omitted")
	}
	if RenderContext(nil) != systemPreamble {
		t.Error("Expected bare preamble for nil context")
	}
}

func TestMessages_DropsDuplicateQueryTurn(t *testing.T) {
	ec := &memory.EnrichedContext{RecentTurns: []memory.ConversationTurn{
		{Role: memory.RoleUser, Content: "first"},
		{Role: memory.RoleAssistant, Content: "reply"},
		{Role: memory.RoleUser, Content: "second"},
	}}
	msgs := Messages("second", ec)
	if len(msgs) != 4 {
		t.Fatalf("Expected system + 2 turns + query, got %d", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[3].Content != "second" || msgs[2].Role != "assistant" {
		t.Errorf("Unexpected transcript: %+v", msgs)
	}
}

func TestResponder(t *testing.T) {
	stub := NewStubProvider()
	respond := Responder(stub)

	out, err := respond(context.Background(), "hello", &memory.EnrichedContext{})
	if err != nil {
		t.Fatalf("respond failed: %v", err)
	}
	if out != "Acknowledged: hello" {
		t.Errorf("Expected acknowledgement, got %q", out)
	}

	stub.Responses = []Response{{Content: "  "}}
	if _, err := respond(context.Background(), "hello", nil); err == nil {
		t.Error("Expected error for blank response")
	}
}

func TestCLIProvider(t *testing.T) {
	p, err := NewCLIProvider("/bin/echo", []string{"-n"})
	if err != nil {
		t.Fatalf("NewCLIProvider failed: %v", err)
	}
	resp, err := p.Chat(context.Background(), []Message{{Role: "user", Content: "ping"}})
	if err != nil {
		t.Skipf("echo unavailable: %v", err)
	}
	if resp.Content != "ping" {
		t.Errorf("Expected 'ping', got %q", resp.Content)
	}

	if _, err := NewCLIProvider("", nil); err == nil {
		t.Error("Expected error for empty binary path")
	}
}
