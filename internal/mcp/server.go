// Package mcp exposes the memory controller as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/felixgeelhaar/recall/internal/guard"
	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/felixgeelhaar/recall/internal/runtime"
)

// Version is reported to MCP clients.
var Version = "0.1.0"

// Server binds the controller's operations to MCP tools.
type Server struct {
	ctrl    *runtime.Controller
	guard   *guard.Guard
	respond runtime.ResponseFunc
	obs     *observe.Observer
	srv     *sdk.Server
}

// NewServer registers every tool. respond answers process_interaction; nil
// uses the controller's placeholder. A nil guard allows every write.
func NewServer(ctrl *runtime.Controller, g *guard.Guard, respond runtime.ResponseFunc, obs *observe.Observer) *Server {
	if obs == nil {
		obs = observe.Discard()
	}
	s := &Server{ctrl: ctrl, guard: g, respond: respond, obs: obs}
	s.srv = sdk.NewServer(&sdk.Implementation{
		Name:    "recall",
		Version: Version,
	}, nil)
	s.register()
	return s
}

// MCP returns the underlying protocol server.
func (s *Server) MCP() *sdk.Server { return s.srv }

// Run serves a single client over stdio until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.obs.Log().Info().Str("version", Version).Msg("serving MCP over stdio")
	if err := s.srv.Run(ctx, &sdk.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

func (s *Server) register() {
	// Short-term memory
	sdk.AddTool(s.srv, &sdk.Tool{
		Name:        "store_context",
		Description: "Store a value in short-term memory under a key, optionally expiring after ttl_seconds",
	}, s.StoreContext)

	sdk.AddTool(s.srv, &sdk.Tool{
		Name:        "get_context",
		Description: "Read a short-term memory value; null when missing or expired",
	}, s.GetContext)

	sdk.AddTool(s.srv, &sdk.Tool{
		Name:        "add_working_context",
		Description: "Add a working context item with importance 1-5",
	}, s.AddWorkingContext)

	sdk.AddTool(s.srv, &sdk.Tool{
		Name:        "get_working_context",
		Description: "List working context items, most important first",
	}, s.GetWorkingContext)

	// Episodic memory
	sdk.AddTool(s.srv, &sdk.Tool{
		Name:        "store_conversation",
		Description: "Log a conversation entry (role user, assistant or system) to episodic memory",
	}, s.StoreConversation)

	sdk.AddTool(s.srv, &sdk.Tool{
		Name:        "get_conversations",
		Description: "Query logged conversations, newest first, filtered by session, role and RFC3339 time range",
	}, s.GetConversations)

	sdk.AddTool(s.srv, &sdk.Tool{
		Name:        "summarize_session",
		Description: "Summarize a session; without session_id the active session is summarized and the summary stored",
	}, s.SummarizeSession)

	// Semantic memory
	sdk.AddTool(s.srv, &sdk.Tool{
		Name:        "store_knowledge",
		Description: "Create or update the knowledge node identified by category and topic",
	}, s.StoreKnowledge)

	sdk.AddTool(s.srv, &sdk.Tool{
		Name:        "get_knowledge",
		Description: "Fetch a knowledge node by id or by category and topic; null when missing",
	}, s.GetKnowledge)

	sdk.AddTool(s.srv, &sdk.Tool{
		Name:        "search_knowledge",
		Description: "Substring search over knowledge topics and content, ranked by confidence then recency",
	}, s.SearchKnowledge)

	sdk.AddTool(s.srv, &sdk.Tool{
		Name:        "create_relationship",
		Description: "Create or update a typed relationship between two existing knowledge nodes",
	}, s.CreateRelationship)

	sdk.AddTool(s.srv, &sdk.Tool{
		Name:        "get_relationships",
		Description: "List relationships of a node (direction outgoing, incoming or both)",
	}, s.GetRelationships)

	// Controller
	sdk.AddTool(s.srv, &sdk.Tool{
		Name:        "consolidate_memory",
		Description: "Promote important working context to knowledge and log a session summary; optionally extract knowledge from recent conversations",
	}, s.ConsolidateMemory)

	sdk.AddTool(s.srv, &sdk.Tool{
		Name:        "enrich_context",
		Description: "Assemble working context, recent conversations and relevant knowledge for a query",
	}, s.EnrichContext)

	sdk.AddTool(s.srv, &sdk.Tool{
		Name:        "process_interaction",
		Description: "Run a query through the full memory workflow and return the response",
	}, s.ProcessInteraction)
}

func toolError(format string, args ...any) *sdk.CallToolResult {
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*sdk.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: string(data)}},
	}, nil, nil
}

// checkWrite applies the guard to a knowledge write.
func (s *Server) checkWrite(category, content string) *sdk.CallToolResult {
	if s.guard == nil {
		return nil
	}
	v := s.guard.CheckCategory(category)
	if v == nil {
		v = s.guard.CheckContent(content)
	}
	if v == nil {
		return nil
	}
	s.obs.Log().Warn().Str("rule", v.Rule).Str("category", category).Msg("guard blocked tool call")
	return toolError("Blocked by policy (%s): %s", v.Rule, v.Message)
}
