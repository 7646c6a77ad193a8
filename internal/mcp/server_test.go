package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/recall/internal/guard"
	"github.com/felixgeelhaar/recall/internal/memory"
	"github.com/felixgeelhaar/recall/internal/memory/episodic"
	"github.com/felixgeelhaar/recall/internal/memory/semantic"
	"github.com/felixgeelhaar/recall/internal/memory/shortterm"
	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/felixgeelhaar/recall/internal/runtime"
	"github.com/felixgeelhaar/recall/internal/store"
)

func setup(t *testing.T, g *guard.Guard) *sdk.ClientSession {
	t.Helper()
	repo := store.NewMemoryStore()
	obs := observe.Discard()
	cfg := memory.DefaultConfig()
	st := shortterm.New(repo, obs, cfg)
	ctrl := runtime.New(memory.Stores{
		ShortTerm: st,
		Episodic:  episodic.New(repo, st, obs, cfg),
		Semantic:  semantic.New(repo, obs),
	}, obs, cfg)

	srv := NewServer(ctrl, g, func(_ context.Context, q string, _ *memory.EnrichedContext) (string, error) {
		return "echo: " + q, nil
	}, obs)

	ctx := context.Background()
	clientTransport, serverTransport := sdk.NewInMemoryTransports()
	_, err := srv.MCP().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func call(t *testing.T, session *sdk.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &sdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err, name)
	require.NotEmpty(t, result.Content, name)
	tc, ok := result.Content[0].(*sdk.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text, result.IsError
}

func callJSON(t *testing.T, session *sdk.ClientSession, name string, args map[string]any, out any) {
	t.Helper()
	text, isErr := call(t, session, name, args)
	require.False(t, isErr, "%s returned error: %s", name, text)
	require.NoError(t, json.Unmarshal([]byte(text), out), text)
}

func TestListTools(t *testing.T) {
	session := setup(t, nil)

	result, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := map[string]bool{}
	for _, tool := range result.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{
		"store_context", "get_context", "add_working_context", "get_working_context",
		"store_conversation", "get_conversations", "summarize_session",
		"store_knowledge", "get_knowledge", "search_knowledge",
		"create_relationship", "get_relationships",
		"consolidate_memory", "enrich_context", "process_interaction",
	} {
		assert.True(t, names[want], "missing tool %s", want)
	}
	assert.Len(t, result.Tools, 15)
}

func TestContextTools(t *testing.T) {
	session := setup(t, nil)

	var stored map[string]any
	callJSON(t, session, "store_context", map[string]any{"key": "theme", "value": map[string]any{"mode": "dark"}}, &stored)
	assert.Equal(t, true, stored["stored"])

	var got struct {
		Value map[string]any `json:"value"`
	}
	callJSON(t, session, "get_context", map[string]any{"key": "theme"}, &got)
	assert.Equal(t, "dark", got.Value["mode"])

	var missing map[string]any
	callJSON(t, session, "get_context", map[string]any{"key": "absent"}, &missing)
	assert.Nil(t, missing["value"])
}

func TestWorkingContextTools(t *testing.T) {
	session := setup(t, nil)

	var added map[string]string
	callJSON(t, session, "add_working_context", map[string]any{"topic": "goal", "details": "ship v1", "importance": 5}, &added)
	assert.NotEmpty(t, added["id"])
	callJSON(t, session, "add_working_context", map[string]any{"topic": "aside", "importance": 2}, &added)

	var items []memory.WorkingContextItem
	callJSON(t, session, "get_working_context", map[string]any{"min_importance": 3}, &items)
	require.Len(t, items, 1)
	assert.Equal(t, "goal", items[0].Topic)

	_, isErr := call(t, session, "add_working_context", map[string]any{"topic": "  "})
	assert.True(t, isErr)
}

func TestConversationTools(t *testing.T) {
	session := setup(t, nil)

	var first map[string]int64
	callJSON(t, session, "store_conversation", map[string]any{"role": "user", "content": "deploy the pipeline"}, &first)
	require.NotZero(t, first["id"])
	callJSON(t, session, "store_conversation", map[string]any{
		"role": "assistant", "content": "pipeline deployed", "related_ids": []int64{first["id"]},
	}, &first)

	_, isErr := call(t, session, "store_conversation", map[string]any{"role": "robot", "content": "beep"})
	assert.True(t, isErr)

	var list []memory.Episode
	callJSON(t, session, "get_conversations", map[string]any{"role": "user"}, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "deploy the pipeline", list[0].Content)

	_, isErr = call(t, session, "get_conversations", map[string]any{"start_time": "yesterday"})
	assert.True(t, isErr)

	var sum memory.SessionSummary
	callJSON(t, session, "summarize_session", map[string]any{}, &sum)
	assert.Equal(t, 2, sum.MessageCount)
	assert.NotZero(t, sum.ID)
	assert.True(t, strings.HasPrefix(sum.Summary, "2 messages"), sum.Summary)

	var other map[string]any
	callJSON(t, session, "summarize_session", map[string]any{"session_id": "nobody"}, &other)
	assert.Equal(t, memory.NoConversationsSummary, other["summary"])
}

func TestKnowledgeTools(t *testing.T) {
	session := setup(t, nil)

	var redis, cache map[string]string
	callJSON(t, session, "store_knowledge", map[string]any{
		"category": "infra", "topic": "redis", "content": "session store", "confidence": 0.9,
	}, &redis)
	callJSON(t, session, "store_knowledge", map[string]any{
		"category": "infra", "topic": "cache", "content": "sits in front of redis",
	}, &cache)

	var node memory.KnowledgeNode
	callJSON(t, session, "get_knowledge", map[string]any{"category": "infra", "topic": "redis"}, &node)
	assert.Equal(t, redis["id"], node.ID)
	assert.InDelta(t, 0.9, node.Confidence, 1e-9)

	callJSON(t, session, "get_knowledge", map[string]any{"id": cache["id"]}, &node)
	assert.Equal(t, "cache", node.Topic)

	text, isErr := call(t, session, "get_knowledge", map[string]any{"id": "missing"})
	assert.False(t, isErr)
	assert.Equal(t, "null", text)

	var hits []memory.KnowledgeNode
	callJSON(t, session, "search_knowledge", map[string]any{"query": "REDIS"}, &hits)
	require.Len(t, hits, 2)
	assert.Equal(t, "cache", hits[0].Topic, "confidence 1.0 outranks 0.9")

	var rel memory.Relationship
	callJSON(t, session, "create_relationship", map[string]any{
		"source_id": cache["id"], "target_id": redis["id"], "type": "depends_on", "strength": 0.5,
	}, &rel)
	assert.Equal(t, "depends_on", rel.Type)
	assert.InDelta(t, 0.5, rel.Strength, 1e-9)

	_, isErr = call(t, session, "create_relationship", map[string]any{
		"source_id": cache["id"], "target_id": "ghost", "type": "depends_on",
	})
	assert.True(t, isErr)

	var rels []memory.Relationship
	callJSON(t, session, "get_relationships", map[string]any{"node_id": redis["id"], "direction": "incoming"}, &rels)
	require.Len(t, rels, 1)
	require.NotNil(t, rels[0].Peer)
	assert.Equal(t, "cache", rels[0].Peer.Topic)
}

func TestStoreKnowledge_Guarded(t *testing.T) {
	session := setup(t, guard.New(guard.Policy{DeniedCategories: []string{"secrets"}, MaxContentLength: 10}))

	text, isErr := call(t, session, "store_knowledge", map[string]any{"category": "secrets", "topic": "t", "content": "c"})
	assert.True(t, isErr)
	assert.Contains(t, text, "denied_categories")

	text, isErr = call(t, session, "store_knowledge", map[string]any{"category": "notes", "topic": "t", "content": "far too long for the limit"})
	assert.True(t, isErr)
	assert.Contains(t, text, "max_content_length")

	_, isErr = call(t, session, "store_knowledge", map[string]any{"category": "notes", "topic": "t", "content": "ok"})
	assert.False(t, isErr)
}

func TestControllerTools(t *testing.T) {
	session := setup(t, nil)

	callJSON(t, session, "add_working_context", map[string]any{"topic": "goal", "details": "ship v1", "importance": 5}, new(map[string]string))

	var out struct {
		Response           string `json:"response"`
		Interactions       int    `json:"interactions"`
		UntilConsolidation int    `json:"until_consolidation"`
	}
	callJSON(t, session, "process_interaction", map[string]any{"query": "there is a bug in the function"}, &out)
	assert.Equal(t, "echo: there is a bug in the function", out.Response)
	assert.Equal(t, 1, out.Interactions)
	assert.Equal(t, 4, out.UntilConsolidation)

	var ec memory.EnrichedContext
	callJSON(t, session, "enrich_context", map[string]any{"query": "what about the goal"}, &ec)
	require.Len(t, ec.WorkingContext, 1)
	assert.Len(t, ec.RecentConversations, 2)

	var report struct {
		Consolidation runtime.ConsolidationReport `json:"consolidation"`
		Extracted     []string                    `json:"extracted"`
	}
	callJSON(t, session, "consolidate_memory", map[string]any{"extract": true}, &report)
	assert.Len(t, report.Consolidation.Promoted, 1)
	assert.Len(t, report.Extracted, 4, "both buckets for the query and the echoed reply")

	var node memory.KnowledgeNode
	callJSON(t, session, "get_knowledge", map[string]any{"category": runtime.CategoryWorkingContext, "topic": "goal"}, &node)
	assert.Equal(t, "ship v1", node.Content)
}
