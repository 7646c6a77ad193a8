package mcp

import (
	"context"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/felixgeelhaar/recall/internal/memory"
)

// --- Input types ---

type StoreContextInput struct {
	Key        string          `json:"key" jsonschema:"Context key"`
	Value      any             `json:"value" jsonschema:"Any JSON value"`
	TTLSeconds int             `json:"ttl_seconds,omitempty" jsonschema:"Seconds until the value expires; 0 keeps it"`
	Metadata   memory.Metadata `json:"metadata,omitempty" jsonschema:"Free-form metadata"`
}

type KeyInput struct {
	Key string `json:"key" jsonschema:"Context key"`
}

type AddWorkingContextInput struct {
	Topic      string `json:"topic" jsonschema:"Short topic label"`
	Details    string `json:"details,omitempty" jsonschema:"Item details"`
	Importance int    `json:"importance,omitempty" jsonschema:"Importance 1-5, default 3"`
	TTLSeconds int    `json:"ttl_seconds,omitempty" jsonschema:"Seconds until the item expires"`
}

type GetWorkingContextInput struct {
	Topic         string `json:"topic,omitempty" jsonschema:"Exact topic filter"`
	MinImportance int    `json:"min_importance,omitempty" jsonschema:"Minimum importance"`
	MaxItems      int    `json:"max_items,omitempty" jsonschema:"Maximum items returned, default 10"`
}

type StoreConversationInput struct {
	Role       string          `json:"role" jsonschema:"user, assistant or system"`
	Content    string          `json:"content" jsonschema:"Message text"`
	SessionID  string          `json:"session_id,omitempty" jsonschema:"Session id, default the active session"`
	Importance int             `json:"importance,omitempty" jsonschema:"Importance 1-5, default 1"`
	RelatedIDs []int64         `json:"related_ids,omitempty" jsonschema:"Ids of related entries"`
	Metadata   memory.Metadata `json:"metadata,omitempty" jsonschema:"Free-form metadata"`
}

type GetConversationsInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"Session filter"`
	Role      string `json:"role,omitempty" jsonschema:"Role filter"`
	StartTime string `json:"start_time,omitempty" jsonschema:"Inclusive RFC3339 lower bound"`
	EndTime   string `json:"end_time,omitempty" jsonschema:"Inclusive RFC3339 upper bound"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum entries, default 50"`
	Offset    int    `json:"offset,omitempty" jsonschema:"Entries to skip"`
}

type SessionInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"Session id, default the active session"`
}

type StoreKnowledgeInput struct {
	Category   string          `json:"category" jsonschema:"Knowledge category"`
	Topic      string          `json:"topic" jsonschema:"Topic within the category"`
	Content    string          `json:"content" jsonschema:"Knowledge text"`
	Confidence *float64        `json:"confidence,omitempty" jsonschema:"Confidence 0-1, default 1"`
	Source     string          `json:"source,omitempty" jsonschema:"Where the knowledge came from"`
	Metadata   memory.Metadata `json:"metadata,omitempty" jsonschema:"Free-form metadata"`
}

type GetKnowledgeInput struct {
	ID       string `json:"id,omitempty" jsonschema:"Node id"`
	Category string `json:"category,omitempty" jsonschema:"Category, used with topic"`
	Topic    string `json:"topic,omitempty" jsonschema:"Topic, used with category"`
}

type SearchKnowledgeInput struct {
	Query    string `json:"query" jsonschema:"Case-insensitive substring"`
	Category string `json:"category,omitempty" jsonschema:"Category filter"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Maximum hits, default 10"`
}

type CreateRelationshipInput struct {
	SourceID string          `json:"source_id" jsonschema:"Source node id"`
	TargetID string          `json:"target_id" jsonschema:"Target node id"`
	Type     string          `json:"type" jsonschema:"Relationship type, e.g. depends_on"`
	Strength *float64        `json:"strength,omitempty" jsonschema:"Strength 0-1, default 1"`
	Metadata memory.Metadata `json:"metadata,omitempty" jsonschema:"Free-form metadata"`
}

type GetRelationshipsInput struct {
	NodeID    string `json:"node_id" jsonschema:"Node id"`
	Direction string `json:"direction,omitempty" jsonschema:"outgoing, incoming or both (default)"`
	Type      string `json:"type,omitempty" jsonschema:"Relationship type filter"`
}

type ConsolidateInput struct {
	Extract bool `json:"extract,omitempty" jsonschema:"Also extract knowledge from recent conversations"`
}

type QueryInput struct {
	Query string `json:"query" jsonschema:"User query"`
}

// --- Handlers ---

func (s *Server) StoreContext(ctx context.Context, _ *sdk.CallToolRequest, in StoreContextInput) (*sdk.CallToolResult, any, error) {
	opts := memory.ContextOptions{Metadata: in.Metadata}
	if in.TTLSeconds > 0 {
		opts.TTL = time.Duration(in.TTLSeconds) * time.Second
	}
	if !s.ctrl.Memory().ShortTerm.StoreContext(ctx, in.Key, in.Value, opts) {
		return toolError("Failed to store context %q", in.Key), nil, nil
	}
	return toolJSON(map[string]any{"stored": true, "key": in.Key})
}

func (s *Server) GetContext(ctx context.Context, _ *sdk.CallToolRequest, in KeyInput) (*sdk.CallToolResult, any, error) {
	return toolJSON(map[string]any{"key": in.Key, "value": s.ctrl.Memory().ShortTerm.GetContext(ctx, in.Key)})
}

func (s *Server) AddWorkingContext(ctx context.Context, _ *sdk.CallToolRequest, in AddWorkingContextInput) (*sdk.CallToolResult, any, error) {
	item := memory.WorkingContextInput{Topic: in.Topic, Details: in.Details, Importance: in.Importance}
	if in.TTLSeconds > 0 {
		exp := time.Now().Add(time.Duration(in.TTLSeconds) * time.Second)
		item.ExpiresAt = &exp
	}
	id := s.ctrl.Memory().ShortTerm.AddWorkingContext(ctx, item)
	if id == "" {
		return toolError("Working context needs a non-empty topic"), nil, nil
	}
	return toolJSON(map[string]any{"id": id})
}

func (s *Server) GetWorkingContext(ctx context.Context, _ *sdk.CallToolRequest, in GetWorkingContextInput) (*sdk.CallToolResult, any, error) {
	return toolJSON(s.ctrl.Memory().ShortTerm.GetWorkingContext(ctx, memory.WorkingContextQuery{
		Topic: in.Topic, MinImportance: in.MinImportance, MaxItems: in.MaxItems,
	}))
}

func (s *Server) StoreConversation(ctx context.Context, _ *sdk.CallToolRequest, in StoreConversationInput) (*sdk.CallToolResult, any, error) {
	id := s.ctrl.Memory().Episodic.StoreConversation(ctx, memory.ConversationInput{
		Role:       memory.Role(in.Role),
		Content:    in.Content,
		SessionID:  in.SessionID,
		Importance: in.Importance,
		RelatedIDs: in.RelatedIDs,
		Metadata:   in.Metadata,
	})
	if id == 0 {
		return toolError("Conversation not stored: role must be user, assistant or system"), nil, nil
	}
	return toolJSON(map[string]any{"id": id})
}

func (s *Server) GetConversations(ctx context.Context, _ *sdk.CallToolRequest, in GetConversationsInput) (*sdk.CallToolResult, any, error) {
	q := memory.ConversationQuery{
		SessionID: in.SessionID,
		Role:      memory.Role(in.Role),
		Limit:     in.Limit,
		Offset:    in.Offset,
	}
	var err error
	if q.StartTime, err = parseTime(in.StartTime); err != nil {
		return toolError("Invalid start_time: %v", err), nil, nil
	}
	if q.EndTime, err = parseTime(in.EndTime); err != nil {
		return toolError("Invalid end_time: %v", err), nil, nil
	}
	return toolJSON(s.ctrl.Memory().Episodic.GetConversations(ctx, q))
}

func (s *Server) SummarizeSession(ctx context.Context, _ *sdk.CallToolRequest, in SessionInput) (*sdk.CallToolResult, any, error) {
	ep := s.ctrl.Memory().Episodic
	if in.SessionID == "" {
		sum := ep.SummarizeCurrentSession(ctx)
		if sum == nil {
			return toolJSON(map[string]any{"summary": memory.NoConversationsSummary})
		}
		return toolJSON(sum)
	}
	list := ep.GetConversations(ctx, memory.ConversationQuery{SessionID: in.SessionID, Limit: s.ctrl.Config().SummaryWindow})
	return toolJSON(map[string]any{
		"session_id":    in.SessionID,
		"summary":       ep.SummarizeConversations(list),
		"message_count": len(list),
	})
}

func (s *Server) StoreKnowledge(ctx context.Context, _ *sdk.CallToolRequest, in StoreKnowledgeInput) (*sdk.CallToolResult, any, error) {
	if blocked := s.checkWrite(in.Category, in.Content); blocked != nil {
		return blocked, nil, nil
	}
	id := s.ctrl.Memory().Semantic.StoreKnowledge(ctx, in.Category, in.Topic, in.Content, memory.KnowledgeOptions{
		Confidence: in.Confidence, Source: in.Source, Metadata: in.Metadata,
	})
	if id == "" {
		return toolError("Knowledge needs a non-empty category and topic"), nil, nil
	}
	return toolJSON(map[string]any{"id": id})
}

func (s *Server) GetKnowledge(ctx context.Context, _ *sdk.CallToolRequest, in GetKnowledgeInput) (*sdk.CallToolResult, any, error) {
	sem := s.ctrl.Memory().Semantic
	switch {
	case in.ID != "":
		return toolJSON(sem.GetByID(ctx, in.ID))
	case in.Category != "" && in.Topic != "":
		return toolJSON(sem.GetKnowledge(ctx, in.Category, in.Topic))
	case in.Category != "":
		return toolJSON(sem.GetByCategory(ctx, in.Category))
	}
	return toolError("Provide id, or category (and optionally topic)"), nil, nil
}

func (s *Server) SearchKnowledge(ctx context.Context, _ *sdk.CallToolRequest, in SearchKnowledgeInput) (*sdk.CallToolResult, any, error) {
	return toolJSON(s.ctrl.Memory().Semantic.Search(ctx, in.Query, memory.SearchOptions{
		Category: in.Category, Limit: in.Limit,
	}))
}

func (s *Server) CreateRelationship(ctx context.Context, _ *sdk.CallToolRequest, in CreateRelationshipInput) (*sdk.CallToolResult, any, error) {
	if !s.ctrl.Memory().Semantic.CreateRelationship(ctx, in.SourceID, in.TargetID, in.Type, memory.RelationshipOptions{
		Strength: in.Strength, Metadata: in.Metadata,
	}) {
		return toolError("Relationship not created: both nodes must exist and type must be set"), nil, nil
	}
	return toolJSON(s.ctrl.Memory().Semantic.GetRelationship(ctx, in.SourceID, in.TargetID, in.Type))
}

func (s *Server) GetRelationships(ctx context.Context, _ *sdk.CallToolRequest, in GetRelationshipsInput) (*sdk.CallToolResult, any, error) {
	return toolJSON(s.ctrl.Memory().Semantic.GetRelationships(ctx, in.NodeID, memory.RelationshipQuery{
		Direction: memory.Direction(in.Direction), Type: in.Type,
	}))
}

func (s *Server) ConsolidateMemory(ctx context.Context, _ *sdk.CallToolRequest, in ConsolidateInput) (*sdk.CallToolResult, any, error) {
	out := struct {
		Consolidation any      `json:"consolidation"`
		Extracted     []string `json:"extracted,omitempty"`
	}{Consolidation: s.ctrl.ConsolidateMemory(ctx)}
	if in.Extract {
		out.Extracted = s.ctrl.ExtractKnowledge(ctx)
	}
	return toolJSON(out)
}

func (s *Server) EnrichContext(ctx context.Context, _ *sdk.CallToolRequest, in QueryInput) (*sdk.CallToolResult, any, error) {
	return toolJSON(s.ctrl.EnrichContext(ctx, in.Query))
}

func (s *Server) ProcessInteraction(ctx context.Context, _ *sdk.CallToolRequest, in QueryInput) (*sdk.CallToolResult, any, error) {
	resp := s.ctrl.ProcessInteraction(ctx, in.Query, s.respond)
	return toolJSON(map[string]any{
		"response":            resp,
		"interactions":        s.ctrl.Interactions(ctx),
		"until_consolidation": s.ctrl.UntilConsolidation(ctx),
	})
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
