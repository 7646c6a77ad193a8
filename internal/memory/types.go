// Package memory defines the records, store contracts and shared helpers of
// the tiered conversational memory: short-term context, the episodic log and
// the semantic knowledge graph.
package memory

import "time"

// Role identifies who authored a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Reserved short-term keys.
const (
	KeyWorkingContext    = "working_context"
	KeyConversationTurns = "conversation_turns"
	KeySessionID         = "session_id"
	KeyEnrichedContext   = "enriched_context"
	KeyCurrentQuery      = "current_query"
	KeyLastResponse      = "last_response"
	KeyInteractionCount  = "interaction_count"
)

// ContextEntry is a keyed scratch value scoped to the current session.
type ContextEntry struct {
	Key       string     `json:"key"`
	Value     any        `json:"value"`
	Timestamp time.Time  `json:"timestamp"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Metadata  Metadata   `json:"metadata,omitempty"`
}

// Expired reports whether the entry's expiry lies strictly before now.
func (e ContextEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && e.ExpiresAt.Before(now)
}

// WorkingContextItem is an importance-tagged scratch item.
type WorkingContextItem struct {
	ID         string     `json:"id"`
	Topic      string     `json:"topic"`
	Details    string     `json:"details"`
	Importance int        `json:"importance"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the item's expiry lies strictly before now.
func (i WorkingContextItem) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && i.ExpiresAt.Before(now)
}

// ConversationTurn is one message of the recent-turn ring.
type ConversationTurn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Episode is one logged interaction entry. For conversation entries Type
// carries the author role.
type Episode struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Type       string    `json:"type"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Importance int       `json:"importance"`
	RelatedIDs []int64   `json:"related_ids,omitempty"`
	Metadata   Metadata  `json:"metadata,omitempty"`
}

// SessionSummary is a derived statistical digest of a session's conversation.
type SessionSummary struct {
	ID           int64     `json:"id"`
	SessionID    string    `json:"session_id"`
	Summary      string    `json:"summary"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	MessageCount int       `json:"message_count"`
}

// KnowledgeNode is a durable fact keyed uniquely by (Category, Topic).
type KnowledgeNode struct {
	ID           string    `json:"id"`
	Category     string    `json:"category"`
	Topic        string    `json:"topic"`
	Content      string    `json:"content"`
	Confidence   float64   `json:"confidence"`
	Timestamp    time.Time `json:"timestamp"`
	LastAccessed time.Time `json:"last_accessed"`
	Source       string    `json:"source,omitempty"`
	Metadata     Metadata  `json:"metadata,omitempty"`
}

// Direction selects which edges of a node are returned.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
	DirectionBoth     Direction = "both"
)

// NodeRef names the far endpoint of an edge for display.
type NodeRef struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Topic    string `json:"topic"`
}

// Relationship is a directed, typed, weighted edge between two nodes.
type Relationship struct {
	ID        int64     `json:"id"`
	SourceID  string    `json:"source_id"`
	TargetID  string    `json:"target_id"`
	Type      string    `json:"type"`
	Strength  float64   `json:"strength"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  Metadata  `json:"metadata,omitempty"`

	// Set by relationship listings: the endpoint that is not the queried node.
	Direction Direction `json:"direction,omitempty"`
	Peer      *NodeRef  `json:"peer,omitempty"`
}

// EnrichedContext is the context object assembled for a query.
type EnrichedContext struct {
	Query               string               `json:"query"`
	Keywords            []string             `json:"keywords"`
	WorkingContext      []WorkingContextItem `json:"working_context"`
	RecentConversations []Episode            `json:"recent_conversations"`
	RecentTurns         []ConversationTurn   `json:"recent_turns"`
	RelevantKnowledge   []KnowledgeNode      `json:"relevant_knowledge"`
	Timestamp           time.Time            `json:"timestamp"`
}
