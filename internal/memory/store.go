package memory

import "context"

// ShortTerm holds session-scoped scratch state. Implementations never return
// errors; failures degrade to zero values.
type ShortTerm interface {
	StoreContext(ctx context.Context, key string, value any, opts ContextOptions) bool
	GetContext(ctx context.Context, key string) any
	AddWorkingContext(ctx context.Context, in WorkingContextInput) string
	GetWorkingContext(ctx context.Context, q WorkingContextQuery) []WorkingContextItem
	ClearContext(ctx context.Context, name, itemID string) bool
	PruneMemory(ctx context.Context, targetSize int) int
	AddConversationTurn(ctx context.Context, turn ConversationTurn) bool
	GetConversationContext(ctx context.Context, maxTurns int) []ConversationTurn
	ActiveSessionID(ctx context.Context) string
	SetActiveSessionID(ctx context.Context, id string) bool
	RemoveExpired(ctx context.Context) int
}

// Episodic is the append-mostly interaction log.
type Episodic interface {
	StoreConversation(ctx context.Context, in ConversationInput) int64
	GetConversations(ctx context.Context, q ConversationQuery) []Episode
	GetRecentConversations(ctx context.Context, count int, sessionID string) []Episode
	GetEpisode(ctx context.Context, id int64) *Episode
	UpdateImportance(ctx context.Context, id int64, importance int) bool
	SummarizeConversations(list []Episode) string
	StoreSummary(ctx context.Context, s SessionSummary) int64
	GetSessionSummary(ctx context.Context, sessionID string) *SessionSummary
	SummarizeCurrentSession(ctx context.Context) *SessionSummary
}

// Semantic is the knowledge graph.
type Semantic interface {
	StoreKnowledge(ctx context.Context, category, topic, content string, opts KnowledgeOptions) string
	GetKnowledge(ctx context.Context, category, topic string) *KnowledgeNode
	GetByID(ctx context.Context, id string) *KnowledgeNode
	GetByCategory(ctx context.Context, category string) []KnowledgeNode
	Search(ctx context.Context, query string, opts SearchOptions) []KnowledgeNode
	CreateRelationship(ctx context.Context, sourceID, targetID, relType string, opts RelationshipOptions) bool
	GetRelationship(ctx context.Context, sourceID, targetID, relType string) *Relationship
	GetRelationships(ctx context.Context, nodeID string, q RelationshipQuery) []Relationship
}

// Stores bundles the three tiers.
type Stores struct {
	ShortTerm ShortTerm
	Episodic  Episodic
	Semantic  Semantic
}

// WithDefaults replaces any nil tier with Nop.
func (s Stores) WithDefaults() Stores {
	if s.ShortTerm == nil {
		s.ShortTerm = Nop{}
	}
	if s.Episodic == nil {
		s.Episodic = Nop{}
	}
	if s.Semantic == nil {
		s.Semantic = Nop{}
	}
	return s
}
