package memory

import "context"

// Nop is the null tier: every operation is a no-op returning a zero value.
type Nop struct{}

var (
	_ ShortTerm = Nop{}
	_ Episodic  = Nop{}
	_ Semantic  = Nop{}
)

func (Nop) StoreContext(context.Context, string, any, ContextOptions) bool { return false }
func (Nop) GetContext(context.Context, string) any { return nil }
func (Nop) AddWorkingContext(context.Context, WorkingContextInput) string { return "" }
func (Nop) GetWorkingContext(context.Context, WorkingContextQuery) []WorkingContextItem {
	return []WorkingContextItem{}
}
func (Nop) ClearContext(context.Context, string, string) bool { return false }
func (Nop) PruneMemory(context.Context, int) int { return 0 }
func (Nop) AddConversationTurn(context.Context, ConversationTurn) bool { return false }
func (Nop) GetConversationContext(context.Context, int) []ConversationTurn { return []ConversationTurn{} }
func (Nop) ActiveSessionID(context.Context) string { return "" }
func (Nop) SetActiveSessionID(context.Context, string) bool { return false }
func (Nop) RemoveExpired(context.Context) int { return 0 }

func (Nop) StoreConversation(context.Context, ConversationInput) int64 { return 0 }
func (Nop) GetConversations(context.Context, ConversationQuery) []Episode { return []Episode{} }
func (Nop) GetRecentConversations(context.Context, int, string) []Episode { return []Episode{} }
func (Nop) GetEpisode(context.Context, int64) *Episode { return nil }
func (Nop) UpdateImportance(context.Context, int64, int) bool { return false }
func (Nop) SummarizeConversations([]Episode) string { return NoConversationsSummary }
func (Nop) StoreSummary(context.Context, SessionSummary) int64 { return 0 }
func (Nop) GetSessionSummary(context.Context, string) *SessionSummary { return nil }
func (Nop) SummarizeCurrentSession(context.Context) *SessionSummary { return nil }

func (Nop) StoreKnowledge(context.Context, string, string, string, KnowledgeOptions) string {
	return ""
}
func (Nop) GetKnowledge(context.Context, string, string) *KnowledgeNode { return nil }
func (Nop) GetByID(context.Context, string) *KnowledgeNode { return nil }
func (Nop) GetByCategory(context.Context, string) []KnowledgeNode { return []KnowledgeNode{} }
func (Nop) Search(context.Context, string, SearchOptions) []KnowledgeNode { return []KnowledgeNode{} }
func (Nop) CreateRelationship(context.Context, string, string, string, RelationshipOptions) bool {
	return false
}
func (Nop) GetRelationship(context.Context, string, string, string) *Relationship { return nil }
func (Nop) GetRelationships(context.Context, string, RelationshipQuery) []Relationship {
	return []Relationship{}
}
