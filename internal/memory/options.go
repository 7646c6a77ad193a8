package memory

import "time"

// Defaults applied when the corresponding option is left at its zero value.
const (
	DefaultImportance        = 3
	DefaultEpisodeImportance = 1
	DefaultMaxItems          = 10
	DefaultConversationLimit = 50
	DefaultRecentCount       = 10
	DefaultSearchLimit       = 10
	DefaultConfidence        = 1.0
	DefaultStrength          = 1.0

	MinImportance = 1
	MaxImportance = 5
)

// ContextOptions tune StoreContext. TTL wins over ExpiresAt when both are set.
type ContextOptions struct {
	TTL       time.Duration
	ExpiresAt *time.Time
	Metadata  Metadata
}

// WorkingContextInput describes a new working context item.
type WorkingContextInput struct {
	Topic      string
	Details    string
	Importance int
	ExpiresAt  *time.Time
}

// WorkingContextQuery filters GetWorkingContext.
type WorkingContextQuery struct {
	Topic         string
	MinImportance int
	MaxItems      int
}

// ConversationInput describes one conversation entry to log.
type ConversationInput struct {
	Role       Role
	Content    string
	SessionID  string
	Timestamp  time.Time
	Importance int
	RelatedIDs []int64
	Metadata   Metadata
}

// ConversationQuery filters GetConversations. Zero times leave the range open.
type ConversationQuery struct {
	SessionID string
	Role      Role
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// KnowledgeOptions tune StoreKnowledge.
type KnowledgeOptions struct {
	Confidence *float64
	Source     string
	Metadata   Metadata
}

// SearchOptions tune Search.
type SearchOptions struct {
	Category string
	Limit    int
}

// RelationshipOptions tune CreateRelationship.
type RelationshipOptions struct {
	Strength *float64
	Metadata Metadata
}

// RelationshipQuery filters GetRelationships. An empty Direction means both.
type RelationshipQuery struct {
	Direction Direction
	Type      string
}

// ClampImportance bounds v to [MinImportance, MaxImportance].
func ClampImportance(v int) int {
	if v < MinImportance {
		return MinImportance
	}
	if v > MaxImportance {
		return MaxImportance
	}
	return v
}

// ClampUnit bounds v to [0, 1].
func ClampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Float returns a pointer to v, for optional numeric options.
func Float(v float64) *float64 {
	return &v
}
