package store

import (
	"context"
	"time"

	"github.com/felixgeelhaar/recall/internal/memory"
)

// ErrNotFound is returned by single-record lookups with no match.
var ErrNotFound = memory.ErrNotFound

// ContextRow is a persisted short_term_memory row. Value holds JSON text.
type ContextRow struct {
	Key       string
	Value     string
	Timestamp time.Time
	ExpiresAt *time.Time
	Metadata  memory.Metadata
}

// EpisodeFilter selects episodic_memory rows. Zero fields do not filter; a
// zero Limit returns every match. Results are newest first.
type EpisodeFilter struct {
	SessionID string
	Type      string
	Start     time.Time
	End       time.Time
	Limit     int
	Offset    int
}

// KnowledgeFilter selects semantic_knowledge rows. Query matches topic or
// content as a case-insensitive substring. Results are ordered by confidence,
// then last access, then insertion.
type KnowledgeFilter struct {
	Category string
	Query    string
	Limit    int
}

// RelationshipFilter selects edges touching NodeID.
type RelationshipFilter struct {
	NodeID    string
	Direction memory.Direction
	Type      string
}

// Repository defines the interface for persistence
type Repository interface {
	// Short-term entries
	PutContext(ctx context.Context, row ContextRow) error
	GetContext(ctx context.Context, key string) (*ContextRow, error)
	ListContext(ctx context.Context) ([]ContextRow, error)
	DeleteContext(ctx context.Context, key string) error
	DeleteExpiredContext(ctx context.Context, now time.Time) (int, error)

	// Episodic log
	InsertEpisode(ctx context.Context, e memory.Episode) (int64, error)
	GetEpisode(ctx context.Context, id int64) (*memory.Episode, error)
	QueryEpisodes(ctx context.Context, f EpisodeFilter) ([]memory.Episode, error)
	UpdateEpisodeImportance(ctx context.Context, id int64, importance int) error

	// Session summaries
	InsertSummary(ctx context.Context, s memory.SessionSummary) (int64, error)
	LatestSummary(ctx context.Context, sessionID string) (*memory.SessionSummary, error)

	// Knowledge graph
	UpsertKnowledge(ctx context.Context, n memory.KnowledgeNode) (string, error)
	GetKnowledgeByKey(ctx context.Context, category, topic string) (*memory.KnowledgeNode, error)
	GetKnowledgeByID(ctx context.Context, id string) (*memory.KnowledgeNode, error)
	ListKnowledge(ctx context.Context, f KnowledgeFilter) ([]memory.KnowledgeNode, error)
	TouchKnowledge(ctx context.Context, ids []string, at time.Time) error
	UpsertRelationship(ctx context.Context, r memory.Relationship) (int64, error)
	GetRelationship(ctx context.Context, sourceID, targetID, relType string) (*memory.Relationship, error)
	ListRelationships(ctx context.Context, f RelationshipFilter) ([]memory.Relationship, error)

	Close() error
}

// Config is the database section of the configuration.
type Config struct {
	Path     string `mapstructure:"path" yaml:"path" json:"path"`
	InMemory bool   `mapstructure:"in_memory" yaml:"in_memory" json:"in_memory"`
}
