package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/felixgeelhaar/recall/internal/memory"
	"github.com/felixgeelhaar/recall/internal/observe"
)

// Fallback serves every call from a durable Repository until the first
// storage failure, then permanently from an in-memory stand-in. The failing
// call is replayed on the stand-in so callers never see the failure.
type Fallback struct {
	mu       sync.RWMutex
	primary  Repository
	standby  *MemoryStore
	degraded bool
	obs      *observe.Observer
}

var _ Repository = (*Fallback)(nil)

// NewFallback wraps primary. A nil primary starts in degraded mode.
func NewFallback(primary Repository, obs *observe.Observer) *Fallback {
	if obs == nil {
		obs = observe.Discard()
	}
	return &Fallback{
		primary:  primary,
		standby:  NewMemoryStore(),
		degraded: primary == nil,
		obs:      obs,
	}
}

// Open returns a Fallback over SQLite at cfg.Path, or over nothing when
// cfg.InMemory is set or the database cannot be opened.
func Open(cfg Config, obs *observe.Observer) *Fallback {
	if obs == nil {
		obs = observe.Discard()
	}
	if cfg.InMemory || cfg.Path == "" {
		obs.Log().Info().Msg("using in-memory storage")
		return NewFallback(nil, obs)
	}
	db, err := NewSQLiteStore(cfg.Path)
	if err != nil {
		obs.Log().Warn().Str("path", cfg.Path).Err(err).Msg("durable storage unavailable, using in-memory storage")
		return NewFallback(nil, obs)
	}
	return NewFallback(db, obs)
}

// Degraded reports whether calls are served from the in-memory stand-in.
func (f *Fallback) Degraded() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.degraded
}

func (f *Fallback) current() (Repository, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.degraded {
		return f.standby, false
	}
	return f.primary, true
}

func (f *Fallback) degrade(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.degraded {
		return
	}
	f.degraded = true
	f.obs.Log().Warn().Str("op", op).Err(err).Msg("durable storage failed, switching to in-memory storage")
}

// expected reports errors that describe the request rather than the storage.
func expected(err error) bool {
	return errors.Is(err, memory.ErrNotFound) ||
		errors.Is(err, memory.ErrInvalidReference) ||
		memory.CodeOf(err) == memory.ErrCodeMalformedMetadata ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func call[T any](f *Fallback, op string, fn func(Repository) (T, error)) (T, error) {
	repo, durable := f.current()
	v, err := fn(repo)
	if err == nil || !durable || expected(err) {
		return v, err
	}
	f.degrade(op, err)
	return fn(f.standby)
}

func exec(f *Fallback, op string, fn func(Repository) error) error {
	_, err := call(f, op, func(r Repository) (struct{}, error) {
		return struct{}{}, fn(r)
	})
	return err
}

func (f *Fallback) PutContext(ctx context.Context, row ContextRow) error {
	return exec(f, "put_context", func(r Repository) error { return r.PutContext(ctx, row) })
}

func (f *Fallback) GetContext(ctx context.Context, key string) (*ContextRow, error) {
	return call(f, "get_context", func(r Repository) (*ContextRow, error) { return r.GetContext(ctx, key) })
}

func (f *Fallback) ListContext(ctx context.Context) ([]ContextRow, error) {
	return call(f, "list_context", func(r Repository) ([]ContextRow, error) { return r.ListContext(ctx) })
}

func (f *Fallback) DeleteContext(ctx context.Context, key string) error {
	return exec(f, "delete_context", func(r Repository) error { return r.DeleteContext(ctx, key) })
}

func (f *Fallback) DeleteExpiredContext(ctx context.Context, now time.Time) (int, error) {
	return call(f, "delete_expired_context", func(r Repository) (int, error) { return r.DeleteExpiredContext(ctx, now) })
}

func (f *Fallback) InsertEpisode(ctx context.Context, e memory.Episode) (int64, error) {
	return call(f, "insert_episode", func(r Repository) (int64, error) { return r.InsertEpisode(ctx, e) })
}

func (f *Fallback) GetEpisode(ctx context.Context, id int64) (*memory.Episode, error) {
	return call(f, "get_episode", func(r Repository) (*memory.Episode, error) { return r.GetEpisode(ctx, id) })
}

func (f *Fallback) QueryEpisodes(ctx context.Context, flt EpisodeFilter) ([]memory.Episode, error) {
	return call(f, "query_episodes", func(r Repository) ([]memory.Episode, error) { return r.QueryEpisodes(ctx, flt) })
}

func (f *Fallback) UpdateEpisodeImportance(ctx context.Context, id int64, importance int) error {
	return exec(f, "update_episode_importance", func(r Repository) error { return r.UpdateEpisodeImportance(ctx, id, importance) })
}

func (f *Fallback) InsertSummary(ctx context.Context, s memory.SessionSummary) (int64, error) {
	return call(f, "insert_summary", func(r Repository) (int64, error) { return r.InsertSummary(ctx, s) })
}

func (f *Fallback) LatestSummary(ctx context.Context, sessionID string) (*memory.SessionSummary, error) {
	return call(f, "latest_summary", func(r Repository) (*memory.SessionSummary, error) { return r.LatestSummary(ctx, sessionID) })
}

func (f *Fallback) UpsertKnowledge(ctx context.Context, n memory.KnowledgeNode) (string, error) {
	return call(f, "upsert_knowledge", func(r Repository) (string, error) { return r.UpsertKnowledge(ctx, n) })
}

func (f *Fallback) GetKnowledgeByKey(ctx context.Context, category, topic string) (*memory.KnowledgeNode, error) {
	return call(f, "get_knowledge", func(r Repository) (*memory.KnowledgeNode, error) { return r.GetKnowledgeByKey(ctx, category, topic) })
}

func (f *Fallback) GetKnowledgeByID(ctx context.Context, id string) (*memory.KnowledgeNode, error) {
	return call(f, "get_knowledge_by_id", func(r Repository) (*memory.KnowledgeNode, error) { return r.GetKnowledgeByID(ctx, id) })
}

func (f *Fallback) ListKnowledge(ctx context.Context, flt KnowledgeFilter) ([]memory.KnowledgeNode, error) {
	return call(f, "list_knowledge", func(r Repository) ([]memory.KnowledgeNode, error) { return r.ListKnowledge(ctx, flt) })
}

func (f *Fallback) TouchKnowledge(ctx context.Context, ids []string, at time.Time) error {
	return exec(f, "touch_knowledge", func(r Repository) error { return r.TouchKnowledge(ctx, ids, at) })
}

func (f *Fallback) UpsertRelationship(ctx context.Context, rel memory.Relationship) (int64, error) {
	return call(f, "upsert_relationship", func(r Repository) (int64, error) { return r.UpsertRelationship(ctx, rel) })
}

func (f *Fallback) GetRelationship(ctx context.Context, sourceID, targetID, relType string) (*memory.Relationship, error) {
	return call(f, "get_relationship", func(r Repository) (*memory.Relationship, error) {
		return r.GetRelationship(ctx, sourceID, targetID, relType)
	})
}

func (f *Fallback) ListRelationships(ctx context.Context, flt RelationshipFilter) ([]memory.Relationship, error) {
	return call(f, "list_relationships", func(r Repository) ([]memory.Relationship, error) { return r.ListRelationships(ctx, flt) })
}

func (f *Fallback) Close() error {
	if f.primary != nil {
		return f.primary.Close()
	}
	return nil
}
