package store

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/recall/internal/memory"
	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func backends(t *testing.T) map[string]func(t *testing.T) Repository {
	return map[string]func(t *testing.T) Repository{
		"sqlite": func(t *testing.T) Repository {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "recall.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
		"memory": func(t *testing.T) Repository {
			return NewMemoryStore()
		},
		"fallback": func(t *testing.T) Repository {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "recall.db"))
			require.NoError(t, err)
			f := NewFallback(s, observe.Discard())
			t.Cleanup(func() { f.Close() })
			return f
		},
	}
}

func TestRepositoryConformance(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("Context", func(t *testing.T) { testContext(t, open(t)) })
			t.Run("Episodes", func(t *testing.T) { testEpisodes(t, open(t)) })
			t.Run("Summaries", func(t *testing.T) { testSummaries(t, open(t)) })
			t.Run("Knowledge", func(t *testing.T) { testKnowledge(t, open(t)) })
			t.Run("Relationships", func(t *testing.T) { testRelationships(t, open(t)) })
		})
	}
}

func testContext(t *testing.T, r Repository) {
	ctx := context.Background()
	past := base.Add(-time.Minute)

	require.NoError(t, r.PutContext(ctx, ContextRow{Key: "goal", Value: `"draft"`, Timestamp: base}))
	require.NoError(t, r.PutContext(ctx, ContextRow{Key: "goal", Value: `"ship v1"`, Timestamp: base, Metadata: memory.Metadata{"source": "cli"}}))
	require.NoError(t, r.PutContext(ctx, ContextRow{Key: "stale", Value: `1`, Timestamp: base, ExpiresAt: &past}))

	got, err := r.GetContext(ctx, "goal")
	require.NoError(t, err)
	assert.Equal(t, `"ship v1"`, got.Value)
	assert.True(t, base.Equal(got.Timestamp))
	assert.Equal(t, "cli", got.Metadata.String("source"))
	assert.Nil(t, got.ExpiresAt)

	_, err = r.GetContext(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	rows, err := r.ListContext(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "goal", rows[0].Key)
	assert.Equal(t, "stale", rows[1].Key)
	require.NotNil(t, rows[1].ExpiresAt)
	assert.True(t, past.Equal(*rows[1].ExpiresAt))

	n, err := r.DeleteExpiredContext(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, r.DeleteContext(ctx, "goal"))
	rows, err = r.ListContext(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func testEpisodes(t *testing.T, r Repository) {
	ctx := context.Background()
	insert := func(session, role, content string, at time.Time) int64 {
		id, err := r.InsertEpisode(ctx, memory.Episode{SessionID: session, Type: role, Content: content, Timestamp: at, Importance: 1})
		require.NoError(t, err)
		return id
	}

	id1 := insert("s1", "user", "first", base)
	id2 := insert("s1", "assistant", "second", base.Add(time.Second))
	id3 := insert("s1", "user", "third", base.Add(time.Second))
	insert("s2", "user", "other", base.Add(2*time.Second))
	assert.Less(t, id1, id2)
	assert.Less(t, id2, id3)

	all, err := r.QueryEpisodes(ctx, EpisodeFilter{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Equal timestamps fall back to id descending.
	assert.Equal(t, []string{"third", "second", "first"}, []string{all[0].Content, all[1].Content, all[2].Content})

	users, err := r.QueryEpisodes(ctx, EpisodeFilter{SessionID: "s1", Type: "user"})
	require.NoError(t, err)
	assert.Len(t, users, 2)

	ranged, err := r.QueryEpisodes(ctx, EpisodeFilter{Start: base.Add(time.Second), End: base.Add(time.Second)})
	require.NoError(t, err)
	assert.Len(t, ranged, 2)

	page, err := r.QueryEpisodes(ctx, EpisodeFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "third", page[0].Content)

	empty, err := r.QueryEpisodes(ctx, EpisodeFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)

	withMeta, err := r.InsertEpisode(ctx, memory.Episode{
		SessionID: "s1", Type: "system", Content: "meta", Timestamp: base, Importance: 2,
		RelatedIDs: []int64{id1, id2}, Metadata: memory.Metadata{"kind": "session_summary"},
	})
	require.NoError(t, err)
	e, err := r.GetEpisode(ctx, withMeta)
	require.NoError(t, err)
	assert.Equal(t, []int64{id1, id2}, e.RelatedIDs)
	assert.Equal(t, "session_summary", e.Metadata.String("kind"))

	require.NoError(t, r.UpdateEpisodeImportance(ctx, id1, 4))
	e, err = r.GetEpisode(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, 4, e.Importance)

	assert.ErrorIs(t, r.UpdateEpisodeImportance(ctx, 9999, 2), ErrNotFound)
	_, err = r.GetEpisode(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func testSummaries(t *testing.T, r Repository) {
	ctx := context.Background()
	_, err := r.InsertSummary(ctx, memory.SessionSummary{SessionID: "s1", Summary: "newer", StartTime: base, EndTime: base.Add(time.Hour), MessageCount: 4})
	require.NoError(t, err)
	_, err = r.InsertSummary(ctx, memory.SessionSummary{SessionID: "s1", Summary: "older", StartTime: base, EndTime: base.Add(time.Minute), MessageCount: 2})
	require.NoError(t, err)

	got, err := r.LatestSummary(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "newer", got.Summary)
	assert.Equal(t, 4, got.MessageCount)

	_, err = r.LatestSummary(ctx, "s2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func node(id, category, topic, content string, confidence float64, accessed time.Time) memory.KnowledgeNode {
	return memory.KnowledgeNode{
		ID: id, Category: category, Topic: topic, Content: content,
		Confidence: confidence, Timestamp: base, LastAccessed: accessed,
	}
}

func testKnowledge(t *testing.T, r Repository) {
	ctx := context.Background()

	id, err := r.UpsertKnowledge(ctx, node("n1", "facts", "deploy", "use blue/green", 1, base))
	require.NoError(t, err)
	assert.Equal(t, "n1", id)

	// Same (category, topic) keeps the original id.
	n := node("n1-dup", "facts", "deploy", "use canary", 0.8, base)
	n.Source = "cli"
	n.Metadata = memory.Metadata{"importance": "high"}
	id, err = r.UpsertKnowledge(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, "n1", id)

	got, err := r.GetKnowledgeByKey(ctx, "facts", "deploy")
	require.NoError(t, err)
	assert.Equal(t, "n1", got.ID)
	assert.Equal(t, "use canary", got.Content)
	assert.Equal(t, 0.8, got.Confidence)
	assert.Equal(t, "cli", got.Source)
	assert.Equal(t, "high", got.Metadata.String("importance"))

	_, err = r.GetKnowledgeByID(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	// Ranking: confidence, then last access, then insertion.
	_, err = r.UpsertKnowledge(ctx, node("a", "search", "alpha", "Cache warmup", 0.9, base))
	require.NoError(t, err)
	_, err = r.UpsertKnowledge(ctx, node("b", "search", "beta", "cache eviction", 0.5, base.Add(time.Hour)))
	require.NoError(t, err)
	_, err = r.UpsertKnowledge(ctx, node("c", "search", "gamma", "CACHE sizing", 0.9, base.Add(time.Minute)))
	require.NoError(t, err)
	_, err = r.UpsertKnowledge(ctx, node("d", "search", "delta", "cache keys", 0.9, base))
	require.NoError(t, err)

	hits, err := r.ListKnowledge(ctx, KnowledgeFilter{Query: "cache"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "d", "b"}, ids(hits))

	hits, err = r.ListKnowledge(ctx, KnowledgeFilter{Query: "GAMMA", Category: "search"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(hits))

	hits, err = r.ListKnowledge(ctx, KnowledgeFilter{Query: "cache", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	require.NoError(t, r.TouchKnowledge(ctx, []string{"d"}, base.Add(2*time.Hour)))
	hits, err = r.ListKnowledge(ctx, KnowledgeFilter{Category: "search"})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c", "a", "b"}, ids(hits))
}

func ids(nodes []memory.KnowledgeNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func testRelationships(t *testing.T, r Repository) {
	ctx := context.Background()
	for _, n := range []memory.KnowledgeNode{
		node("api", "service", "api", "public api", 1, base),
		node("db", "service", "db", "postgres", 1, base),
		node("cache", "service", "cache", "redis", 1, base),
	} {
		_, err := r.UpsertKnowledge(ctx, n)
		require.NoError(t, err)
	}

	_, err := r.UpsertRelationship(ctx, memory.Relationship{SourceID: "ghost", TargetID: "db", Type: "depends_on", Strength: 1, Timestamp: base})
	assert.ErrorIs(t, err, memory.ErrInvalidReference)

	id1, err := r.UpsertRelationship(ctx, memory.Relationship{SourceID: "api", TargetID: "db", Type: "depends_on", Strength: 1, Timestamp: base})
	require.NoError(t, err)
	id2, err := r.UpsertRelationship(ctx, memory.Relationship{SourceID: "api", TargetID: "db", Type: "depends_on", Strength: 0.4, Timestamp: base.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	_, err = r.UpsertRelationship(ctx, memory.Relationship{SourceID: "cache", TargetID: "api", Type: "serves", Strength: 1, Timestamp: base})
	require.NoError(t, err)

	rel, err := r.GetRelationship(ctx, "api", "db", "depends_on")
	require.NoError(t, err)
	assert.Equal(t, 0.4, rel.Strength)

	_, err = r.GetRelationship(ctx, "db", "api", "depends_on")
	assert.ErrorIs(t, err, ErrNotFound)

	out, err := r.ListRelationships(ctx, RelationshipFilter{NodeID: "api", Direction: memory.DirectionOutgoing})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "db", out[0].Peer.Topic)
	assert.Equal(t, memory.DirectionOutgoing, out[0].Direction)

	in, err := r.ListRelationships(ctx, RelationshipFilter{NodeID: "api", Direction: memory.DirectionIncoming})
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "cache", in[0].Peer.Topic)

	both, err := r.ListRelationships(ctx, RelationshipFilter{NodeID: "api"})
	require.NoError(t, err)
	assert.Len(t, both, 2)

	typed, err := r.ListRelationships(ctx, RelationshipFilter{NodeID: "api", Type: "serves"})
	require.NoError(t, err)
	require.Len(t, typed, 1)
	assert.Equal(t, memory.DirectionIncoming, typed[0].Direction)

	none, err := r.ListRelationships(ctx, RelationshipFilter{NodeID: "ghost"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStore_MalformedMetadata(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "recall.db"))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.db.Exec(`INSERT INTO short_term_memory (key, value, timestamp, metadata) VALUES (?, ?, ?, ?)`,
		"legacy", `"x"`, formatTime(base), "{broken")
	require.NoError(t, err)

	row, err := s.GetContext(ctx, "legacy")
	require.NoError(t, err)
	raw, ok := row.Metadata.Raw()
	require.True(t, ok)
	assert.Equal(t, "{broken", raw)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "recall.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	_, err = s.UpsertKnowledge(ctx, node("n1", "facts", "deploy", "canary", 1, base))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.GetKnowledgeByID(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "canary", got.Content)
}

// failingRepo fails every durable call with a storage error.
type failingRepo struct {
	*MemoryStore
	calls int
}

func (f *failingRepo) PutContext(ctx context.Context, row ContextRow) error {
	f.calls++
	return errors.New("disk I/O error")
}

func (f *failingRepo) GetKnowledgeByKey(ctx context.Context, category, topic string) (*memory.KnowledgeNode, error) {
	f.calls++
	return nil, errors.New("disk I/O error")
}

func TestFallback_SwitchesPermanently(t *testing.T) {
	ctx := context.Background()
	buf := &bytes.Buffer{}
	primary := &failingRepo{MemoryStore: NewMemoryStore()}
	f := NewFallback(primary, observe.New(buf, false))
	require.False(t, f.Degraded())

	// The failing write is replayed on the stand-in.
	require.NoError(t, f.PutContext(ctx, ContextRow{Key: "k", Value: `"v"`, Timestamp: base}))
	assert.True(t, f.Degraded())
	assert.Equal(t, 1, primary.calls)
	assert.Contains(t, buf.String(), "switching to in-memory storage")

	got, err := f.GetContext(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `"v"`, got.Value)

	_, err = f.GetKnowledgeByKey(ctx, "c", "t")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, primary.calls)
}

func TestFallback_ExpectedErrorsDoNotDegrade(t *testing.T) {
	ctx := context.Background()
	f := NewFallback(NewMemoryStore(), observe.Discard())

	_, err := f.GetContext(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.UpsertRelationship(ctx, memory.Relationship{SourceID: "a", TargetID: "b", Type: "x", Timestamp: base})
	assert.ErrorIs(t, err, memory.ErrInvalidReference)
	assert.False(t, f.Degraded())
}

func TestFallback_ClosedDatabase(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "recall.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	f := NewFallback(s, observe.Discard())
	id, err := f.InsertEpisode(ctx, memory.Episode{SessionID: "s", Type: "user", Content: "hi", Timestamp: base, Importance: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.True(t, f.Degraded())
}

func TestOpen(t *testing.T) {
	f := Open(Config{InMemory: true}, nil)
	assert.True(t, f.Degraded())

	f = Open(Config{Path: filepath.Join(t.TempDir(), "recall.db")}, observe.Discard())
	defer f.Close()
	assert.False(t, f.Degraded())
}
