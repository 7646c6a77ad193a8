package episodic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/recall/internal/memory"
	"github.com/felixgeelhaar/recall/internal/memory/shortterm"
	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/felixgeelhaar/recall/internal/store"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newStores(t *testing.T) (*Store, *shortterm.Store) {
	t.Helper()
	repo := store.NewMemoryStore()
	st := shortterm.New(repo, observe.Discard(), memory.Config{})
	return New(repo, st, observe.Discard(), memory.Config{}), st
}

func TestStoreConversation_SessionDefaults(t *testing.T) {
	ctx := context.Background()
	s, st := newStores(t)

	id := s.StoreConversation(ctx, memory.ConversationInput{Role: memory.RoleUser, Content: "hello"})
	require.NotZero(t, id)

	// A minted session id becomes the active one.
	active := st.ActiveSessionID(ctx)
	require.NotEmpty(t, active)
	e := s.GetEpisode(ctx, id)
	require.NotNil(t, e)
	assert.Equal(t, active, e.SessionID)
	assert.Equal(t, "user", e.Type)
	assert.Equal(t, memory.DefaultEpisodeImportance, e.Importance)

	require.True(t, st.SetActiveSessionID(ctx, "sess-2"))
	id2 := s.StoreConversation(ctx, memory.ConversationInput{Role: memory.RoleAssistant, Content: "hi"})
	assert.Equal(t, "sess-2", s.GetEpisode(ctx, id2).SessionID)

	id3 := s.StoreConversation(ctx, memory.ConversationInput{Role: memory.RoleUser, Content: "x", SessionID: "explicit"})
	assert.Equal(t, "explicit", s.GetEpisode(ctx, id3).SessionID)

	assert.Zero(t, s.StoreConversation(ctx, memory.ConversationInput{Role: "tool", Content: "x"}))
}

func TestStoreConversation_WithoutShortTerm(t *testing.T) {
	ctx := context.Background()
	s := New(store.NewMemoryStore(), nil, observe.Discard(), memory.Config{})

	a := s.GetEpisode(ctx, s.StoreConversation(ctx, memory.ConversationInput{Role: memory.RoleUser, Content: "a"}))
	b := s.GetEpisode(ctx, s.StoreConversation(ctx, memory.ConversationInput{Role: memory.RoleUser, Content: "b"}))
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, a.SessionID, b.SessionID)
}

func TestGetConversations(t *testing.T) {
	ctx := context.Background()
	s, _ := newStores(t)

	for i, c := range []struct {
		role    memory.Role
		session string
	}{
		{memory.RoleUser, "s1"}, {memory.RoleAssistant, "s1"}, {memory.RoleUser, "s1"}, {memory.RoleUser, "s2"},
	} {
		s.StoreConversation(ctx, memory.ConversationInput{
			Role: c.role, Content: string(rune('a' + i)), SessionID: c.session, Timestamp: t0.Add(time.Duration(i) * time.Minute),
		})
	}

	all := s.GetConversations(ctx, memory.ConversationQuery{})
	assert.Equal(t, []string{"d", "c", "b", "a"}, contents(all))

	assert.Equal(t, []string{"c", "a"}, contents(s.GetConversations(ctx, memory.ConversationQuery{SessionID: "s1", Role: memory.RoleUser})))
	assert.Equal(t, []string{"c", "b"}, contents(s.GetConversations(ctx, memory.ConversationQuery{
		StartTime: t0.Add(time.Minute), EndTime: t0.Add(2 * time.Minute),
	})))
	assert.Equal(t, []string{"b"}, contents(s.GetConversations(ctx, memory.ConversationQuery{Limit: 1, Offset: 2})))
	assert.Empty(t, s.GetConversations(ctx, memory.ConversationQuery{SessionID: "nope"}))
}

func TestGetRecentConversations(t *testing.T) {
	ctx := context.Background()
	s, _ := newStores(t)
	for i := 0; i < 15; i++ {
		s.StoreConversation(ctx, memory.ConversationInput{
			Role: memory.RoleUser, Content: string(rune('a' + i)), SessionID: "s", Timestamp: t0.Add(time.Duration(i) * time.Second),
		})
	}

	recent := s.GetRecentConversations(ctx, 3, "s")
	assert.Equal(t, []string{"m", "n", "o"}, contents(recent))
	assert.Len(t, s.GetRecentConversations(ctx, 0, ""), memory.DefaultRecentCount)
}

func TestUpdateImportance(t *testing.T) {
	ctx := context.Background()
	s, _ := newStores(t)
	id := s.StoreConversation(ctx, memory.ConversationInput{Role: memory.RoleUser, Content: "x", SessionID: "s"})

	assert.True(t, s.UpdateImportance(ctx, id, 8))
	assert.Equal(t, 5, s.GetEpisode(ctx, id).Importance)
	assert.False(t, s.UpdateImportance(ctx, id+100, 2))
	assert.Nil(t, s.GetEpisode(ctx, id+100))
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, memory.NoConversationsSummary, Summarize(nil))

	list := []memory.Episode{
		{Type: "user", Content: "The deploy pipeline is broken, deploy fails!", Timestamp: t0.Add(time.Minute)},
		{Type: "assistant", Content: "Check the pipeline logs; the cache might be stale.", Timestamp: t0},
		{Type: "user", Content: "Which cache? Please check deploy config.", Timestamp: t0.Add(2 * time.Minute)},
		{Type: "system", Content: "note", Timestamp: t0.Add(time.Second)},
	}
	got := Summarize(list)
	assert.Equal(t,
		"4 messages (user: 2, assistant: 1, system: 1).\n"+
			"Period: 2026-05-01T09:00:00Z to 2026-05-01T09:02:00Z.\n"+
			"Topics: deploy, pipeline, check, cache, broken.",
		got)
}

func TestTopicWords_TiesKeepFirstSeen(t *testing.T) {
	list := []memory.Episode{{Content: "zeta alpha zeta beta alpha gamma delta epsilon"}}
	assert.Equal(t, []string{"zeta", "alpha", "beta", "gamma", "delta"}, TopicWords(list, 5))
	assert.Empty(t, TopicWords([]memory.Episode{{Content: "this is what they want"}}, 5))
}

func TestSummaries(t *testing.T) {
	ctx := context.Background()
	s, st := newStores(t)

	assert.Nil(t, s.SummarizeCurrentSession(ctx))
	assert.Nil(t, s.GetSessionSummary(ctx, ""))

	st.SetActiveSessionID(ctx, "s1")
	s.StoreConversation(ctx, memory.ConversationInput{Role: memory.RoleUser, Content: "release checklist", Timestamp: t0})
	s.StoreConversation(ctx, memory.ConversationInput{Role: memory.RoleAssistant, Content: "release notes drafted", Timestamp: t0.Add(time.Minute)})

	sum := s.SummarizeCurrentSession(ctx)
	require.NotNil(t, sum)
	assert.NotZero(t, sum.ID)
	assert.Equal(t, "s1", sum.SessionID)
	assert.Equal(t, 2, sum.MessageCount)
	assert.True(t, t0.Equal(sum.StartTime))
	assert.True(t, t0.Add(time.Minute).Equal(sum.EndTime))
	assert.Contains(t, sum.Summary, "Topics: release")

	// Summary entries logged back into the session are not re-counted.
	s.StoreConversation(ctx, memory.ConversationInput{
		Role: memory.RoleSystem, Content: sum.Summary, Timestamp: t0.Add(2 * time.Minute),
		Metadata: memory.Metadata{MetaKind: KindSessionSummary},
	})
	again := s.SummarizeCurrentSession(ctx)
	require.NotNil(t, again)
	assert.Equal(t, 2, again.MessageCount)

	s.StoreSummary(ctx, memory.SessionSummary{SessionID: "s1", Summary: "later", StartTime: t0, EndTime: t0.Add(time.Hour)})
	latest := s.GetSessionSummary(ctx, "")
	require.NotNil(t, latest)
	assert.Equal(t, "later", latest.Summary)
	assert.Zero(t, s.StoreSummary(ctx, memory.SessionSummary{}))
}

func contents(list []memory.Episode) []string {
	out := []string{}
	for _, e := range list {
		out = append(out, e.Content)
	}
	return out
}
