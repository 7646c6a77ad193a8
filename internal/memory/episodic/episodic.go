// Package episodic implements the interaction log: conversation entries keyed
// by session, plus statistical session summaries.
package episodic

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/recall/internal/memory"
	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/felixgeelhaar/recall/internal/store"
)

// MetaKind marks system entries by purpose.
const (
	MetaKind           = "kind"
	KindSessionSummary = "session_summary"
)

type Store struct {
	mu      sync.Mutex
	repo    store.Repository
	session memory.ShortTerm
	obs     *observe.Observer
	cfg     memory.Config
	now     func() time.Time

	// minted holds a generated session id when no short-term tier can keep it.
	minted string
}

var _ memory.Episodic = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates the episodic tier. session supplies and receives the active
// session id; nil disables sharing it.
func New(repo store.Repository, session memory.ShortTerm, obs *observe.Observer, cfg memory.Config, opts ...Option) *Store {
	if session == nil {
		session = memory.Nop{}
	}
	if obs == nil {
		obs = observe.Discard()
	}
	cfg.ApplyDefaults()
	s := &Store{repo: repo, session: session, obs: obs, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// activeSession returns the shared session id, minting one when none exists.
// It must be called without holding mu.
func (s *Store) activeSession(ctx context.Context) string {
	if id := s.session.ActiveSessionID(ctx); id != "" {
		return id
	}
	s.mu.Lock()
	if s.minted == "" {
		s.minted = uuid.NewString()
		s.obs.Log().Info().Str("session", s.minted).Msg("started new session")
	}
	id := s.minted
	s.mu.Unlock()

	s.session.SetActiveSessionID(ctx, id)
	return id
}

// StoreConversation logs one conversation entry and returns its id, or 0.
func (s *Store) StoreConversation(ctx context.Context, in memory.ConversationInput) int64 {
	if !in.Role.Valid() {
		s.obs.Log().Warn().Str("role", string(in.Role)).Msg("rejected conversation with unknown role")
		return 0
	}
	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = s.activeSession(ctx)
	}
	ts := in.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	importance := in.Importance
	if importance == 0 {
		importance = memory.DefaultEpisodeImportance
	}

	e := memory.Episode{
		SessionID:  sessionID,
		Type:       string(in.Role),
		Content:    in.Content,
		Timestamp:  ts,
		Importance: memory.ClampImportance(importance),
		RelatedIDs: in.RelatedIDs,
		Metadata:   in.Metadata,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.repo.InsertEpisode(ctx, e)
	if err != nil {
		s.obs.Log().Error().Str("session", sessionID).Err(err).Msg("failed to store conversation")
		return 0
	}
	return id
}

// GetConversations returns matching entries, newest first.
func (s *Store) GetConversations(ctx context.Context, q memory.ConversationQuery) []memory.Episode {
	limit := q.Limit
	if limit <= 0 {
		limit = memory.DefaultConversationLimit
	}
	return s.query(ctx, store.EpisodeFilter{
		SessionID: q.SessionID,
		Type:      string(q.Role),
		Start:     q.StartTime,
		End:       q.EndTime,
		Limit:     limit,
		Offset:    q.Offset,
	})
}

func (s *Store) query(ctx context.Context, f store.EpisodeFilter) []memory.Episode {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, err := s.repo.QueryEpisodes(ctx, f)
	if err != nil {
		s.obs.Log().Error().Err(err).Msg("failed to query conversations")
		return []memory.Episode{}
	}
	return out
}

// GetRecentConversations returns the newest count entries in chronological
// order. An empty sessionID spans all sessions.
func (s *Store) GetRecentConversations(ctx context.Context, count int, sessionID string) []memory.Episode {
	if count <= 0 {
		count = memory.DefaultRecentCount
	}
	out := s.query(ctx, store.EpisodeFilter{SessionID: sessionID, Limit: count})
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// GetEpisode returns one entry by id, or nil.
func (s *Store) GetEpisode(ctx context.Context, id int64) *memory.Episode {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.repo.GetEpisode(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.obs.Log().Error().Err(err).Msg("failed to get episode")
		}
		return nil
	}
	return e
}

// UpdateImportance changes the only mutable field of an entry.
func (s *Store) UpdateImportance(ctx context.Context, id int64, importance int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.UpdateEpisodeImportance(ctx, id, memory.ClampImportance(importance)); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.obs.Log().Error().Err(err).Msg("failed to update episode importance")
		}
		return false
	}
	return true
}

// SummarizeConversations renders the statistical digest of list.
func (s *Store) SummarizeConversations(list []memory.Episode) string {
	return Summarize(list)
}

// StoreSummary persists a session summary and returns its id, or 0.
func (s *Store) StoreSummary(ctx context.Context, sum memory.SessionSummary) int64 {
	if sum.SessionID == "" {
		return 0
	}
	if sum.EndTime.IsZero() {
		sum.EndTime = s.now()
	}
	if sum.StartTime.IsZero() {
		sum.StartTime = sum.EndTime
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.repo.InsertSummary(ctx, sum)
	if err != nil {
		s.obs.Log().Error().Str("session", sum.SessionID).Err(err).Msg("failed to store summary")
		return 0
	}
	return id
}

// GetSessionSummary returns the summary with the latest end time for
// sessionID, or for the active session when sessionID is empty.
func (s *Store) GetSessionSummary(ctx context.Context, sessionID string) *memory.SessionSummary {
	if sessionID == "" {
		sessionID = s.session.ActiveSessionID(ctx)
		if sessionID == "" {
			return nil
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, err := s.repo.LatestSummary(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.obs.Log().Error().Err(err).Msg("failed to get summary")
		}
		return nil
	}
	return sum
}

// SummarizeCurrentSession summarizes the active session's conversation,
// stores the result and returns it. It returns nil when there is nothing to
// summarize. Earlier summary entries are not counted.
func (s *Store) SummarizeCurrentSession(ctx context.Context) *memory.SessionSummary {
	sessionID := s.session.ActiveSessionID(ctx)
	if sessionID == "" {
		s.mu.Lock()
		sessionID = s.minted
		s.mu.Unlock()
	}
	if sessionID == "" {
		return nil
	}

	all := s.query(ctx, store.EpisodeFilter{SessionID: sessionID, Limit: s.cfg.SummaryWindow})
	list := make([]memory.Episode, 0, len(all))
	for _, e := range all {
		if e.Metadata.String(MetaKind) == KindSessionSummary {
			continue
		}
		list = append(list, e)
	}
	if len(list) == 0 {
		return nil
	}

	start, end := span(list)
	sum := memory.SessionSummary{
		SessionID:    sessionID,
		Summary:      Summarize(list),
		StartTime:    start,
		EndTime:      end,
		MessageCount: len(list),
	}
	sum.ID = s.StoreSummary(ctx, sum)
	return &sum
}
