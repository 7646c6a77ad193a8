// Package shortterm implements the session-scoped memory tier: keyed scratch
// values, the importance-ranked working context and the recent-turn ring.
package shortterm

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/recall/internal/memory"
	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/felixgeelhaar/recall/internal/store"
)

// Store is the short-term tier. Values are cached in-process as the caller
// supplied them and persisted as JSON.
type Store struct {
	mu    sync.Mutex
	repo  store.Repository
	obs   *observe.Observer
	cfg   memory.Config
	cache map[string]memory.ContextEntry
	now   func() time.Time
}

var _ memory.ShortTerm = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(repo store.Repository, obs *observe.Observer, cfg memory.Config, opts ...Option) *Store {
	if obs == nil {
		obs = observe.Discard()
	}
	cfg.ApplyDefaults()
	s := &Store{
		repo:  repo,
		obs:   obs,
		cfg:   cfg,
		cache: make(map[string]memory.ContextEntry),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StoreContext writes value under key, replacing any previous entry.
func (s *Store) StoreContext(ctx context.Context, key string, value any, opts memory.ContextOptions) bool {
	if key == "" {
		return false
	}
	now := s.now()
	entry := memory.ContextEntry{Key: key, Value: value, Timestamp: now, Metadata: opts.Metadata}
	switch {
	case opts.TTL > 0:
		exp := now.Add(opts.TTL)
		entry.ExpiresAt = &exp
	case opts.ExpiresAt != nil:
		exp := *opts.ExpiresAt
		entry.ExpiresAt = &exp
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(ctx, entry)
}

// put persists entry and caches it. Caller holds mu.
func (s *Store) put(ctx context.Context, entry memory.ContextEntry) bool {
	b, err := json.Marshal(entry.Value)
	if err != nil {
		s.obs.Log().Warn().Str("key", entry.Key).Err(err).Msg("context value is not serializable")
		return false
	}
	row := store.ContextRow{
		Key:       entry.Key,
		Value:     string(b),
		Timestamp: entry.Timestamp,
		ExpiresAt: entry.ExpiresAt,
		Metadata:  entry.Metadata,
	}
	if err := s.repo.PutContext(ctx, row); err != nil {
		s.obs.Log().Error().Str("key", entry.Key).Err(err).Msg("failed to store context")
		delete(s.cache, entry.Key)
		return false
	}
	s.cache[entry.Key] = entry
	return true
}

// GetContext returns the live value under key, or nil.
func (s *Store) GetContext(ctx context.Context, key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.load(ctx, key)
	if !ok {
		return nil
	}
	return entry.Value
}

// load returns the unexpired entry for key, filling the cache from the
// repository. Expired entries are removed. Caller holds mu.
func (s *Store) load(ctx context.Context, key string) (memory.ContextEntry, bool) {
	entry, ok := s.cache[key]
	if !ok {
		row, err := s.repo.GetContext(ctx, key)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				s.obs.Log().Error().Str("key", key).Err(err).Msg("failed to load context")
			}
			return memory.ContextEntry{}, false
		}
		var value any
		if err := json.Unmarshal([]byte(row.Value), &value); err != nil {
			s.obs.Log().Warn().Str("key", key).Err(err).Msg("stored context value is not valid JSON")
			value = row.Value
		}
		entry = memory.ContextEntry{
			Key:       row.Key,
			Value:     value,
			Timestamp: row.Timestamp,
			ExpiresAt: row.ExpiresAt,
			Metadata:  row.Metadata,
		}
		s.cache[key] = entry
	}
	if entry.Expired(s.now()) {
		s.remove(ctx, key)
		return memory.ContextEntry{}, false
	}
	return entry, true
}

// loadAs decodes the entry under key into T, whether it is cached as T or
// came back from storage as generic JSON. Caller holds mu.
func loadAs[T any](ctx context.Context, s *Store, key string) T {
	var zero T
	entry, ok := s.load(ctx, key)
	if !ok {
		return zero
	}
	if v, ok := entry.Value.(T); ok {
		return v
	}
	b, err := json.Marshal(entry.Value)
	if err != nil {
		return zero
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		s.obs.Log().Warn().Str("key", key).Err(err).Msg("unexpected shape for reserved context entry")
		return zero
	}
	entry.Value = out
	s.cache[key] = entry
	return out
}

func (s *Store) remove(ctx context.Context, key string) bool {
	delete(s.cache, key)
	if err := s.repo.DeleteContext(ctx, key); err != nil {
		s.obs.Log().Error().Str("key", key).Err(err).Msg("failed to delete context")
		return false
	}
	return true
}

// AddWorkingContext appends an item and returns its id, or "" when the topic
// is empty. The list is pruned once it grows past the working capacity.
func (s *Store) AddWorkingContext(ctx context.Context, in memory.WorkingContextInput) string {
	topic := strings.TrimSpace(in.Topic)
	if topic == "" {
		return ""
	}
	importance := in.Importance
	if importance == 0 {
		importance = memory.DefaultImportance
	}
	item := memory.WorkingContextItem{
		ID:         uuid.NewString(),
		Topic:      topic,
		Details:    in.Details,
		Importance: memory.ClampImportance(importance),
		CreatedAt:  s.now(),
		ExpiresAt:  in.ExpiresAt,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	items := append(s.working(ctx), item)
	if len(items) > s.cfg.WorkingCapacity {
		items = prune(items, s.cfg.WorkingCapacity, s.now())
	}
	if !s.saveWorking(ctx, items) {
		return ""
	}
	return item.ID
}

func (s *Store) working(ctx context.Context) []memory.WorkingContextItem {
	items := loadAs[[]memory.WorkingContextItem](ctx, s, memory.KeyWorkingContext)
	return append([]memory.WorkingContextItem(nil), items...)
}

func (s *Store) saveWorking(ctx context.Context, items []memory.WorkingContextItem) bool {
	if items == nil {
		items = []memory.WorkingContextItem{}
	}
	return s.put(ctx, memory.ContextEntry{Key: memory.KeyWorkingContext, Value: items, Timestamp: s.now()})
}

// GetWorkingContext returns live items matching q, most important first.
// Items of equal importance keep insertion order.
func (s *Store) GetWorkingContext(ctx context.Context, q memory.WorkingContextQuery) []memory.WorkingContextItem {
	maxItems := q.MaxItems
	if maxItems <= 0 {
		maxItems = memory.DefaultMaxItems
	}

	s.mu.Lock()
	items := s.working(ctx)
	s.mu.Unlock()

	now := s.now()
	out := []memory.WorkingContextItem{}
	for _, it := range items {
		if q.Topic != "" && it.Topic != q.Topic {
			continue
		}
		if it.Importance < q.MinImportance || it.Expired(now) {
			continue
		}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	if len(out) > maxItems {
		out = out[:maxItems]
	}
	return out
}

// ClearContext removes a single working context item when itemID is set and
// name is the working context; otherwise it removes the entry under name.
func (s *Store) ClearContext(ctx context.Context, name, itemID string) bool {
	if name == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == memory.KeyWorkingContext && itemID != "" {
		items := s.working(ctx)
		for i, it := range items {
			if it.ID == itemID {
				return s.saveWorking(ctx, append(items[:i], items[i+1:]...))
			}
		}
		return false
	}
	return s.remove(ctx, name)
}

// PruneMemory drops expired working items, then the least important ones
// until at most targetSize remain, and returns the remaining count. A
// non-positive target uses the working capacity.
func (s *Store) PruneMemory(ctx context.Context, targetSize int) int {
	if targetSize <= 0 {
		targetSize = s.cfg.WorkingCapacity
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.working(ctx)
	kept := prune(items, targetSize, s.now())
	if len(items) != len(kept) {
		s.obs.Log().Info().Int("before", len(items)).Int("after", len(kept)).Msg("pruned working context")
	}
	if !s.saveWorking(ctx, kept) {
		return len(items)
	}
	return len(kept)
}

// prune expires first, then evicts by importance. Among equal importance the
// most recently inserted item goes first. The result is sorted by importance.
func prune(items []memory.WorkingContextItem, target int, now time.Time) []memory.WorkingContextItem {
	live := make([]memory.WorkingContextItem, 0, len(items))
	for _, it := range items {
		if !it.Expired(now) {
			live = append(live, it)
		}
	}
	sort.SliceStable(live, func(i, j int) bool { return live[i].Importance > live[j].Importance })
	if len(live) > target {
		live = live[:target]
	}
	return live
}

// AddConversationTurn appends to the turn ring, keeping the most recent turns.
func (s *Store) AddConversationTurn(ctx context.Context, turn memory.ConversationTurn) bool {
	if !turn.Role.Valid() {
		return false
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := append(s.turns(ctx), turn)
	if over := len(turns) - s.cfg.TurnCapacity; over > 0 {
		turns = turns[over:]
	}
	return s.put(ctx, memory.ContextEntry{Key: memory.KeyConversationTurns, Value: turns, Timestamp: s.now()})
}

func (s *Store) turns(ctx context.Context) []memory.ConversationTurn {
	turns := loadAs[[]memory.ConversationTurn](ctx, s, memory.KeyConversationTurns)
	return append([]memory.ConversationTurn(nil), turns...)
}

// GetConversationContext returns up to maxTurns of the newest turns in
// chronological order. A non-positive maxTurns returns the whole ring.
func (s *Store) GetConversationContext(ctx context.Context, maxTurns int) []memory.ConversationTurn {
	s.mu.Lock()
	turns := s.turns(ctx)
	s.mu.Unlock()

	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	if turns == nil {
		turns = []memory.ConversationTurn{}
	}
	return turns
}

// ActiveSessionID returns the current session id, or "".
func (s *Store) ActiveSessionID(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return loadAs[string](ctx, s, memory.KeySessionID)
}

// SetActiveSessionID replaces the current session id.
func (s *Store) SetActiveSessionID(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(ctx, memory.ContextEntry{Key: memory.KeySessionID, Value: id, Timestamp: s.now()})
}

// RemoveExpired deletes expired entries and expired working items, returning
// how many were removed.
func (s *Store) RemoveExpired(ctx context.Context) int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.cache {
		if entry.Expired(now) {
			delete(s.cache, key)
		}
	}
	removed, err := s.repo.DeleteExpiredContext(ctx, now)
	if err != nil {
		s.obs.Log().Error().Err(err).Msg("failed to remove expired context")
	}

	items := s.working(ctx)
	live := items[:0:0]
	for _, it := range items {
		if !it.Expired(now) {
			live = append(live, it)
		}
	}
	if len(live) != len(items) {
		removed += len(items) - len(live)
		s.saveWorking(ctx, live)
	}
	return removed
}

// Entries lists every live entry, keyed scratch values and reserved lists
// alike, in key order.
func (s *Store) Entries(ctx context.Context) []memory.ContextEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.repo.ListContext(ctx)
	if err != nil {
		s.obs.Log().Error().Err(err).Msg("failed to list context")
		return []memory.ContextEntry{}
	}
	out := make([]memory.ContextEntry, 0, len(rows))
	for _, row := range rows {
		if entry, ok := s.load(ctx, row.Key); ok {
			out = append(out, entry)
		}
	}
	return out
}
