// Package semantic implements the knowledge graph tier: nodes unique on
// (category, topic) joined by typed, weighted relationships.
package semantic

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/recall/internal/memory"
	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/felixgeelhaar/recall/internal/store"
)

type Store struct {
	mu   sync.Mutex
	repo store.Repository
	obs  *observe.Observer
	now  func() time.Time
}

var _ memory.Semantic = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(repo store.Repository, obs *observe.Observer, opts ...Option) *Store {
	if obs == nil {
		obs = observe.Discard()
	}
	s := &Store{repo: repo, obs: obs, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StoreKnowledge upserts the node for (category, topic) and returns its id.
// An existing node keeps its id.
func (s *Store) StoreKnowledge(ctx context.Context, category, topic, content string, opts memory.KnowledgeOptions) string {
	category, topic = strings.TrimSpace(category), strings.TrimSpace(topic)
	if category == "" || topic == "" {
		return ""
	}
	confidence := memory.DefaultConfidence
	if opts.Confidence != nil {
		confidence = memory.ClampUnit(*opts.Confidence)
	}
	now := s.now()
	n := memory.KnowledgeNode{
		ID:           uuid.NewString(),
		Category:     category,
		Topic:        topic,
		Content:      content,
		Confidence:   confidence,
		Timestamp:    now,
		LastAccessed: now,
		Source:       opts.Source,
		Metadata:     opts.Metadata,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.repo.UpsertKnowledge(ctx, n)
	if err != nil {
		s.obs.Log().Error().Str("category", category).Str("topic", topic).Err(err).Msg("failed to store knowledge")
		return ""
	}
	return id
}

// touch records the read of nodes. Caller holds mu.
func (s *Store) touch(ctx context.Context, nodes []memory.KnowledgeNode) {
	if len(nodes) == 0 {
		return
	}
	at := s.now()
	ids := make([]string, len(nodes))
	for i := range nodes {
		ids[i] = nodes[i].ID
	}
	if err := s.repo.TouchKnowledge(ctx, ids, at); err != nil {
		s.obs.Log().Warn().Err(err).Msg("failed to record knowledge access")
		return
	}
	for i := range nodes {
		nodes[i].LastAccessed = at
	}
}

func (s *Store) one(ctx context.Context, get func() (*memory.KnowledgeNode, error)) *memory.KnowledgeNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := get()
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.obs.Log().Error().Err(err).Msg("failed to get knowledge")
		}
		return nil
	}
	nodes := []memory.KnowledgeNode{*n}
	s.touch(ctx, nodes)
	return &nodes[0]
}

// GetKnowledge returns the node for (category, topic), or nil.
func (s *Store) GetKnowledge(ctx context.Context, category, topic string) *memory.KnowledgeNode {
	return s.one(ctx, func() (*memory.KnowledgeNode, error) {
		return s.repo.GetKnowledgeByKey(ctx, category, topic)
	})
}

// GetByID returns the node with id, or nil.
func (s *Store) GetByID(ctx context.Context, id string) *memory.KnowledgeNode {
	return s.one(ctx, func() (*memory.KnowledgeNode, error) {
		return s.repo.GetKnowledgeByID(ctx, id)
	})
}

func (s *Store) list(ctx context.Context, f store.KnowledgeFilter) []memory.KnowledgeNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodes, err := s.repo.ListKnowledge(ctx, f)
	if err != nil {
		s.obs.Log().Error().Err(err).Msg("failed to list knowledge")
		return []memory.KnowledgeNode{}
	}
	s.touch(ctx, nodes)
	return nodes
}

// GetByCategory returns every node in category.
func (s *Store) GetByCategory(ctx context.Context, category string) []memory.KnowledgeNode {
	if category == "" {
		return []memory.KnowledgeNode{}
	}
	return s.list(ctx, store.KnowledgeFilter{Category: category})
}

// Search matches query as a case-insensitive substring of topic or content.
// Results rank by confidence, then by the access time before this search,
// then by insertion.
func (s *Store) Search(ctx context.Context, query string, opts memory.SearchOptions) []memory.KnowledgeNode {
	query = strings.TrimSpace(query)
	if query == "" {
		return []memory.KnowledgeNode{}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = memory.DefaultSearchLimit
	}
	return s.list(ctx, store.KnowledgeFilter{Category: opts.Category, Query: query, Limit: limit})
}

// CreateRelationship links two existing nodes. Repeating a (source, target,
// type) triple updates the edge. It returns false when either node is
// missing.
func (s *Store) CreateRelationship(ctx context.Context, sourceID, targetID, relType string, opts memory.RelationshipOptions) bool {
	relType = strings.TrimSpace(relType)
	if sourceID == "" || targetID == "" || relType == "" {
		return false
	}
	strength := memory.DefaultStrength
	if opts.Strength != nil {
		strength = memory.ClampUnit(*opts.Strength)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.repo.UpsertRelationship(ctx, memory.Relationship{
		SourceID:  sourceID,
		TargetID:  targetID,
		Type:      relType,
		Strength:  strength,
		Timestamp: s.now(),
		Metadata:  opts.Metadata,
	})
	if err != nil {
		if errors.Is(err, memory.ErrInvalidReference) {
			s.obs.Log().Warn().Str("source", sourceID).Str("target", targetID).Msg("relationship references a missing node")
		} else {
			s.obs.Log().Error().Err(err).Msg("failed to create relationship")
		}
		return false
	}
	return true
}

// GetRelationship returns the edge for the triple, or nil.
func (s *Store) GetRelationship(ctx context.Context, sourceID, targetID, relType string) *memory.Relationship {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.repo.GetRelationship(ctx, sourceID, targetID, relType)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.obs.Log().Error().Err(err).Msg("failed to get relationship")
		}
		return nil
	}
	return r
}

// GetRelationships returns edges touching nodeID in the requested direction,
// each annotated with the far endpoint.
func (s *Store) GetRelationships(ctx context.Context, nodeID string, q memory.RelationshipQuery) []memory.Relationship {
	dir := q.Direction
	switch dir {
	case "":
		dir = memory.DirectionBoth
	case memory.DirectionOutgoing, memory.DirectionIncoming, memory.DirectionBoth:
	default:
		s.obs.Log().Warn().Str("direction", string(dir)).Msg("unknown relationship direction")
		return []memory.Relationship{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out, err := s.repo.ListRelationships(ctx, store.RelationshipFilter{NodeID: nodeID, Direction: dir, Type: q.Type})
	if err != nil {
		s.obs.Log().Error().Err(err).Msg("failed to list relationships")
		return []memory.Relationship{}
	}
	return out
}
