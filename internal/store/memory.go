package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/recall/internal/memory"
)

// MemoryStore is the in-process Repository used when durable storage is
// unavailable. It enforces the same keys, orderings and references as
// SQLiteStore.
type MemoryStore struct {
	mu sync.RWMutex

	context map[string]ContextRow

	episodes      []memory.Episode
	nextEpisodeID int64

	summaries     []memory.SessionSummary
	nextSummaryID int64

	knowledge  map[string]*knowledgeRow
	byKey      map[string]string
	nextRowID  int64
	edges      []memory.Relationship
	nextEdgeID int64
}

type knowledgeRow struct {
	node  memory.KnowledgeNode
	rowID int64
}

var _ Repository = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		context:   make(map[string]ContextRow),
		knowledge: make(map[string]*knowledgeRow),
		byKey:     make(map[string]string),
	}
}

func (m *MemoryStore) Close() error { return nil }

func knowledgeKey(category, topic string) string {
	return category + "\x00" + topic
}

func copyMeta(md memory.Metadata) memory.Metadata {
	if md == nil {
		return nil
	}
	out := make(memory.Metadata, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

// normalizeMeta mirrors the encode/decode cycle of the durable backend.
func normalizeMeta(md memory.Metadata) (memory.Metadata, error) {
	text, ok, err := memory.EncodeMetadata(md)
	if err != nil || !ok {
		return nil, err
	}
	return memory.DecodeMetadata(text), nil
}

// Short-term Implementation

func (m *MemoryStore) PutContext(_ context.Context, row ContextRow) error {
	meta, err := normalizeMeta(row.Metadata)
	if err != nil {
		return err
	}
	row.Metadata = meta
	row.Timestamp = truncate(row.Timestamp)
	if row.ExpiresAt != nil {
		t := truncate(*row.ExpiresAt)
		row.ExpiresAt = &t
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.context[row.Key] = row
	return nil
}

func (m *MemoryStore) GetContext(_ context.Context, key string) (*ContextRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.context[key]
	if !ok {
		return nil, fmt.Errorf("context %q: %w", key, ErrNotFound)
	}
	row.Metadata = copyMeta(row.Metadata)
	return &row, nil
}

func (m *MemoryStore) ListContext(_ context.Context) ([]ContextRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ContextRow, 0, len(m.context))
	for _, row := range m.context {
		row.Metadata = copyMeta(row.Metadata)
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) DeleteContext(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.context, key)
	return nil
}

func (m *MemoryStore) DeleteExpiredContext(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, row := range m.context {
		if row.ExpiresAt != nil && row.ExpiresAt.Before(now) {
			delete(m.context, key)
			removed++
		}
	}
	return removed, nil
}

// Episodic Implementation

func (m *MemoryStore) InsertEpisode(_ context.Context, e memory.Episode) (int64, error) {
	meta, err := normalizeMeta(e.Metadata)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextEpisodeID++
	e.ID = m.nextEpisodeID
	e.Timestamp = truncate(e.Timestamp)
	e.Metadata = meta
	if len(e.RelatedIDs) > 0 {
		e.RelatedIDs = append([]int64(nil), e.RelatedIDs...)
	} else {
		e.RelatedIDs = nil
	}
	m.episodes = append(m.episodes, e)
	return e.ID, nil
}

func cloneEpisode(e memory.Episode) memory.Episode {
	e.Metadata = copyMeta(e.Metadata)
	if e.RelatedIDs != nil {
		e.RelatedIDs = append([]int64(nil), e.RelatedIDs...)
	}
	return e
}

func (m *MemoryStore) GetEpisode(_ context.Context, id int64) (*memory.Episode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.episodes {
		if e.ID == id {
			c := cloneEpisode(e)
			return &c, nil
		}
	}
	return nil, fmt.Errorf("episode %d: %w", id, ErrNotFound)
}

func (m *MemoryStore) QueryEpisodes(_ context.Context, f EpisodeFilter) ([]memory.Episode, error) {
	m.mu.RLock()
	var matched []memory.Episode
	for _, e := range m.episodes {
		if f.SessionID != "" && e.SessionID != f.SessionID {
			continue
		}
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if !f.Start.IsZero() && e.Timestamp.Before(truncate(f.Start)) {
			continue
		}
		if !f.End.IsZero() && e.Timestamp.After(truncate(f.End)) {
			continue
		}
		matched = append(matched, cloneEpisode(e))
	}
	m.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].ID > matched[j].ID
	})

	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []memory.Episode{}, nil
	}
	matched = matched[offset:]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (m *MemoryStore) UpdateEpisodeImportance(_ context.Context, id int64, importance int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.episodes {
		if m.episodes[i].ID == id {
			m.episodes[i].Importance = importance
			return nil
		}
	}
	return fmt.Errorf("episode %d: %w", id, ErrNotFound)
}

// Summary Implementation

func (m *MemoryStore) InsertSummary(_ context.Context, s memory.SessionSummary) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSummaryID++
	s.ID = m.nextSummaryID
	s.StartTime = truncate(s.StartTime)
	s.EndTime = truncate(s.EndTime)
	m.summaries = append(m.summaries, s)
	return s.ID, nil
}

func (m *MemoryStore) LatestSummary(_ context.Context, sessionID string) (*memory.SessionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *memory.SessionSummary
	for i := range m.summaries {
		s := &m.summaries[i]
		if s.SessionID != sessionID {
			continue
		}
		if best == nil || s.EndTime.After(best.EndTime) || (s.EndTime.Equal(best.EndTime) && s.ID > best.ID) {
			best = s
		}
	}
	if best == nil {
		return nil, fmt.Errorf("summary for %q: %w", sessionID, ErrNotFound)
	}
	out := *best
	return &out, nil
}

// Knowledge Implementation

func (m *MemoryStore) UpsertKnowledge(_ context.Context, n memory.KnowledgeNode) (string, error) {
	meta, err := normalizeMeta(n.Metadata)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byKey[knowledgeKey(n.Category, n.Topic)]; ok {
		row := m.knowledge[id]
		row.node.Content = n.Content
		row.node.Confidence = n.Confidence
		row.node.Timestamp = truncate(n.Timestamp)
		row.node.Source = n.Source
		row.node.Metadata = meta
		return id, nil
	}
	if _, taken := m.knowledge[n.ID]; taken {
		return "", fmt.Errorf("failed to upsert knowledge %s/%s: duplicate id %s", n.Category, n.Topic, n.ID)
	}

	m.nextRowID++
	n.Timestamp = truncate(n.Timestamp)
	n.LastAccessed = truncate(n.LastAccessed)
	n.Metadata = meta
	m.knowledge[n.ID] = &knowledgeRow{node: n, rowID: m.nextRowID}
	m.byKey[knowledgeKey(n.Category, n.Topic)] = n.ID
	return n.ID, nil
}

func cloneNode(n memory.KnowledgeNode) *memory.KnowledgeNode {
	n.Metadata = copyMeta(n.Metadata)
	return &n
}

func (m *MemoryStore) GetKnowledgeByKey(_ context.Context, category, topic string) (*memory.KnowledgeNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byKey[knowledgeKey(category, topic)]
	if !ok {
		return nil, fmt.Errorf("knowledge: %w", ErrNotFound)
	}
	return cloneNode(m.knowledge[id].node), nil
}

func (m *MemoryStore) GetKnowledgeByID(_ context.Context, id string) (*memory.KnowledgeNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.knowledge[id]
	if !ok {
		return nil, fmt.Errorf("knowledge: %w", ErrNotFound)
	}
	return cloneNode(row.node), nil
}

func (m *MemoryStore) ListKnowledge(_ context.Context, f KnowledgeFilter) ([]memory.KnowledgeNode, error) {
	query := strings.ToLower(f.Query)

	m.mu.RLock()
	var rows []*knowledgeRow
	for _, row := range m.knowledge {
		if f.Category != "" && row.node.Category != f.Category {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(row.node.Topic), query) &&
			!strings.Contains(strings.ToLower(row.node.Content), query) {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.node.Confidence != b.node.Confidence {
			return a.node.Confidence > b.node.Confidence
		}
		if !a.node.LastAccessed.Equal(b.node.LastAccessed) {
			return a.node.LastAccessed.After(b.node.LastAccessed)
		}
		return a.rowID < b.rowID
	})
	if f.Limit > 0 && len(rows) > f.Limit {
		rows = rows[:f.Limit]
	}
	out := make([]memory.KnowledgeNode, 0, len(rows))
	for _, row := range rows {
		out = append(out, *cloneNode(row.node))
	}
	m.mu.RUnlock()
	return out, nil
}

func (m *MemoryStore) TouchKnowledge(_ context.Context, ids []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	at = truncate(at)
	for _, id := range ids {
		if row, ok := m.knowledge[id]; ok {
			row.node.LastAccessed = at
		}
	}
	return nil
}

// Relationship Implementation

func (m *MemoryStore) UpsertRelationship(_ context.Context, r memory.Relationship) (int64, error) {
	meta, err := normalizeMeta(r.Metadata)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, endpoint := range []string{r.SourceID, r.TargetID} {
		if _, ok := m.knowledge[endpoint]; !ok {
			return 0, fmt.Errorf("node %q: %w", endpoint, memory.ErrInvalidReference)
		}
	}
	for i := range m.edges {
		e := &m.edges[i]
		if e.SourceID == r.SourceID && e.TargetID == r.TargetID && e.Type == r.Type {
			e.Strength = r.Strength
			e.Timestamp = truncate(r.Timestamp)
			e.Metadata = meta
			return e.ID, nil
		}
	}
	m.nextEdgeID++
	m.edges = append(m.edges, memory.Relationship{
		ID:        m.nextEdgeID,
		SourceID:  r.SourceID,
		TargetID:  r.TargetID,
		Type:      r.Type,
		Strength:  r.Strength,
		Timestamp: truncate(r.Timestamp),
		Metadata:  meta,
	})
	return m.nextEdgeID, nil
}

func (m *MemoryStore) GetRelationship(_ context.Context, sourceID, targetID, relType string) (*memory.Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.edges {
		if e.SourceID == sourceID && e.TargetID == targetID && e.Type == relType {
			e.Metadata = copyMeta(e.Metadata)
			return &e, nil
		}
	}
	return nil, fmt.Errorf("relationship: %w", ErrNotFound)
}

func (m *MemoryStore) ListRelationships(_ context.Context, f RelationshipFilter) ([]memory.Relationship, error) {
	dirs := []memory.Direction{memory.DirectionOutgoing, memory.DirectionIncoming}
	switch f.Direction {
	case memory.DirectionOutgoing:
		dirs = dirs[:1]
	case memory.DirectionIncoming:
		dirs = dirs[1:]
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []memory.Relationship{}
	for _, dir := range dirs {
		for _, e := range m.edges {
			if f.Type != "" && e.Type != f.Type {
				continue
			}
			self, peerID := e.SourceID, e.TargetID
			if dir == memory.DirectionIncoming {
				self, peerID = peerID, self
			}
			if self != f.NodeID {
				continue
			}
			peer, ok := m.knowledge[peerID]
			if !ok {
				continue
			}
			e.Metadata = copyMeta(e.Metadata)
			e.Direction = dir
			e.Peer = &memory.NodeRef{ID: peer.node.ID, Category: peer.node.Category, Topic: peer.node.Topic}
			out = append(out, e)
		}
	}
	return out, nil
}
