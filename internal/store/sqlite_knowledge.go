package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/recall/internal/memory"
)

// Knowledge Implementation

func (s *SQLiteStore) UpsertKnowledge(ctx context.Context, n memory.KnowledgeNode) (string, error) {
	meta, err := encodeMeta(n.Metadata)
	if err != nil {
		return "", err
	}
	var source sql.NullString
	if n.Source != "" {
		source = sql.NullString{String: n.Source, Valid: true}
	}

	query := `INSERT INTO semantic_knowledge (id, category, topic, content, confidence, timestamp, last_accessed, source, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(category, topic) DO UPDATE SET content = excluded.content, confidence = excluded.confidence,
			timestamp = excluded.timestamp, source = excluded.source, metadata = excluded.metadata
		RETURNING id`
	var id string
	err = s.db.QueryRowContext(ctx, query, n.ID, n.Category, n.Topic, n.Content, n.Confidence,
		formatTime(n.Timestamp), formatTime(n.LastAccessed), source, meta).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert knowledge %s/%s: %w", n.Category, n.Topic, err)
	}
	return id, nil
}

const knowledgeColumns = `id, category, topic, content, confidence, timestamp, last_accessed, source, metadata`

func scanKnowledge(sc interface{ Scan(...any) error }) (*memory.KnowledgeNode, error) {
	var n memory.KnowledgeNode
	var ts, accessed string
	var source, meta sql.NullString
	if err := sc.Scan(&n.ID, &n.Category, &n.Topic, &n.Content, &n.Confidence, &ts, &accessed, &source, &meta); err != nil {
		return nil, err
	}
	var err error
	if n.Timestamp, err = parseTime(ts); err != nil {
		return nil, err
	}
	if n.LastAccessed, err = parseTime(accessed); err != nil {
		return nil, err
	}
	n.Source = source.String
	n.Metadata = decodeMeta(meta)
	return &n, nil
}

func (s *SQLiteStore) getKnowledge(ctx context.Context, where string, args ...any) (*memory.KnowledgeNode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+knowledgeColumns+` FROM semantic_knowledge WHERE `+where, args...)
	n, err := scanKnowledge(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("knowledge: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get knowledge: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) GetKnowledgeByKey(ctx context.Context, category, topic string) (*memory.KnowledgeNode, error) {
	return s.getKnowledge(ctx, `category = ? AND topic = ?`, category, topic)
}

func (s *SQLiteStore) GetKnowledgeByID(ctx context.Context, id string) (*memory.KnowledgeNode, error) {
	return s.getKnowledge(ctx, `id = ?`, id)
}

func (s *SQLiteStore) ListKnowledge(ctx context.Context, f KnowledgeFilter) ([]memory.KnowledgeNode, error) {
	var where []string
	var args []any
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.Query != "" {
		where = append(where, "(instr(lower(topic), lower(?)) > 0 OR instr(lower(content), lower(?)) > 0)")
		args = append(args, f.Query, f.Query)
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + knowledgeColumns + ` FROM semantic_knowledge`)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY confidence DESC, last_accessed DESC, rowid ASC LIMIT ?")
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge: %w", err)
	}
	defer rows.Close()

	out := []memory.KnowledgeNode{}
	for rows.Next() {
		n, err := scanKnowledge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan knowledge: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) TouchKnowledge(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	stamp := formatTime(at)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `UPDATE semantic_knowledge SET last_accessed = ? WHERE id = ?`)
		if err != nil {
			return fmt.Errorf("failed to prepare touch: %w", err)
		}
		defer stmt.Close()
		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, stamp, id); err != nil {
				return fmt.Errorf("failed to touch knowledge %s: %w", id, err)
			}
		}
		return nil
	})
}

// Relationship Implementation

func (s *SQLiteStore) UpsertRelationship(ctx context.Context, r memory.Relationship) (int64, error) {
	meta, err := encodeMeta(r.Metadata)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		for _, endpoint := range []string{r.SourceID, r.TargetID} {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM semantic_knowledge WHERE id = ?`, endpoint).Scan(&exists)
			if err != nil {
				return fmt.Errorf("failed to check node %s: %w", endpoint, err)
			}
			if exists == 0 {
				return fmt.Errorf("node %q: %w", endpoint, memory.ErrInvalidReference)
			}
		}
		query := `INSERT INTO knowledge_relationships (source_id, target_id, relationship_type, strength, timestamp, metadata)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(source_id, target_id, relationship_type) DO UPDATE SET strength = excluded.strength,
				timestamp = excluded.timestamp, metadata = excluded.metadata
			RETURNING id`
		return tx.QueryRowContext(ctx, query, r.SourceID, r.TargetID, r.Type, r.Strength, formatTime(r.Timestamp), meta).Scan(&id)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

const relationshipColumns = `r.id, r.source_id, r.target_id, r.relationship_type, r.strength, r.timestamp, r.metadata`

func scanRelationship(sc interface{ Scan(...any) error }, extra ...any) (*memory.Relationship, error) {
	var r memory.Relationship
	var ts string
	var meta sql.NullString
	dest := append([]any{&r.ID, &r.SourceID, &r.TargetID, &r.Type, &r.Strength, &ts, &meta}, extra...)
	if err := sc.Scan(dest...); err != nil {
		return nil, err
	}
	var err error
	if r.Timestamp, err = parseTime(ts); err != nil {
		return nil, err
	}
	r.Metadata = decodeMeta(meta)
	return &r, nil
}

func (s *SQLiteStore) GetRelationship(ctx context.Context, sourceID, targetID, relType string) (*memory.Relationship, error) {
	query := `SELECT ` + relationshipColumns + ` FROM knowledge_relationships r
		WHERE r.source_id = ? AND r.target_id = ? AND r.relationship_type = ?`
	r, err := scanRelationship(s.db.QueryRowContext(ctx, query, sourceID, targetID, relType))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("relationship: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get relationship: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) ListRelationships(ctx context.Context, f RelationshipFilter) ([]memory.Relationship, error) {
	dirs := []memory.Direction{memory.DirectionOutgoing, memory.DirectionIncoming}
	switch f.Direction {
	case memory.DirectionOutgoing:
		dirs = dirs[:1]
	case memory.DirectionIncoming:
		dirs = dirs[1:]
	}

	out := []memory.Relationship{}
	for _, dir := range dirs {
		self, peer := "r.source_id", "r.target_id"
		if dir == memory.DirectionIncoming {
			self, peer = peer, self
		}
		query := `SELECT ` + relationshipColumns + `, k.id, k.category, k.topic FROM knowledge_relationships r
			JOIN semantic_knowledge k ON k.id = ` + peer + ` WHERE ` + self + ` = ?`
		args := []any{f.NodeID}
		if f.Type != "" {
			query += ` AND r.relationship_type = ?`
			args = append(args, f.Type)
		}
		query += ` ORDER BY r.id ASC`

		if err := s.collectRelationships(ctx, query, args, dir, &out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLiteStore) collectRelationships(ctx context.Context, query string, args []any, dir memory.Direction, out *[]memory.Relationship) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to list relationships: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var peer memory.NodeRef
		r, err := scanRelationship(rows, &peer.ID, &peer.Category, &peer.Topic)
		if err != nil {
			return fmt.Errorf("failed to scan relationship: %w", err)
		}
		r.Direction = dir
		r.Peer = &peer
		*out = append(*out, *r)
	}
	return rows.Err()
}
