package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/recall/internal/memory"
	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Repository = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directories exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	dsn := "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; keeps pragmas and transactions on a single connection.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS short_term_memory (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			expiry_time TEXT,
			metadata TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS episodic_memory (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			type TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			importance INTEGER NOT NULL DEFAULT 1,
			related_ids TEXT,
			metadata TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_episodic_conversation ON episodic_memory(conversation_id, timestamp);`,
		`CREATE TABLE IF NOT EXISTS conversation_summaries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			summary TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			message_count INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS semantic_knowledge (
			id TEXT PRIMARY KEY,
			category TEXT NOT NULL,
			topic TEXT NOT NULL,
			content TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 1.0,
			timestamp TEXT NOT NULL,
			last_accessed TEXT NOT NULL,
			source TEXT,
			metadata TEXT,
			UNIQUE(category, topic)
		);`,
		`CREATE TABLE IF NOT EXISTS knowledge_relationships (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			relationship_type TEXT NOT NULL,
			strength REAL NOT NULL DEFAULT 1.0,
			timestamp TEXT NOT NULL,
			metadata TEXT,
			FOREIGN KEY(source_id) REFERENCES semantic_knowledge(id),
			FOREIGN KEY(target_id) REFERENCES semantic_knowledge(id),
			UNIQUE(source_id, target_id, relationship_type)
		);`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func encodeMeta(m memory.Metadata) (sql.NullString, error) {
	text, ok, err := memory.EncodeMetadata(m)
	if err != nil || !ok {
		return sql.NullString{}, err
	}
	return sql.NullString{String: text, Valid: true}, nil
}

func decodeMeta(ns sql.NullString) memory.Metadata {
	if !ns.Valid {
		return nil
	}
	return memory.DecodeMetadata(ns.String)
}

// Short-term Implementation

func (s *SQLiteStore) PutContext(ctx context.Context, row ContextRow) error {
	meta, err := encodeMeta(row.Metadata)
	if err != nil {
		return err
	}
	query := `INSERT INTO short_term_memory (key, value, timestamp, expiry_time, metadata) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, timestamp = excluded.timestamp,
			expiry_time = excluded.expiry_time, metadata = excluded.metadata`
	if _, err := s.db.ExecContext(ctx, query, row.Key, row.Value, formatTime(row.Timestamp), nullTime(row.ExpiresAt), meta); err != nil {
		return fmt.Errorf("failed to put context %q: %w", row.Key, err)
	}
	return nil
}

const contextColumns = `key, value, timestamp, expiry_time, metadata`

func scanContext(sc interface{ Scan(...any) error }) (*ContextRow, error) {
	var row ContextRow
	var ts string
	var expiry, meta sql.NullString
	if err := sc.Scan(&row.Key, &row.Value, &ts, &expiry, &meta); err != nil {
		return nil, err
	}
	var err error
	if row.Timestamp, err = parseTime(ts); err != nil {
		return nil, err
	}
	if row.ExpiresAt, err = parseNullTime(expiry); err != nil {
		return nil, err
	}
	row.Metadata = decodeMeta(meta)
	return &row, nil
}

func (s *SQLiteStore) GetContext(ctx context.Context, key string) (*ContextRow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contextColumns+` FROM short_term_memory WHERE key = ?`, key)
	r, err := scanContext(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("context %q: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get context %q: %w", key, err)
	}
	return r, nil
}

func (s *SQLiteStore) ListContext(ctx context.Context) ([]ContextRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+contextColumns+` FROM short_term_memory ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list context: %w", err)
	}
	defer rows.Close()

	out := []ContextRow{}
	for rows.Next() {
		r, err := scanContext(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan context: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteContext(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM short_term_memory WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete context %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteExpiredContext(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM short_term_memory WHERE expiry_time IS NOT NULL AND expiry_time < ?`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired context: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Episodic Implementation

func (s *SQLiteStore) InsertEpisode(ctx context.Context, e memory.Episode) (int64, error) {
	meta, err := encodeMeta(e.Metadata)
	if err != nil {
		return 0, err
	}
	var related sql.NullString
	if len(e.RelatedIDs) > 0 {
		b, err := json.Marshal(e.RelatedIDs)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal related ids: %w", err)
		}
		related = sql.NullString{String: string(b), Valid: true}
	}

	query := `INSERT INTO episodic_memory (conversation_id, type, content, timestamp, importance, related_ids, metadata) VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query, e.SessionID, e.Type, e.Content, formatTime(e.Timestamp), e.Importance, related, meta)
	if err != nil {
		return 0, fmt.Errorf("failed to insert episode: %w", err)
	}
	return res.LastInsertId()
}

const episodeColumns = `id, conversation_id, type, content, timestamp, importance, related_ids, metadata`

func scanEpisode(sc interface{ Scan(...any) error }) (*memory.Episode, error) {
	var e memory.Episode
	var ts string
	var related, meta sql.NullString
	if err := sc.Scan(&e.ID, &e.SessionID, &e.Type, &e.Content, &ts, &e.Importance, &related, &meta); err != nil {
		return nil, err
	}
	var err error
	if e.Timestamp, err = parseTime(ts); err != nil {
		return nil, err
	}
	if related.Valid && related.String != "" {
		// Unparseable ids are dropped; the content is still usable.
		_ = json.Unmarshal([]byte(related.String), &e.RelatedIDs)
	}
	e.Metadata = decodeMeta(meta)
	return &e, nil
}

func (s *SQLiteStore) GetEpisode(ctx context.Context, id int64) (*memory.Episode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodic_memory WHERE id = ?`, id)
	e, err := scanEpisode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("episode %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get episode %d: %w", id, err)
	}
	return e, nil
}

func (s *SQLiteStore) QueryEpisodes(ctx context.Context, f EpisodeFilter) ([]memory.Episode, error) {
	var where []string
	var args []any
	if f.SessionID != "" {
		where = append(where, "conversation_id = ?")
		args = append(args, f.SessionID)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}
	if !f.Start.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, formatTime(f.Start))
	}
	if !f.End.IsZero() {
		where = append(where, "timestamp <= ?")
		args = append(args, formatTime(f.End))
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + episodeColumns + ` FROM episodic_memory`)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?")
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query episodes: %w", err)
	}
	defer rows.Close()

	out := []memory.Episode{}
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateEpisodeImportance(ctx context.Context, id int64, importance int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE episodic_memory SET importance = ? WHERE id = ?`, importance, id)
	if err != nil {
		return fmt.Errorf("failed to update episode %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("episode %d: %w", id, ErrNotFound)
	}
	return nil
}

// Summary Implementation

func (s *SQLiteStore) InsertSummary(ctx context.Context, sum memory.SessionSummary) (int64, error) {
	query := `INSERT INTO conversation_summaries (session_id, summary, start_time, end_time, message_count) VALUES (?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query, sum.SessionID, sum.Summary, formatTime(sum.StartTime), formatTime(sum.EndTime), sum.MessageCount)
	if err != nil {
		return 0, fmt.Errorf("failed to insert summary: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) LatestSummary(ctx context.Context, sessionID string) (*memory.SessionSummary, error) {
	query := `SELECT id, session_id, summary, start_time, end_time, message_count FROM conversation_summaries
		WHERE session_id = ? ORDER BY end_time DESC, id DESC LIMIT 1`
	var sum memory.SessionSummary
	var start, end string
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(&sum.ID, &sum.SessionID, &sum.Summary, &start, &end, &sum.MessageCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("summary for %q: %w", sessionID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}
	if sum.StartTime, err = parseTime(start); err != nil {
		return nil, err
	}
	if sum.EndTime, err = parseTime(end); err != nil {
		return nil, err
	}
	return &sum, nil
}
