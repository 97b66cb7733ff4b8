package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteTimeLayout keeps timestamps lexicographically sortable in TEXT columns.
const sqliteTimeLayout = time.RFC3339Nano

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS flight_sessions (
    id                     TEXT PRIMARY KEY,
    title                  TEXT NOT NULL,
    phase                  TEXT NOT NULL DEFAULT 'input',
    initial_messages       TEXT NOT NULL DEFAULT '[]',
    research_brief         TEXT NOT NULL DEFAULT '',
    search_result          TEXT NOT NULL DEFAULT '',
    chat_messages          TEXT NOT NULL DEFAULT '[]',
    status                 TEXT NOT NULL DEFAULT 'active',
    token_count            INTEGER NOT NULL DEFAULT 0,
    is_summarized          INTEGER NOT NULL DEFAULT 0,
    summarized_at          TEXT,
    original_token_count   INTEGER NOT NULL DEFAULT 0,
    summarized_token_count INTEGER NOT NULL DEFAULT 0,
    current_agent          TEXT NOT NULL DEFAULT 'flight_agent',
    last_handoff           TEXT,
    version                INTEGER NOT NULL DEFAULT 0,
    created_at             TEXT NOT NULL,
    updated_at             TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_flight_sessions_updated_at
    ON flight_sessions (updated_at DESC);
`

// SQLiteStore implements Store on a local SQLite database, the storage the
// original single-user deployment shape calls for.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) a SQLite-backed store at path.
// Use ":memory:" for an ephemeral store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// The sqlite driver serializes writes; a single connection avoids
	// table-lock contention between pooled connections.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteColumns = `id, title, phase, initial_messages, research_brief, search_result,
	chat_messages, status, token_count, is_summarized, summarized_at,
	original_token_count, summarized_token_count, current_agent, last_handoff,
	version, created_at, updated_at`

func (s *SQLiteStore) Create(ctx context.Context, id, title string) (*SessionRecord, error) {
	rec := NewRecord(id, title, time.Now().UTC())

	args, err := sqliteArgs(rec)
	if err != nil {
		return nil, err
	}
	query := `INSERT INTO flight_sessions (` + sqliteColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*SessionRecord, error) {
	query := `SELECT ` + sqliteColumns + ` FROM flight_sessions WHERE id = ?`
	rec, err := scanSQLiteRecord(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, rec *SessionRecord) error {
	stored := rec.Clone()
	stored.UpdatedAt = time.Now().UTC()

	args, err := sqliteArgs(stored)
	if err != nil {
		return err
	}
	query := `INSERT INTO flight_sessions (` + sqliteColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			phase = excluded.phase,
			initial_messages = excluded.initial_messages,
			research_brief = excluded.research_brief,
			search_result = excluded.search_result,
			chat_messages = excluded.chat_messages,
			status = excluded.status,
			token_count = excluded.token_count,
			is_summarized = excluded.is_summarized,
			summarized_at = excluded.summarized_at,
			original_token_count = excluded.original_token_count,
			summarized_token_count = excluded.summarized_token_count,
			current_agent = excluded.current_agent,
			last_handoff = excluded.last_handoff,
			version = excluded.version,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	rec.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *SQLiteStore) ListSummaries(ctx context.Context) ([]*SessionSummary, error) {
	query := `SELECT id, title, phase, status, token_count, is_summarized, created_at, updated_at
		FROM flight_sessions ORDER BY updated_at DESC`
	return s.querySummaries(ctx, query)
}

func (s *SQLiteStore) ListByStatus(ctx context.Context, status Status) ([]*SessionSummary, error) {
	query := `SELECT id, title, phase, status, token_count, is_summarized, created_at, updated_at
		FROM flight_sessions WHERE status = ? ORDER BY updated_at DESC`
	return s.querySummaries(ctx, query, string(status))
}

func (s *SQLiteStore) querySummaries(ctx context.Context, query string, args ...any) ([]*SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var createdAt, updatedAt string
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.Phase, &sum.Status,
			&sum.TokenCount, &sum.IsSummarized, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		if sum.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if sum.UpdatedAt, err = time.Parse(sqliteTimeLayout, updatedAt); err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		out = append(out, &sum)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Rename(ctx context.Context, id, newTitle string) error {
	query := `UPDATE flight_sessions
		SET title = ?, version = version + 1, updated_at = ?
		WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, newTitle, time.Now().UTC().Format(sqliteTimeLayout), id)
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM flight_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM flight_sessions WHERE created_at < ?`,
		cutoff.UTC().Format(sqliteTimeLayout))
	if err != nil {
		return 0, fmt.Errorf("delete old sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete old sessions: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM flight_sessions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

// sqliteArgs flattens a record into column order for INSERT/UPSERT.
func sqliteArgs(rec *SessionRecord) ([]any, error) {
	initialJSON, err := json.Marshal(recOrEmptyMessages(rec.InitialMessages))
	if err != nil {
		return nil, fmt.Errorf("marshal initial messages: %w", err)
	}
	chatJSON, err := json.Marshal(recOrEmptyChat(rec.ChatMessages))
	if err != nil {
		return nil, fmt.Errorf("marshal chat messages: %w", err)
	}

	var handoffJSON any
	if rec.LastHandoff != nil {
		b, err := json.Marshal(rec.LastHandoff)
		if err != nil {
			return nil, fmt.Errorf("marshal last handoff: %w", err)
		}
		handoffJSON = string(b)
	}

	var summarizedAt any
	if rec.SummarizedAt != nil {
		summarizedAt = rec.SummarizedAt.UTC().Format(sqliteTimeLayout)
	}

	return []any{
		rec.ID,
		rec.Title,
		string(rec.Phase),
		string(initialJSON),
		rec.ResearchBrief,
		rec.SearchResult,
		string(chatJSON),
		string(rec.Status),
		rec.TokenCount,
		rec.IsSummarized,
		summarizedAt,
		rec.OriginalTokenCount,
		rec.SummarizedTokenCount,
		string(rec.CurrentAgent.OrDefault()),
		handoffJSON,
		rec.Version,
		rec.CreatedAt.UTC().Format(sqliteTimeLayout),
		rec.UpdatedAt.UTC().Format(sqliteTimeLayout),
	}, nil
}

func recOrEmptyMessages(msgs []Message) []Message {
	if msgs == nil {
		return []Message{}
	}
	return msgs
}

func recOrEmptyChat(msgs []ChatMessage) []ChatMessage {
	if msgs == nil {
		return []ChatMessage{}
	}
	return msgs
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (*SessionRecord, error) {
	var (
		rec          SessionRecord
		initialJSON  string
		chatJSON     string
		summarizedAt sql.NullString
		handoffJSON  sql.NullString
		createdAt    string
		updatedAt    string
	)

	err := row.Scan(
		&rec.ID,
		&rec.Title,
		&rec.Phase,
		&initialJSON,
		&rec.ResearchBrief,
		&rec.SearchResult,
		&chatJSON,
		&rec.Status,
		&rec.TokenCount,
		&rec.IsSummarized,
		&summarizedAt,
		&rec.OriginalTokenCount,
		&rec.SummarizedTokenCount,
		&rec.CurrentAgent,
		&handoffJSON,
		&rec.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(initialJSON), &rec.InitialMessages); err != nil {
		return nil, fmt.Errorf("unmarshal initial messages: %w", err)
	}
	if err := json.Unmarshal([]byte(chatJSON), &rec.ChatMessages); err != nil {
		return nil, fmt.Errorf("unmarshal chat messages: %w", err)
	}
	if handoffJSON.Valid {
		rec.LastHandoff = &HandoffRecord{}
		if err := json.Unmarshal([]byte(handoffJSON.String), rec.LastHandoff); err != nil {
			return nil, fmt.Errorf("unmarshal last handoff: %w", err)
		}
	}
	if summarizedAt.Valid {
		t, err := time.Parse(sqliteTimeLayout, summarizedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse summarized_at: %w", err)
		}
		rec.SummarizedAt = &t
	}
	if rec.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(sqliteTimeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	rec.CurrentAgent = rec.CurrentAgent.OrDefault()
	return &rec, nil
}
