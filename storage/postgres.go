package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS flight_sessions (
    id                     TEXT PRIMARY KEY,
    title                  TEXT NOT NULL,
    phase                  TEXT NOT NULL DEFAULT 'input',
    initial_messages       JSONB NOT NULL DEFAULT '[]',
    research_brief         TEXT NOT NULL DEFAULT '',
    search_result          TEXT NOT NULL DEFAULT '',
    chat_messages          JSONB NOT NULL DEFAULT '[]',
    status                 TEXT NOT NULL DEFAULT 'active',
    token_count            BIGINT NOT NULL DEFAULT 0,
    is_summarized          BOOLEAN NOT NULL DEFAULT FALSE,
    summarized_at          TIMESTAMPTZ,
    original_token_count   BIGINT NOT NULL DEFAULT 0,
    summarized_token_count BIGINT NOT NULL DEFAULT 0,
    current_agent          TEXT NOT NULL DEFAULT 'flight_agent',
    last_handoff           JSONB,
    version                BIGINT NOT NULL DEFAULT 0,
    created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_flight_sessions_updated_at
    ON flight_sessions (updated_at DESC);
`

// PostgresStore implements Store using PostgreSQL with pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store on an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Init creates the session table if it does not exist.
func (s *PostgresStore) Init(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

const pgColumns = `id, title, phase, initial_messages, research_brief, search_result,
	chat_messages, status, token_count, is_summarized, summarized_at,
	original_token_count, summarized_token_count, current_agent, last_handoff,
	version, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, id, title string) (*SessionRecord, error) {
	rec := NewRecord(id, title, time.Now().UTC())

	query := `
		INSERT INTO flight_sessions (id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
	`
	if _, err := s.pool.Exec(ctx, query, rec.ID, rec.Title, rec.CreatedAt); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*SessionRecord, error) {
	query := `SELECT ` + pgColumns + ` FROM flight_sessions WHERE id = $1`

	var (
		rec          SessionRecord
		initialJSON  []byte
		chatJSON     []byte
		handoffJSON  []byte
		summarizedAt *time.Time
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
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
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if err := json.Unmarshal(initialJSON, &rec.InitialMessages); err != nil {
		return nil, fmt.Errorf("unmarshal initial messages: %w", err)
	}
	if err := json.Unmarshal(chatJSON, &rec.ChatMessages); err != nil {
		return nil, fmt.Errorf("unmarshal chat messages: %w", err)
	}
	if len(handoffJSON) > 0 {
		rec.LastHandoff = &HandoffRecord{}
		if err := json.Unmarshal(handoffJSON, rec.LastHandoff); err != nil {
			return nil, fmt.Errorf("unmarshal last handoff: %w", err)
		}
	}
	rec.SummarizedAt = summarizedAt
	rec.CurrentAgent = rec.CurrentAgent.OrDefault()
	return &rec, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, rec *SessionRecord) error {
	initialJSON, err := json.Marshal(recOrEmptyMessages(rec.InitialMessages))
	if err != nil {
		return fmt.Errorf("marshal initial messages: %w", err)
	}
	chatJSON, err := json.Marshal(recOrEmptyChat(rec.ChatMessages))
	if err != nil {
		return fmt.Errorf("marshal chat messages: %w", err)
	}
	var handoffJSON []byte
	if rec.LastHandoff != nil {
		if handoffJSON, err = json.Marshal(rec.LastHandoff); err != nil {
			return fmt.Errorf("marshal last handoff: %w", err)
		}
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO flight_sessions (` + pgColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			phase = EXCLUDED.phase,
			initial_messages = EXCLUDED.initial_messages,
			research_brief = EXCLUDED.research_brief,
			search_result = EXCLUDED.search_result,
			chat_messages = EXCLUDED.chat_messages,
			status = EXCLUDED.status,
			token_count = EXCLUDED.token_count,
			is_summarized = EXCLUDED.is_summarized,
			summarized_at = EXCLUDED.summarized_at,
			original_token_count = EXCLUDED.original_token_count,
			summarized_token_count = EXCLUDED.summarized_token_count,
			current_agent = EXCLUDED.current_agent,
			last_handoff = EXCLUDED.last_handoff,
			version = EXCLUDED.version,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err = s.pool.Exec(ctx, query,
		rec.ID,
		rec.Title,
		string(rec.Phase),
		initialJSON,
		rec.ResearchBrief,
		rec.SearchResult,
		chatJSON,
		string(rec.Status),
		rec.TokenCount,
		rec.IsSummarized,
		rec.SummarizedAt,
		rec.OriginalTokenCount,
		rec.SummarizedTokenCount,
		string(rec.CurrentAgent.OrDefault()),
		handoffJSON,
		rec.Version,
		rec.CreatedAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	rec.UpdatedAt = now
	return nil
}

func (s *PostgresStore) ListSummaries(ctx context.Context) ([]*SessionSummary, error) {
	query := `
		SELECT id, title, phase, status, token_count, is_summarized, created_at, updated_at
		FROM flight_sessions
		ORDER BY updated_at DESC
	`
	return s.querySummaries(ctx, query)
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status Status) ([]*SessionSummary, error) {
	query := `
		SELECT id, title, phase, status, token_count, is_summarized, created_at, updated_at
		FROM flight_sessions
		WHERE status = $1
		ORDER BY updated_at DESC
	`
	return s.querySummaries(ctx, query, string(status))
}

func (s *PostgresStore) querySummaries(ctx context.Context, query string, args ...any) ([]*SessionSummary, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*SessionSummary
	for rows.Next() {
		var sum SessionSummary
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.Phase, &sum.Status,
			&sum.TokenCount, &sum.IsSummarized, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		out = append(out, &sum)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Rename(ctx context.Context, id, newTitle string) error {
	query := `
		UPDATE flight_sessions
		SET title = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2
	`
	tag, err := s.pool.Exec(ctx, query, newTitle, id)
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM flight_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM flight_sessions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM flight_sessions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}
