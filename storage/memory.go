package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store implementation. It backs unit tests and
// single-process embedding; durability across restarts requires the SQLite or
// Postgres store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*SessionRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*SessionRecord)}
}

func (s *MemoryStore) Create(ctx context.Context, id, title string) (*SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; ok {
		return nil, fmt.Errorf("session %s already exists", id)
	}

	rec := NewRecord(id, title, time.Now().UTC())
	s.records[id] = rec.Clone()
	return rec, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Upsert(ctx context.Context, rec *SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := rec.Clone()
	stored.UpdatedAt = time.Now().UTC()
	s.records[rec.ID] = stored
	return nil
}

func (s *MemoryStore) ListSummaries(ctx context.Context) ([]*SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summaries(func(*SessionRecord) bool { return true }), nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status Status) ([]*SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summaries(func(r *SessionRecord) bool { return r.Status == status }), nil
}

// summaries must be called with the lock held.
func (s *MemoryStore) summaries(keep func(*SessionRecord) bool) []*SessionSummary {
	out := make([]*SessionSummary, 0, len(s.records))
	for _, rec := range s.records {
		if !keep(rec) {
			continue
		}
		out = append(out, &SessionSummary{
			ID:           rec.ID,
			Title:        rec.Title,
			Phase:        rec.Phase,
			Status:       rec.Status,
			TokenCount:   rec.TokenCount,
			IsSummarized: rec.IsSummarized,
			CreatedAt:    rec.CreatedAt,
			UpdatedAt:    rec.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

func (s *MemoryStore) Rename(ctx context.Context, id, newTitle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.Title = newTitle
	rec.Version++
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, rec := range s.records {
		if rec.CreatedAt.Before(cutoff) {
			delete(s.records, id)
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}
