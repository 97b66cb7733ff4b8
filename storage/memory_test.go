package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreCreateDefaults(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec, err := store.Create(ctx, "0b5fa8f1-3a50-4d0f-9a31-000000000001", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if rec.Title != "Flight Search 0b5fa8f1" {
		t.Errorf("default title = %q", rec.Title)
	}
	if rec.Phase != PhaseInput {
		t.Errorf("phase = %q, want input", rec.Phase)
	}
	if rec.Status != StatusActive {
		t.Errorf("status = %q, want active", rec.Status)
	}
	if rec.CurrentAgent != AgentFlight {
		t.Errorf("current agent = %q, want flight_agent", rec.CurrentAgent)
	}
	if rec.TokenCount != 0 || rec.IsSummarized {
		t.Error("fresh record carries usage or summarization state")
	}

	if _, err := store.Create(ctx, rec.ID, "dup"); err == nil {
		t.Error("duplicate Create succeeded")
	}
}

func TestMemoryStoreGetNotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreUpsertRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec, err := store.Create(ctx, "s1", "Trip")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	now := time.Now().UTC()
	rec.Phase = PhaseChat
	rec.InitialMessages = []Message{{Role: RoleUser, Content: "SFO to JFK"}}
	rec.ResearchBrief = "brief"
	rec.SearchResult = "results"
	rec.ChatMessages = []ChatMessage{
		{Role: RoleUser, Content: "cheaper?"},
		{Role: RoleAssistant, Content: "transferring to the itinerary planner", Handoff: &HandoffRecord{
			FromAgent: AgentFlight, ToAgent: AgentItinerary, Indicator: "transferring to",
		}},
	}
	rec.TokenCount = 1234
	rec.IsSummarized = true
	rec.SummarizedAt = &now
	rec.OriginalTokenCount = 5000
	rec.SummarizedTokenCount = 1234
	rec.CurrentAgent = AgentItinerary
	rec.LastHandoff = rec.ChatMessages[1].Handoff
	rec.Version = 7

	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Phase != PhaseChat || got.ResearchBrief != "brief" || got.SearchResult != "results" {
		t.Errorf("round-trip lost fields: %+v", got)
	}
	if len(got.ChatMessages) != 2 || got.ChatMessages[1].Handoff == nil {
		t.Fatalf("chat messages lost: %+v", got.ChatMessages)
	}
	if got.ChatMessages[1].Handoff.ToAgent != AgentItinerary {
		t.Errorf("handoff target = %q", got.ChatMessages[1].Handoff.ToAgent)
	}
	if got.CurrentAgent != AgentItinerary || got.LastHandoff == nil {
		t.Errorf("routing state lost: agent=%q handoff=%+v", got.CurrentAgent, got.LastHandoff)
	}
	if !got.IsSummarized || got.SummarizedAt == nil || got.SummarizedTokenCount != 1234 {
		t.Errorf("summarization state lost: %+v", got)
	}
	if got.Version != 7 {
		t.Errorf("version = %d, want 7", got.Version)
	}

	// Stored copy is isolated from caller mutations.
	rec.ChatMessages[0].Content = "mutated"
	again, _ := store.Get(ctx, "s1")
	if again.ChatMessages[0].Content != "cheaper?" {
		t.Error("store shares memory with caller")
	}
}

func TestMemoryStoreListOrdering(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	a, _ := store.Create(ctx, "a", "first")
	b, _ := store.Create(ctx, "b", "second")

	// Touch a so it becomes the most recently updated.
	a.TokenCount = 10
	if err := store.Upsert(ctx, a); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	summaries, err := store.ListSummaries(ctx)
	if err != nil {
		t.Fatalf("ListSummaries: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("len = %d, want 2", len(summaries))
	}
	if summaries[0].ID != "a" || summaries[1].ID != "b" {
		t.Errorf("order = [%s, %s], want [a, b]", summaries[0].ID, summaries[1].ID)
	}

	b.Status = StatusCompleted
	if err := store.Upsert(ctx, b); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	active, err := store.ListByStatus(ctx, StatusActive)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(active) != 1 || active[0].ID != "a" {
		t.Errorf("active = %+v, want only a", active)
	}
}

func TestMemoryStoreRename(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec, _ := store.Create(ctx, "s1", "old")
	if err := store.Rename(ctx, "s1", "new"); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	got, _ := store.Get(ctx, "s1")
	if got.Title != "new" {
		t.Errorf("title = %q, want new", got.Title)
	}
	if got.Version != rec.Version+1 {
		t.Errorf("version = %d, want %d", got.Version, rec.Version+1)
	}

	if err := store.Rename(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Rename(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Create(ctx, "s1", "t")
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
	// A rename never resurrects a deleted id.
	if err := store.Rename(ctx, "s1", "back"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Rename after delete = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreDeleteOlderThan(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	old, _ := store.Create(ctx, "old", "t")
	old.CreatedAt = time.Now().UTC().AddDate(0, 0, -40)
	store.Upsert(ctx, old)
	store.Create(ctx, "fresh", "t")

	count, err := store.DeleteOlderThan(ctx, time.Now().UTC().AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if _, err := store.Get(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Error("old session survived cleanup")
	}
	if _, err := store.Get(ctx, "fresh"); err != nil {
		t.Errorf("fresh session deleted: %v", err)
	}

	total, _ := store.Count(ctx)
	if total != 1 {
		t.Errorf("Count = %d, want 1", total)
	}
}
