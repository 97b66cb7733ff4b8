package compaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/flightscout/flightscout/storage"
)

type stubSummarizer struct {
	summary string
	err     error
	calls   int
}

func (s *stubSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.summary, nil
}

type recordingBuffer struct {
	cleared  int
	messages []string
}

func (b *recordingBuffer) Clear() {
	b.cleared++
	b.messages = nil
}

func (b *recordingBuffer) AppendSystemMessage(text string) {
	b.messages = append(b.messages, text)
}

func chatSessionRecord(t *testing.T, store storage.Store, chatMessages int, tokenCount int) *storage.SessionRecord {
	t.Helper()

	rec, err := store.Create(context.Background(), "session-1", "NYC trip")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	rec.Phase = storage.PhaseChat
	rec.InitialMessages = []storage.Message{
		{Role: storage.RoleUser, Content: "Find me a flight from SFO to JFK on September 15."},
		{Role: storage.RoleAssistant, Content: "Follow-up questions:\n1. How many passengers?"},
		{Role: storage.RoleUser, Content: "Just me, economy."},
	}
	rec.ResearchBrief = "I want a flight from SFO to JFK on September 15 for one adult in economy."
	rec.SearchResult = "Found 3 options. Cheapest: United at $240."
	for i := 0; i < chatMessages; i++ {
		role := storage.RoleUser
		if i%2 == 1 {
			role = storage.RoleAssistant
		}
		rec.ChatMessages = append(rec.ChatMessages, storage.ChatMessage{
			Role:    role,
			Content: fmt.Sprintf("chat message %d", i),
		})
	}
	rec.TokenCount = tokenCount
	if err := store.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	return rec
}

func TestCompactIfNeededBelowThreshold(t *testing.T) {
	store := storage.NewMemoryStore()
	sum := &stubSummarizer{summary: "condensed"}
	coord := NewCoordinator(store, sum, nil, nil)

	rec := chatSessionRecord(t, store, 10, 150_000)

	result, err := coord.CompactIfNeeded(context.Background(), rec, nil)
	if err != nil {
		t.Fatalf("CompactIfNeeded: %v", err)
	}
	if result != nil {
		t.Fatalf("expected no compaction below threshold, got %+v", result)
	}
	if sum.calls != 0 {
		t.Errorf("summarizer called %d times, want 0", sum.calls)
	}
	if rec.IsSummarized {
		t.Error("record marked summarized without compaction")
	}
}

func TestCompactRewritesRecord(t *testing.T) {
	store := storage.NewMemoryStore()
	sum := &stubSummarizer{summary: "The user booked nothing yet; searching SFO to JFK economy."}
	coord := NewCoordinator(store, sum, nil, nil)

	rec := chatSessionRecord(t, store, 12, 210_000)
	buf := &recordingBuffer{}

	result, err := coord.CompactIfNeeded(context.Background(), rec, buf)
	if err != nil {
		t.Fatalf("CompactIfNeeded: %v", err)
	}
	if result == nil {
		t.Fatal("expected a compaction event")
	}
	if result.Degraded {
		t.Error("unexpected degraded result")
	}
	if result.OriginalTokens != 210_000 {
		t.Errorf("OriginalTokens = %d, want 210000", result.OriginalTokens)
	}

	if len(rec.InitialMessages) != 1 {
		t.Fatalf("InitialMessages length = %d, want 1", len(rec.InitialMessages))
	}
	if rec.InitialMessages[0].Role != storage.RoleSystem {
		t.Errorf("summary entry role = %q, want system", rec.InitialMessages[0].Role)
	}
	if !strings.HasPrefix(rec.InitialMessages[0].Content, SummaryPrefix) {
		t.Errorf("summary entry missing prefix: %q", rec.InitialMessages[0].Content)
	}

	// Summary entry plus the trailing window.
	want := DefaultRecentMessagesToKeep + 1
	if len(rec.ChatMessages) != want {
		t.Fatalf("ChatMessages length = %d, want %d", len(rec.ChatMessages), want)
	}
	if rec.ChatMessages[0].Role != storage.RoleSystem {
		t.Errorf("first chat entry role = %q, want system", rec.ChatMessages[0].Role)
	}
	for i := 1; i < want; i++ {
		expected := fmt.Sprintf("chat message %d", 12-DefaultRecentMessagesToKeep+i-1)
		if rec.ChatMessages[i].Content != expected {
			t.Errorf("window[%d] = %q, want %q", i, rec.ChatMessages[i].Content, expected)
		}
	}

	if !rec.IsSummarized {
		t.Error("IsSummarized not set")
	}
	if rec.SummarizedAt == nil {
		t.Error("SummarizedAt not set")
	}
	if rec.OriginalTokenCount != 210_000 {
		t.Errorf("OriginalTokenCount = %d, want 210000", rec.OriginalTokenCount)
	}
	if rec.TokenCount != rec.SummarizedTokenCount {
		t.Errorf("TokenCount %d not rebaselined to SummarizedTokenCount %d",
			rec.TokenCount, rec.SummarizedTokenCount)
	}
	if rec.TokenCount >= 210_000 {
		t.Errorf("TokenCount %d did not shrink", rec.TokenCount)
	}

	// The rewrite landed in the store.
	stored, err := store.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !stored.IsSummarized || len(stored.ChatMessages) != want {
		t.Error("compacted record not persisted")
	}

	// Buffer reseeded with the summary only.
	if buf.cleared != 1 {
		t.Errorf("buffer cleared %d times, want 1", buf.cleared)
	}
	if len(buf.messages) != 1 || !strings.HasPrefix(buf.messages[0], SummaryPrefix) {
		t.Errorf("buffer reseed = %v, want single summary", buf.messages)
	}
}

func TestCompactShortChatUntouched(t *testing.T) {
	store := storage.NewMemoryStore()
	sum := &stubSummarizer{summary: "condensed"}
	coord := NewCoordinator(store, sum, nil, nil)

	// Chat shorter than the keep window stays as-is.
	rec := chatSessionRecord(t, store, 3, 205_000)

	if _, err := coord.CompactIfNeeded(context.Background(), rec, nil); err != nil {
		t.Fatalf("CompactIfNeeded: %v", err)
	}
	if len(rec.ChatMessages) != 3 {
		t.Fatalf("ChatMessages length = %d, want 3 (untouched)", len(rec.ChatMessages))
	}
	for i, m := range rec.ChatMessages {
		if m.Role == storage.RoleSystem {
			t.Errorf("chat[%d] unexpectedly replaced with system entry", i)
		}
	}
	if len(rec.InitialMessages) != 1 {
		t.Errorf("InitialMessages length = %d, want 1", len(rec.InitialMessages))
	}
}

func TestCompactIdempotentPerCycle(t *testing.T) {
	store := storage.NewMemoryStore()
	sum := &stubSummarizer{summary: "condensed"}
	coord := NewCoordinator(store, sum, nil, nil)

	rec := chatSessionRecord(t, store, 10, 220_000)

	first, err := coord.CompactIfNeeded(context.Background(), rec, nil)
	if err != nil {
		t.Fatalf("first CompactIfNeeded: %v", err)
	}
	if first == nil {
		t.Fatal("expected a compaction event")
	}

	// Rebaselined below the threshold: the trigger itself prevents a rerun.
	if _, err := coord.CompactIfNeeded(context.Background(), rec, nil); err != nil {
		t.Fatalf("CompactIfNeeded after rebaseline: %v", err)
	}

	// Even when the baseline sits over the threshold, no new turns means
	// no new compaction event.
	rec.SummarizedTokenCount = 220_000
	rec.TokenCount = 220_000
	before := rec.Clone()

	second, err := coord.CompactIfNeeded(context.Background(), rec, nil)
	if err != nil {
		t.Fatalf("second CompactIfNeeded: %v", err)
	}
	if second != nil {
		t.Fatalf("expected idempotent no-op, got %+v", second)
	}
	if sum.calls != 1 {
		t.Errorf("summarizer called %d times, want 1", sum.calls)
	}
	if rec.Version != before.Version {
		t.Errorf("version moved on no-op: %d != %d", rec.Version, before.Version)
	}
}

// failingStore rejects the compaction rewrite while serving reads normally.
type failingStore struct {
	*storage.MemoryStore
	upsertErr error
}

func (s *failingStore) Upsert(ctx context.Context, rec *storage.SessionRecord) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	return s.MemoryStore.Upsert(ctx, rec)
}

func TestCompactStoreFailureLeavesRecordUntouched(t *testing.T) {
	mem := storage.NewMemoryStore()
	store := &failingStore{MemoryStore: mem}
	sum := &stubSummarizer{summary: "condensed"}
	coord := NewCoordinator(store, sum, nil, nil)

	rec := chatSessionRecord(t, mem, 12, 210_000)
	buf := &recordingBuffer{}
	store.upsertErr = errors.New("disk full")

	result, err := coord.CompactIfNeeded(context.Background(), rec, buf)
	if !errors.Is(err, ErrStorageError) {
		t.Fatalf("error = %v, want ErrStorageError", err)
	}
	if result != nil {
		t.Fatalf("failed compaction returned a result: %+v", result)
	}

	// The caller's record must not claim a rewrite the store never took.
	if rec.IsSummarized {
		t.Error("record marked summarized after failed write")
	}
	if rec.TokenCount != 210_000 {
		t.Errorf("TokenCount = %d, want 210000", rec.TokenCount)
	}
	if len(rec.ChatMessages) != 12 {
		t.Errorf("ChatMessages length = %d, want 12", len(rec.ChatMessages))
	}
	if len(rec.InitialMessages) != 3 {
		t.Errorf("InitialMessages length = %d, want 3", len(rec.InitialMessages))
	}
	if buf.cleared != 0 {
		t.Errorf("buffer cleared %d times on failed write, want 0", buf.cleared)
	}

	stored, getErr := mem.Get(context.Background(), rec.ID)
	if getErr != nil {
		t.Fatalf("Get: %v", getErr)
	}
	if stored.IsSummarized || stored.TokenCount != 210_000 {
		t.Errorf("stored record changed by failed write: summarized=%v tokens=%d",
			stored.IsSummarized, stored.TokenCount)
	}

	// The same cycle retries cleanly once the store recovers.
	store.upsertErr = nil
	retried, err := coord.CompactIfNeeded(context.Background(), rec, buf)
	if err != nil {
		t.Fatalf("retry CompactIfNeeded: %v", err)
	}
	if retried == nil || !rec.IsSummarized {
		t.Fatal("retry after store recovery did not compact")
	}
}

func TestCompactDegradesOnSummarizerFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	sum := &stubSummarizer{err: errors.New("model unavailable")}
	coord := NewCoordinator(store, sum, nil, nil)

	rec := chatSessionRecord(t, store, 10, 230_000)

	result, err := coord.CompactIfNeeded(context.Background(), rec, nil)
	if err != nil {
		t.Fatalf("CompactIfNeeded: %v", err)
	}
	if result == nil || !result.Degraded {
		t.Fatalf("expected degraded compaction, got %+v", result)
	}
	if !strings.HasPrefix(rec.InitialMessages[0].Content, DegradedSummaryPrefix) {
		t.Errorf("degraded summary missing marker: %q", rec.InitialMessages[0].Content)
	}
	if !rec.IsSummarized {
		t.Error("degraded compaction must still mark the record summarized")
	}

	maxLen := len(DegradedSummaryPrefix) + DefaultFallbackSummaryChars
	if got := len(rec.InitialMessages[0].Content); got > maxLen {
		t.Errorf("degraded summary length = %d, want <= %d", got, maxLen)
	}
}

func TestAssembleMemoryExcludesWindowAndSystem(t *testing.T) {
	rec := &storage.SessionRecord{
		InitialMessages: []storage.Message{
			{Role: storage.RoleUser, Content: "initial query"},
		},
		ResearchBrief: "the brief",
		SearchResult:  "the results",
		ChatMessages: []storage.ChatMessage{
			{Role: storage.RoleSystem, Content: "old summary"},
			{Role: storage.RoleUser, Content: "old question"},
			{Role: storage.RoleAssistant, Content: "old answer"},
			{Role: storage.RoleUser, Content: "recent question"},
			{Role: storage.RoleAssistant, Content: "recent answer"},
		},
	}

	memory, folded := AssembleMemory(rec, 2)

	for _, want := range []string{"initial query", "the brief", "the results", "old question", "old answer"} {
		if !strings.Contains(memory, want) {
			t.Errorf("memory missing %q", want)
		}
	}
	for _, excluded := range []string{"old summary", "recent question", "recent answer"} {
		if strings.Contains(memory, excluded) {
			t.Errorf("memory should not contain %q", excluded)
		}
	}
	// initial (1) + non-system pre-window chat (2).
	if folded != 3 {
		t.Errorf("folded = %d, want 3", folded)
	}
}
