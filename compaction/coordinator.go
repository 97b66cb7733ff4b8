package compaction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/flightscout/flightscout/storage"
)

// Logger is the logging interface consumed by the coordinator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a no-op implementation of Logger.
type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// ConversationBuffer is the capability exposed by the collaborator holding
// in-flight message history for the agent runtime. After compaction the
// coordinator clears it and seeds it with the summary so the next turn does
// not resend already-compacted history.
type ConversationBuffer interface {
	Clear()
	AppendSystemMessage(text string)
}

// Result describes one completed compaction event.
type Result struct {
	SessionID string

	// OriginalTokens is the reported token count at the trigger.
	OriginalTokens int

	// SummarizedTokens is the estimated size of the compacted memory; it
	// becomes the session's new token baseline.
	SummarizedTokens int

	// MessagesCompacted is the number of conversation entries folded into
	// the summary.
	MessagesCompacted int

	// Degraded reports that the summarization call failed and the summary
	// is a deterministic truncation of the raw memory.
	Degraded bool

	Duration time.Duration
}

// Coordinator applies the compaction policy to session records: it assembles
// the memory to compact, obtains a summary (or its truncation fallback),
// rewrites the record atomically, and persists it in one upsert.
type Coordinator struct {
	store      storage.Store
	summarizer Summarizer
	config     *Config
	estimator  *Estimator
	logger     Logger
}

// NewCoordinator creates a Coordinator. A nil config selects the defaults;
// a nil logger disables logging.
func NewCoordinator(store storage.Store, summarizer Summarizer, config *Config, logger Logger) *Coordinator {
	if config == nil {
		config = DefaultConfig()
	} else {
		config.ApplyDefaults()
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Coordinator{
		store:      store,
		summarizer: summarizer,
		config:     config,
		estimator:  NewEstimator(),
		logger:     logger,
	}
}

// Config returns the coordinator's configuration.
func (c *Coordinator) Config() *Config {
	return c.config
}

// CompactIfNeeded runs one compaction cycle when the record's reported token
// count has reached the threshold. It is idempotent per accumulation cycle:
// a second call before the count grows past the baseline again is a no-op.
// On compaction, rec is mutated in place and persisted; buf, if non-nil, is
// cleared and reseeded with the summary.
func (c *Coordinator) CompactIfNeeded(ctx context.Context, rec *storage.SessionRecord, buf ConversationBuffer) (*Result, error) {
	if !c.config.ShouldCompact(rec.TokenCount) {
		return nil, nil
	}
	if rec.IsSummarized && rec.TokenCount == rec.SummarizedTokenCount {
		// No turns since the last compaction event.
		c.logger.Debug("compaction already applied for this cycle", "session_id", rec.ID)
		return nil, nil
	}
	return c.Compact(ctx, rec, buf)
}

// Compact performs one compaction event unconditionally.
func (c *Coordinator) Compact(ctx context.Context, rec *storage.SessionRecord, buf ConversationBuffer) (*Result, error) {
	start := time.Now()

	c.logger.Info("starting compaction",
		"session_id", rec.ID,
		"token_count", rec.TokenCount,
	)

	memory, folded := AssembleMemory(rec, c.config.RecentMessagesToKeep)

	summary, degraded := c.summarize(ctx, rec.ID, memory)

	originalTokens := rec.TokenCount
	now := time.Now().UTC()

	// Rewrite a clone; the caller's record reflects the compaction only
	// once the store has committed it.
	updated := rec.Clone()
	updated.InitialMessages = []storage.Message{{Role: storage.RoleSystem, Content: summary}}
	if len(updated.ChatMessages) > c.config.RecentMessagesToKeep {
		window := updated.ChatMessages[len(updated.ChatMessages)-c.config.RecentMessagesToKeep:]
		compacted := make([]storage.ChatMessage, 0, len(window)+1)
		compacted = append(compacted, storage.ChatMessage{Role: storage.RoleSystem, Content: summary})
		compacted = append(compacted, window...)
		updated.ChatMessages = compacted
	}

	updated.IsSummarized = true
	updated.SummarizedAt = &now
	updated.OriginalTokenCount = originalTokens
	updated.SummarizedTokenCount = c.estimator.Estimate(MemoryText(updated))
	updated.TokenCount = updated.SummarizedTokenCount
	updated.Version++

	if err := c.store.Upsert(ctx, updated); err != nil {
		return nil, NewCompactionError("Upsert", rec.ID, fmt.Errorf("%w: %v", ErrStorageError, err))
	}
	*rec = *updated

	if buf != nil {
		buf.Clear()
		buf.AppendSystemMessage(summary)
	}

	result := &Result{
		SessionID:         rec.ID,
		OriginalTokens:    originalTokens,
		SummarizedTokens:  rec.SummarizedTokenCount,
		MessagesCompacted: folded,
		Degraded:          degraded,
		Duration:          time.Since(start),
	}

	c.logger.Info("compaction complete",
		"session_id", rec.ID,
		"original_tokens", result.OriginalTokens,
		"summarized_tokens", result.SummarizedTokens,
		"messages_compacted", result.MessagesCompacted,
		"degraded", result.Degraded,
		"duration_ms", result.Duration.Milliseconds(),
	)

	return result, nil
}

// summarize runs the external summarization call, falling back to a
// deterministic truncation of the raw memory on failure. Compaction never
// leaves the session in an unrecoverable state because of a summarizer error.
func (c *Coordinator) summarize(ctx context.Context, sessionID, memory string) (summary string, degraded bool) {
	text, err := c.summarizer.Summarize(ctx, memory)
	if err == nil && strings.TrimSpace(text) != "" {
		return SummaryPrefix + text, false
	}
	if err != nil {
		c.logger.Warn("summarization failed, degrading to truncation",
			"session_id", sessionID,
			"error", err,
		)
	}
	truncated := memory
	if len(truncated) > c.config.FallbackSummaryChars {
		truncated = truncated[:c.config.FallbackSummaryChars]
	}
	return DegradedSummaryPrefix + truncated, true
}

// AssembleMemory builds the textual memory to compact, in order: the original
// scoping conversation, the research brief, the prior search result, and all
// chat messages except the trailing keep window. System-role chat entries are
// excluded from the summarized portion. It also returns the number of
// conversation entries folded in.
func AssembleMemory(rec *storage.SessionRecord, keep int) (string, int) {
	var b strings.Builder
	folded := 0

	for _, m := range rec.InitialMessages {
		writeTurn(&b, m.Role, m.Content)
		folded++
	}
	if rec.ResearchBrief != "" {
		writeSection(&b, "Flight search brief", rec.ResearchBrief)
	}
	if rec.SearchResult != "" {
		writeSection(&b, "Flight search results", rec.SearchResult)
	}

	cut := len(rec.ChatMessages) - keep
	if cut < 0 {
		cut = 0
	}
	for _, m := range rec.ChatMessages[:cut] {
		if m.Role == storage.RoleSystem {
			continue
		}
		writeTurn(&b, m.Role, m.Content)
		folded++
	}

	return b.String(), folded
}

// MemoryText renders the full textual memory of a record. It backs the
// display-side token estimate and the post-compaction baseline.
func MemoryText(rec *storage.SessionRecord) string {
	var b strings.Builder
	for _, m := range rec.InitialMessages {
		writeTurn(&b, m.Role, m.Content)
	}
	if rec.ResearchBrief != "" {
		writeSection(&b, "Flight search brief", rec.ResearchBrief)
	}
	if rec.SearchResult != "" {
		writeSection(&b, "Flight search results", rec.SearchResult)
	}
	for _, m := range rec.ChatMessages {
		writeTurn(&b, m.Role, m.Content)
	}
	return b.String()
}

func writeTurn(b *strings.Builder, role, content string) {
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	switch role {
	case storage.RoleUser:
		b.WriteString("User: ")
	case storage.RoleAssistant:
		b.WriteString("Assistant: ")
	default:
		b.WriteString("System: ")
	}
	b.WriteString(content)
}

func writeSection(b *strings.Builder, label, content string) {
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString(label)
	b.WriteString(":\n")
	b.WriteString(content)
}
