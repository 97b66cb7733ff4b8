package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a session id does not exist in the store.
var ErrNotFound = errors.New("session not found")

// Phase is the session's current stage in the search flow.
// Phases only move forward along the transition graph; the orchestrator
// enforces legality, the store just persists the value.
type Phase string

const (
	PhaseInput          Phase = "input"
	PhaseClarifying     Phase = "clarifying"
	PhaseBriefGenerated Phase = "brief_generated"
	PhaseSearching      Phase = "searching"
	PhaseResults        Phase = "results"
	PhaseChat           Phase = "chat"
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// Status is the session lifecycle flag, independent of Phase.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// AgentRole identifies which specialized agent handles the next chat turn.
type AgentRole string

const (
	// AgentFlight is the primary role: flight search.
	AgentFlight AgentRole = "flight_agent"

	// AgentItinerary is the secondary role: itinerary planning.
	AgentItinerary AgentRole = "itinerary_agent"
)

// OrDefault returns the role, defaulting to the primary flight agent when unset.
func (r AgentRole) OrDefault() AgentRole {
	if r == "" {
		return AgentFlight
	}
	return r
}

// String returns the string representation of the agent role.
func (r AgentRole) String() string {
	return string(r)
}

// Message roles shared by the scoping and chat conversations.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one entry of the original scoping conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HandoffRecord captures the most recent detected agent transfer.
// It is display/audit data only; routing always reads CurrentAgent.
type HandoffRecord struct {
	FromAgent AgentRole `json:"from_agent"`
	ToAgent   AgentRole `json:"to_agent"`
	Indicator string    `json:"indicator"`
}

// ChatMessage is one entry of the follow-up conversation.
type ChatMessage struct {
	Role    string         `json:"role"`
	Content string         `json:"content"`
	Handoff *HandoffRecord `json:"handoff_info,omitempty"`
}

// SessionRecord is one durable flight-search session. The store is the single
// source of truth; all writes are whole-record replacements keyed by ID.
type SessionRecord struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Phase Phase  `json:"phase"`

	// InitialMessages is the original scoping conversation (clarify/brief
	// flow). Replaced by a single synthetic system entry on compaction.
	InitialMessages []Message `json:"initial_messages"`

	// ResearchBrief is written once per session when scoping completes.
	ResearchBrief string `json:"research_brief"`

	// SearchResult is written once per search; a retried search overwrites it.
	SearchResult string `json:"search_result"`

	// ChatMessages is the follow-up conversation, append-only between
	// compactions. The compacted form is a system summary entry followed by
	// the preserved trailing window in original order.
	ChatMessages []ChatMessage `json:"chat_messages"`

	Status Status `json:"status"`

	// TokenCount is the cumulative usage reported by the agent runtime.
	// It is the sole input to the token budget monitor; the core never
	// computes tokens itself.
	TokenCount int `json:"token_count"`

	// Compaction provenance. Set together on every compaction event.
	IsSummarized         bool       `json:"is_summarized"`
	SummarizedAt         *time.Time `json:"summarized_at,omitempty"`
	OriginalTokenCount   int        `json:"original_token_count"`
	SummarizedTokenCount int        `json:"summarized_token_count"`

	CurrentAgent AgentRole      `json:"current_agent"`
	LastHandoff  *HandoffRecord `json:"last_handoff,omitempty"`

	// Version counts writes to this record. The orchestrator uses it to
	// detect conflicting writes that landed while an external agent call
	// was in flight.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the record.
func (r *SessionRecord) Clone() *SessionRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.InitialMessages != nil {
		out.InitialMessages = make([]Message, len(r.InitialMessages))
		copy(out.InitialMessages, r.InitialMessages)
	}
	if r.ChatMessages != nil {
		out.ChatMessages = make([]ChatMessage, len(r.ChatMessages))
		copy(out.ChatMessages, r.ChatMessages)
	}
	if r.SummarizedAt != nil {
		t := *r.SummarizedAt
		out.SummarizedAt = &t
	}
	if r.LastHandoff != nil {
		h := *r.LastHandoff
		out.LastHandoff = &h
	}
	return &out
}

// SessionSummary is the projection returned by listing operations.
type SessionSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Phase        Phase     `json:"phase"`
	Status       Status    `json:"status"`
	TokenCount   int       `json:"token_count"`
	IsSummarized bool      `json:"is_summarized"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store defines durable keyed storage of session records.
//
// All writes are whole-record replacements (last-writer-wins); callers are
// responsible for read-modify-write ordering. Get on an unknown id returns
// ErrNotFound, never a default record. Rename and Delete never resurrect a
// deleted id.
type Store interface {
	// Create inserts a new record with default field values. An empty title
	// gets the default "Flight Search <id prefix>" label.
	Create(ctx context.Context, id, title string) (*SessionRecord, error)

	// Get returns the record for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*SessionRecord, error)

	// Upsert replaces the full record keyed by its ID and refreshes UpdatedAt.
	Upsert(ctx context.Context, rec *SessionRecord) error

	// ListSummaries returns all sessions ordered by recency (UpdatedAt desc).
	ListSummaries(ctx context.Context) ([]*SessionSummary, error)

	// ListByStatus returns sessions with the given status, most recent first.
	ListByStatus(ctx context.Context, status Status) ([]*SessionSummary, error)

	// Rename updates only the title (and UpdatedAt, Version) of an existing
	// record. Renaming an unknown id returns ErrNotFound.
	Rename(ctx context.Context, id, newTitle string) error

	// Delete removes the record. Deleting an unknown id returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// DeleteOlderThan removes sessions created before cutoff and returns the
	// number removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// Count returns the total number of sessions.
	Count(ctx context.Context) (int, error)
}

// DefaultTitle builds the default human label for a new session.
func DefaultTitle(id string) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return "Flight Search " + short
}

// NewRecord builds a fresh record with default field values. Store
// implementations share it so defaults stay identical across backends.
func NewRecord(id, title string, now time.Time) *SessionRecord {
	if title == "" {
		title = DefaultTitle(id)
	}
	return &SessionRecord{
		ID:           id,
		Title:        title,
		Phase:        PhaseInput,
		Status:       StatusActive,
		CurrentAgent: AgentFlight,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
