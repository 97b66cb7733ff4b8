package flightscout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/flightscout/flightscout/agent"
	"github.com/flightscout/flightscout/compaction"
	"github.com/flightscout/flightscout/storage"
)

// Orchestrator drives flight-search sessions end to end: scoping, search,
// follow-up chat with agent routing, and context compaction.
//
// Concurrency discipline: operations on the same session are serialized by a
// per-session lock. External agent calls run outside the lock; after the call
// returns, the record is re-read and its version compared against the version
// observed before the call. A mismatch aborts the operation with
// ErrConcurrentModification and commits nothing.
type Orchestrator struct {
	store     storage.Store
	runtime   agent.Runtime
	scoper    agent.Scoper
	compactor *compaction.Coordinator
	config    *Config
	logger    compaction.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	convs map[string]*agent.Conversation
}

// NewOrchestrator creates an Orchestrator. A nil config selects the defaults;
// a nil logger disables logging. The compactor may be nil, which disables
// compaction entirely.
func NewOrchestrator(store storage.Store, runtime agent.Runtime, scoper agent.Scoper, compactor *compaction.Coordinator, config *Config, logger compaction.Logger) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	} else {
		config.ApplyDefaults()
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Orchestrator{
		store:     store,
		runtime:   runtime,
		scoper:    scoper,
		compactor: compactor,
		config:    config,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
		convs:     make(map[string]*agent.Conversation),
	}
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// StartSession creates a new session in the input phase. An empty title gets
// the default label.
func (o *Orchestrator) StartSession(ctx context.Context, title string) (*storage.SessionRecord, error) {
	id := uuid.NewString()
	rec, err := o.store.Create(ctx, id, title)
	if err != nil {
		return nil, o.storeErr("StartSession", id, err)
	}
	o.logger.Info("session started", "session_id", id, "title", rec.Title)
	return rec, nil
}

// SubmitQuery records the user's initial query and runs the clarify scoping
// agent. The session moves to clarifying when questions come back, or
// directly to brief_generated when scoping is already complete.
func (o *Orchestrator) SubmitQuery(ctx context.Context, id, query string) (*storage.SessionRecord, error) {
	const op = "SubmitQuery"
	lock := o.sessionLock(id)
	lock.Lock()

	rec, err := o.get(ctx, op, id)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	if rec.Phase != storage.PhaseInput {
		lock.Unlock()
		return nil, NewOrchestratorError(op, id, ErrInvalidTransition).
			WithContext("phase", rec.Phase.String())
	}

	messages := append(cloneMessages(rec.InitialMessages), storage.Message{Role: storage.RoleUser, Content: query})
	baseVersion := rec.Version
	lock.Unlock()

	return o.runScoping(ctx, op, id, baseVersion, messages)
}

// AnswerClarification records the user's answers and re-runs the clarify
// agent. After the configured number of rounds the brief is written
// regardless.
func (o *Orchestrator) AnswerClarification(ctx context.Context, id, answers string) (*storage.SessionRecord, error) {
	const op = "AnswerClarification"
	lock := o.sessionLock(id)
	lock.Lock()

	rec, err := o.get(ctx, op, id)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	if rec.Phase != storage.PhaseClarifying {
		lock.Unlock()
		return nil, NewOrchestratorError(op, id, ErrInvalidTransition).
			WithContext("phase", rec.Phase.String())
	}

	messages := append(cloneMessages(rec.InitialMessages), storage.Message{Role: storage.RoleUser, Content: answers})
	baseVersion := rec.Version
	lock.Unlock()

	return o.runScoping(ctx, op, id, baseVersion, messages)
}

// runScoping performs the clarify call (and the brief call when scoping is
// complete) outside the session lock, then commits the outcome in one write.
func (o *Orchestrator) runScoping(ctx context.Context, op, id string, baseVersion int64, messages []storage.Message) (*storage.SessionRecord, error) {
	rounds := clarificationRounds(messages)
	forceBrief := rounds >= o.config.MaxClarificationRounds

	var (
		usage     agent.Usage
		questions []string
		brief     string
	)

	if !forceBrief {
		clar, err := o.scoper.Clarify(ctx, messages)
		if err != nil {
			return nil, NewOrchestratorError(op, id, fmt.Errorf("%w: %v", ErrAgentRuntime, err))
		}
		usage = usage.Add(clar.Usage)
		if clar.NeedClarification {
			questions = clar.Questions
		}
	}

	if len(questions) == 0 {
		text, briefUsage, err := o.scoper.WriteBrief(ctx, messages)
		if err != nil {
			return nil, NewOrchestratorError(op, id, fmt.Errorf("%w: %v", ErrAgentRuntime, err))
		}
		usage = usage.Add(briefUsage)
		brief = text
	}

	lock := o.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	rec, err := o.get(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if rec.Version != baseVersion {
		return nil, NewOrchestratorError(op, id, ErrConcurrentModification)
	}

	if len(questions) > 0 {
		rec.InitialMessages = append(messages, storage.Message{
			Role:    storage.RoleAssistant,
			Content: formatQuestions(questions),
		})
		if err := Transition(rec, storage.PhaseClarifying); err != nil {
			return nil, err
		}
	} else {
		rec.InitialMessages = messages
		rec.ResearchBrief = brief
		// From the input phase, clarifying is transient; both hops commit in
		// this one write.
		if rec.Phase == storage.PhaseInput {
			if err := Transition(rec, storage.PhaseClarifying); err != nil {
				return nil, err
			}
		}
		if err := Transition(rec, storage.PhaseBriefGenerated); err != nil {
			return nil, err
		}
	}
	rec.TokenCount += usage.TotalTokens

	if err := o.persist(ctx, op, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ConfirmSearch runs the flight search over the generated brief. The search
// always runs as the primary flight agent; its outcome moves the session to
// the results phase in a single write.
func (o *Orchestrator) ConfirmSearch(ctx context.Context, id string) (*storage.SessionRecord, error) {
	const op = "ConfirmSearch"
	lock := o.sessionLock(id)
	lock.Lock()

	rec, err := o.get(ctx, op, id)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	if !CanTransition(rec.Phase, storage.PhaseSearching) {
		lock.Unlock()
		return nil, NewOrchestratorError(op, id, ErrInvalidTransition).
			WithContext("phase", rec.Phase.String())
	}
	brief := rec.ResearchBrief
	baseVersion := rec.Version
	conv := o.conversation(id)
	lock.Unlock()

	turn, err := o.runtime.RunTurn(ctx, storage.AgentFlight, brief, conv)
	if err != nil {
		return nil, NewOrchestratorError(op, id, fmt.Errorf("%w: %v", ErrAgentRuntime, err))
	}

	lock.Lock()
	defer lock.Unlock()

	rec, err = o.get(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if rec.Version != baseVersion {
		return nil, NewOrchestratorError(op, id, ErrConcurrentModification)
	}

	// The searching phase is transient; both hops commit in this one write.
	if err := Transition(rec, storage.PhaseSearching); err != nil {
		return nil, err
	}
	if err := Transition(rec, storage.PhaseResults); err != nil {
		return nil, err
	}
	rec.SearchResult = turn.Text
	rec.TokenCount += turn.Usage.TotalTokens

	if err := o.persist(ctx, op, rec); err != nil {
		return nil, err
	}
	conv.Append(storage.RoleUser, brief)
	conv.Append(storage.RoleAssistant, turn.Text)
	return rec, nil
}

// SendChatMessage runs one follow-up chat turn through whichever agent the
// session is currently routed to, applies any detected handoff for subsequent
// turns, and triggers compaction when the token budget is reached.
func (o *Orchestrator) SendChatMessage(ctx context.Context, id, message string) (*storage.SessionRecord, error) {
	const op = "SendChatMessage"
	lock := o.sessionLock(id)
	lock.Lock()

	rec, err := o.get(ctx, op, id)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	if rec.Phase != storage.PhaseResults && rec.Phase != storage.PhaseChat {
		lock.Unlock()
		return nil, NewOrchestratorError(op, id, ErrInvalidTransition).
			WithContext("phase", rec.Phase.String())
	}

	var router Router
	role := router.Route(rec)
	baseVersion := rec.Version
	conv := o.conversation(id)
	o.seedConversation(conv, rec)
	lock.Unlock()

	turn, err := o.runtime.RunTurn(ctx, role, message, conv)
	if err != nil {
		return nil, NewOrchestratorError(op, id, fmt.Errorf("%w: %v", ErrAgentRuntime, err)).
			WithContext("agent", role.String())
	}

	lock.Lock()
	defer lock.Unlock()

	rec, err = o.get(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if rec.Version != baseVersion {
		return nil, NewOrchestratorError(op, id, ErrConcurrentModification)
	}

	if err := Transition(rec, storage.PhaseChat); err != nil {
		return nil, err
	}
	h := router.ApplyHandoff(rec, turn.Text)
	rec.ChatMessages = append(rec.ChatMessages,
		storage.ChatMessage{Role: storage.RoleUser, Content: message},
		storage.ChatMessage{Role: storage.RoleAssistant, Content: turn.Text, Handoff: h},
	)
	rec.TokenCount += turn.Usage.TotalTokens

	if err := o.persist(ctx, op, rec); err != nil {
		return nil, err
	}
	// The buffer records the exchange only once the write committed, so an
	// aborted turn is never resent as context.
	conv.Append(storage.RoleUser, message)
	conv.Append(storage.RoleAssistant, turn.Text)
	if h != nil {
		o.logger.Info("agent handoff",
			"session_id", id,
			"from", h.FromAgent.String(),
			"to", h.ToAgent.String(),
			"indicator", h.Indicator,
		)
	}

	if o.compactor != nil {
		if _, err := o.compactor.CompactIfNeeded(ctx, rec, conv); err != nil {
			// The chat turn is committed; the failed compaction write still
			// surfaces so the caller never trusts an unpersisted rewrite.
			o.logger.Error("compaction failed", "session_id", id, "error", err)
			return nil, NewOrchestratorError(op, id, fmt.Errorf("%w: %v", ErrStoreFailure, err))
		}
	}
	return rec, nil
}

// RestartSession resets the session to the input phase, clearing all
// conversational state while keeping id, title, and timestamps.
func (o *Orchestrator) RestartSession(ctx context.Context, id string) (*storage.SessionRecord, error) {
	const op = "RestartSession"
	lock := o.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	rec, err := o.get(ctx, op, id)
	if err != nil {
		return nil, err
	}

	rec.Phase = storage.PhaseInput
	rec.InitialMessages = nil
	rec.ResearchBrief = ""
	rec.SearchResult = ""
	rec.ChatMessages = nil
	rec.TokenCount = 0
	rec.IsSummarized = false
	rec.SummarizedAt = nil
	rec.OriginalTokenCount = 0
	rec.SummarizedTokenCount = 0
	rec.CurrentAgent = storage.AgentFlight
	rec.LastHandoff = nil
	rec.Status = storage.StatusActive

	if err := o.persist(ctx, op, rec); err != nil {
		return nil, err
	}
	o.conversation(id).Clear()
	return rec, nil
}

// CompleteSession marks the session completed. The phase is untouched.
func (o *Orchestrator) CompleteSession(ctx context.Context, id string) (*storage.SessionRecord, error) {
	const op = "CompleteSession"
	lock := o.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	rec, err := o.get(ctx, op, id)
	if err != nil {
		return nil, err
	}
	rec.Status = storage.StatusCompleted
	if err := o.persist(ctx, op, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ResumeSession loads a session for continued use and seeds the in-flight
// conversation buffer from the persisted record.
func (o *Orchestrator) ResumeSession(ctx context.Context, id string) (*storage.SessionRecord, error) {
	const op = "ResumeSession"
	lock := o.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	rec, err := o.get(ctx, op, id)
	if err != nil {
		return nil, err
	}
	o.seedConversation(o.conversation(id), rec)
	return rec, nil
}

// RenameSession updates the session title.
func (o *Orchestrator) RenameSession(ctx context.Context, id, title string) error {
	const op = "RenameSession"
	if strings.TrimSpace(title) == "" {
		return NewOrchestratorError(op, id, fmt.Errorf("%w: title is empty", ErrInvalidConfig))
	}
	lock := o.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	if err := o.store.Rename(ctx, id, title); err != nil {
		return o.storeErr(op, id, err)
	}
	return nil
}

// DeleteSession removes the session and its in-memory state.
func (o *Orchestrator) DeleteSession(ctx context.Context, id string) error {
	const op = "DeleteSession"
	lock := o.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	if err := o.store.Delete(ctx, id); err != nil {
		return o.storeErr(op, id, err)
	}
	// The lock entry stays so callers racing this delete keep serializing
	// on the same mutex.
	o.mu.Lock()
	delete(o.convs, id)
	o.mu.Unlock()
	return nil
}

// ListSessions returns all sessions, most recently updated first.
func (o *Orchestrator) ListSessions(ctx context.Context) ([]*storage.SessionSummary, error) {
	out, err := o.store.ListSummaries(ctx)
	if err != nil {
		return nil, o.storeErr("ListSessions", "", err)
	}
	return out, nil
}

// ListSessionsByStatus returns sessions filtered by lifecycle status.
func (o *Orchestrator) ListSessionsByStatus(ctx context.Context, status storage.Status) ([]*storage.SessionSummary, error) {
	out, err := o.store.ListByStatus(ctx, status)
	if err != nil {
		return nil, o.storeErr("ListSessionsByStatus", "", err)
	}
	return out, nil
}

// GetSession returns the full session record.
func (o *Orchestrator) GetSession(ctx context.Context, id string) (*storage.SessionRecord, error) {
	return o.get(ctx, "GetSession", id)
}

// sessionLock returns the per-session mutex, creating it on first use.
func (o *Orchestrator) sessionLock(id string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[id] = lock
	}
	return lock
}

// conversation returns the per-session buffer, creating it on first use.
func (o *Orchestrator) conversation(id string) *agent.Conversation {
	o.mu.Lock()
	defer o.mu.Unlock()
	conv, ok := o.convs[id]
	if !ok {
		conv = agent.NewConversation()
		o.convs[id] = conv
	}
	return conv
}

// seedConversation fills an empty buffer from the persisted record so a
// resumed session carries its history into the next turn.
func (o *Orchestrator) seedConversation(conv *agent.Conversation, rec *storage.SessionRecord) {
	if conv.Len() > 0 {
		return
	}
	for _, m := range rec.InitialMessages {
		conv.Append(m.Role, m.Content)
	}
	if rec.ResearchBrief != "" {
		conv.AppendSystemMessage("Flight search brief:\n" + rec.ResearchBrief)
	}
	if rec.SearchResult != "" {
		conv.Append(storage.RoleAssistant, rec.SearchResult)
	}
	for _, m := range rec.ChatMessages {
		conv.Append(m.Role, m.Content)
	}
}

func (o *Orchestrator) get(ctx context.Context, op, id string) (*storage.SessionRecord, error) {
	rec, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, o.storeErr(op, id, err)
	}
	return rec, nil
}

// persist bumps the record version and writes it back in one upsert.
func (o *Orchestrator) persist(ctx context.Context, op string, rec *storage.SessionRecord) error {
	rec.Version++
	if err := o.store.Upsert(ctx, rec); err != nil {
		return NewOrchestratorError(op, rec.ID, fmt.Errorf("%w: %v", ErrStoreFailure, err))
	}
	return nil
}

func (o *Orchestrator) storeErr(op, id string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return NewOrchestratorError(op, id, ErrSessionNotFound)
	}
	return NewOrchestratorError(op, id, fmt.Errorf("%w: %v", ErrStoreFailure, err))
}

// clarificationRounds counts completed question rounds in the scoping
// conversation. Each assistant entry is one round of questions.
func clarificationRounds(messages []storage.Message) int {
	n := 0
	for _, m := range messages {
		if m.Role == storage.RoleAssistant {
			n++
		}
	}
	return n
}

func formatQuestions(questions []string) string {
	var b strings.Builder
	b.WriteString("Follow-up questions:")
	for i, q := range questions {
		fmt.Fprintf(&b, "\n%d. %s", i+1, q)
	}
	return b.String()
}

func cloneMessages(in []storage.Message) []storage.Message {
	out := make([]storage.Message, len(in))
	copy(out, in)
	return out
}
