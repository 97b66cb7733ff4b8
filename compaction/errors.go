package compaction

import (
	"errors"
	"fmt"
)

// Sentinel errors for compaction operations.
var (
	// ErrInvalidConfig indicates invalid compaction configuration.
	ErrInvalidConfig = errors.New("invalid compaction configuration")

	// ErrSummarizationFailed indicates the summarization call failed.
	// The coordinator recovers from it via the truncation fallback; it is
	// never surfaced to orchestrator callers as a hard failure.
	ErrSummarizationFailed = errors.New("summarization failed")

	// ErrStorageError indicates the persisting write failed. No state change
	// can be assumed committed.
	ErrStorageError = errors.New("storage operation failed")
)

// CompactionError provides structured error context for compaction operations.
type CompactionError struct {
	// Op is the operation that failed (e.g., "Compact", "Summarize").
	Op string

	// SessionID is the session ID if applicable.
	SessionID string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
func (e *CompactionError) Error() string {
	msg := fmt.Sprintf("compaction %s failed", e.Op)
	if e.SessionID != "" {
		msg += fmt.Sprintf(" for session %s", e.SessionID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *CompactionError) Unwrap() error {
	return e.Err
}

// NewCompactionError creates a new CompactionError.
func NewCompactionError(op, sessionID string, err error) *CompactionError {
	return &CompactionError{Op: op, SessionID: sessionID, Err: err}
}
