package flightscout

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrInvalidConfig is returned when the orchestrator configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrSessionNotFound is returned when a session does not exist
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidTransition is returned when an operation is not legal in the
	// session's current phase
	ErrInvalidTransition = errors.New("invalid phase transition")

	// ErrConcurrentModification is returned when the session was modified
	// while an agent call was in flight
	ErrConcurrentModification = errors.New("session modified concurrently")

	// ErrAgentRuntime is returned when an external agent call fails
	ErrAgentRuntime = errors.New("agent runtime failure")

	// ErrStoreFailure is returned when a storage operation fails
	ErrStoreFailure = errors.New("storage operation failed")
)

// OrchestratorError represents an error with additional context
type OrchestratorError struct {
	Op        string         // Operation that failed
	Err       error          // Underlying error
	SessionID string         // Session ID if applicable
	Context   map[string]any // Additional context
}

// Error implements the error interface
func (e *OrchestratorError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s (session=%s): %v", e.Op, e.SessionID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *OrchestratorError) Unwrap() error {
	return e.Err
}

// WithContext adds additional context to the error
func (e *OrchestratorError) WithContext(key string, value any) *OrchestratorError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// NewOrchestratorError creates a new OrchestratorError
func NewOrchestratorError(op string, sessionID string, err error) *OrchestratorError {
	return &OrchestratorError{
		Op:        op,
		Err:       err,
		SessionID: sessionID,
	}
}
