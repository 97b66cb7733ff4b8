package maintenance

import "errors"

// Errors returned by the maintenance package.
var (
	// ErrAlreadyStarted is returned when Start() is called on an already started sweeper.
	ErrAlreadyStarted = errors.New("sweeper already started")

	// ErrNotStarted is returned when Stop() is called on a sweeper that hasn't started.
	ErrNotStarted = errors.New("sweeper not started")
)
