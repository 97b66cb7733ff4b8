// Package maintenance runs background retention sweeps over the session
// store, deleting sessions older than the configured retention window.
package maintenance

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/flightscout/flightscout/storage"
)

// Default sweeper configuration values
const (
	DefaultSweepInterval = 1 * time.Hour
	DefaultRetentionDays = 30
)

// SweeperConfig holds configuration for the retention sweeper.
type SweeperConfig struct {
	// Interval is how often to run a sweep.
	// Default: 1 hour
	Interval time.Duration

	// RetentionDays is the age in days beyond which sessions are deleted.
	// Default: 30
	RetentionDays int

	// OnCleanup is called after a sweep that deleted sessions.
	// The count is the number of sessions deleted.
	OnCleanup func(count int)

	// OnError is called when a sweep fails.
	OnError func(err error)
}

// DefaultSweeperConfig returns the default sweeper configuration.
func DefaultSweeperConfig() *SweeperConfig {
	return &SweeperConfig{
		Interval:      DefaultSweepInterval,
		RetentionDays: DefaultRetentionDays,
	}
}

// Sweeper periodically deletes sessions older than the retention window.
type Sweeper struct {
	store  storage.Store
	config *SweeperConfig

	started atomic.Bool
	done    chan struct{}
	cancel  context.CancelFunc
}

// NewSweeper creates a retention sweeper.
func NewSweeper(store storage.Store, config *SweeperConfig) *Sweeper {
	if config == nil {
		config = DefaultSweeperConfig()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultSweepInterval
	}
	if config.RetentionDays <= 0 {
		config.RetentionDays = DefaultRetentionDays
	}

	return &Sweeper{
		store:  store,
		config: config,
		done:   make(chan struct{}),
	}
}

// Start begins the sweep loop.
// It returns immediately and runs sweeps in a goroutine.
func (s *Sweeper) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	s.done = make(chan struct{})
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)

	return nil
}

// Stop stops the sweep loop.
func (s *Sweeper) Stop(ctx context.Context) error {
	if !s.started.Load() {
		return ErrNotStarted
	}

	s.cancel()
	<-s.done

	s.started.Store(false)
	return nil
}

// run is the main sweep loop.
func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	// Sweep immediately on start
	s.sweep(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep performs one sweep and dispatches callbacks.
func (s *Sweeper) sweep(ctx context.Context) {
	count, err := s.RunOnce(ctx)
	if err != nil {
		if s.config.OnError != nil {
			s.config.OnError(err)
		}
		return
	}
	if count > 0 && s.config.OnCleanup != nil {
		s.config.OnCleanup(count)
	}
}

// RunOnce performs one sweep and returns the number of sessions deleted.
// This can be called manually for testing or one-off cleanup.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -s.config.RetentionDays)
	return s.store.DeleteOlderThan(ctx, cutoff)
}
