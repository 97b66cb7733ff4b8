package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/flightscout/flightscout/storage"
)

func seedAgedSessions(t *testing.T, store *storage.MemoryStore, oldCount, freshCount int) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < oldCount; i++ {
		rec, err := store.Create(ctx, "old-"+string(rune('a'+i)), "t")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		rec.CreatedAt = time.Now().UTC().AddDate(0, 0, -45)
		if err := store.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	for i := 0; i < freshCount; i++ {
		if _, err := store.Create(ctx, "fresh-"+string(rune('a'+i)), "t"); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
}

func TestSweeperRunOnce(t *testing.T) {
	store := storage.NewMemoryStore()
	seedAgedSessions(t, store, 2, 3)

	sweeper := NewSweeper(store, &SweeperConfig{RetentionDays: 30})
	count, err := sweeper.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if count != 2 {
		t.Errorf("deleted = %d, want 2", count)
	}

	total, _ := store.Count(context.Background())
	if total != 3 {
		t.Errorf("remaining = %d, want 3", total)
	}
}

func TestSweeperLifecycle(t *testing.T) {
	store := storage.NewMemoryStore()
	seedAgedSessions(t, store, 1, 1)

	cleaned := make(chan int, 1)
	sweeper := NewSweeper(store, &SweeperConfig{
		Interval:      time.Hour,
		RetentionDays: 30,
		OnCleanup: func(count int) {
			select {
			case cleaned <- count:
			default:
			}
		},
	})

	ctx := context.Background()
	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sweeper.Start(ctx); err != ErrAlreadyStarted {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}

	// The initial sweep runs immediately on start.
	select {
	case count := <-cleaned:
		if count != 1 {
			t.Errorf("OnCleanup count = %d, want 1", count)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("initial sweep did not run")
	}

	if err := sweeper.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := sweeper.Stop(ctx); err != ErrNotStarted {
		t.Errorf("second Stop = %v, want ErrNotStarted", err)
	}

	// Restart works after a clean stop.
	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := sweeper.Stop(ctx); err != nil {
		t.Fatalf("stop after restart: %v", err)
	}
}

func TestSweeperDefaults(t *testing.T) {
	sweeper := NewSweeper(storage.NewMemoryStore(), nil)
	if sweeper.config.Interval != DefaultSweepInterval {
		t.Errorf("interval = %v, want %v", sweeper.config.Interval, DefaultSweepInterval)
	}
	if sweeper.config.RetentionDays != DefaultRetentionDays {
		t.Errorf("retention = %d, want %d", sweeper.config.RetentionDays, DefaultRetentionDays)
	}
}
