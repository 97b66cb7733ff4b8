package flightscout

import (
	"errors"
	"testing"

	"github.com/flightscout/flightscout/storage"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from storage.Phase
		to   storage.Phase
		want bool
	}{
		{storage.PhaseInput, storage.PhaseClarifying, true},
		{storage.PhaseInput, storage.PhaseBriefGenerated, false},
		{storage.PhaseInput, storage.PhaseSearching, false},
		{storage.PhaseInput, storage.PhaseResults, false},
		{storage.PhaseInput, storage.PhaseChat, false},

		{storage.PhaseClarifying, storage.PhaseClarifying, true},
		{storage.PhaseClarifying, storage.PhaseBriefGenerated, true},
		{storage.PhaseClarifying, storage.PhaseSearching, false},
		{storage.PhaseClarifying, storage.PhaseChat, false},

		{storage.PhaseBriefGenerated, storage.PhaseSearching, true},
		{storage.PhaseBriefGenerated, storage.PhaseClarifying, false},
		{storage.PhaseBriefGenerated, storage.PhaseResults, false},
		{storage.PhaseBriefGenerated, storage.PhaseChat, false},

		{storage.PhaseSearching, storage.PhaseResults, true},
		{storage.PhaseSearching, storage.PhaseChat, false},
		{storage.PhaseSearching, storage.PhaseSearching, false},

		{storage.PhaseResults, storage.PhaseChat, true},
		{storage.PhaseResults, storage.PhaseSearching, true},
		{storage.PhaseResults, storage.PhaseClarifying, false},

		{storage.PhaseChat, storage.PhaseChat, true},
		{storage.PhaseChat, storage.PhaseResults, false},
		{storage.PhaseChat, storage.PhaseSearching, false},

		// Restart is legal from everywhere.
		{storage.PhaseInput, storage.PhaseInput, true},
		{storage.PhaseClarifying, storage.PhaseInput, true},
		{storage.PhaseBriefGenerated, storage.PhaseInput, true},
		{storage.PhaseSearching, storage.PhaseInput, true},
		{storage.PhaseResults, storage.PhaseInput, true},
		{storage.PhaseChat, storage.PhaseInput, true},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTransition(t *testing.T) {
	rec := &storage.SessionRecord{ID: "s1", Phase: storage.PhaseInput}

	if err := Transition(rec, storage.PhaseClarifying); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if rec.Phase != storage.PhaseClarifying {
		t.Errorf("phase = %q, want clarifying", rec.Phase)
	}

	err := Transition(rec, storage.PhaseChat)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("error = %v, want ErrInvalidTransition", err)
	}
	// A rejected transition leaves the record untouched.
	if rec.Phase != storage.PhaseClarifying {
		t.Errorf("phase moved on rejected transition: %q", rec.Phase)
	}

	var oerr *OrchestratorError
	if !errors.As(err, &oerr) {
		t.Fatal("error is not an OrchestratorError")
	}
	if oerr.SessionID != "s1" {
		t.Errorf("session id = %q, want s1", oerr.SessionID)
	}
}
