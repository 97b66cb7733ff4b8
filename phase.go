package flightscout

import "github.com/flightscout/flightscout/storage"

// phaseTransitions is the forward edge set of the session flow. A restart to
// the input phase is additionally allowed from every phase.
var phaseTransitions = map[storage.Phase][]storage.Phase{
	storage.PhaseInput:          {storage.PhaseClarifying},
	storage.PhaseClarifying:     {storage.PhaseClarifying, storage.PhaseBriefGenerated},
	storage.PhaseBriefGenerated: {storage.PhaseSearching},
	storage.PhaseSearching:      {storage.PhaseResults},
	storage.PhaseResults:        {storage.PhaseSearching, storage.PhaseChat},
	storage.PhaseChat:           {storage.PhaseChat},
}

// CanTransition reports whether moving from one phase to another is legal.
func CanTransition(from, to storage.Phase) bool {
	if to == storage.PhaseInput {
		return true
	}
	for _, next := range phaseTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the record to the target phase, or returns
// ErrInvalidTransition leaving the record untouched.
func Transition(rec *storage.SessionRecord, to storage.Phase) error {
	if !CanTransition(rec.Phase, to) {
		return NewOrchestratorError("Transition", rec.ID, ErrInvalidTransition).
			WithContext("from", rec.Phase.String()).
			WithContext("to", to.String())
	}
	rec.Phase = to
	return nil
}
