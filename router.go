package flightscout

import (
	"github.com/flightscout/flightscout/handoff"
	"github.com/flightscout/flightscout/storage"
)

// Router decides which agent role handles the next chat turn and applies
// detected handoffs to the record. Routing reads only the persisted
// CurrentAgent; handoff detection never influences the turn it was detected
// in, only subsequent ones.
type Router struct{}

// Route returns the role for the next turn.
func (Router) Route(rec *storage.SessionRecord) storage.AgentRole {
	return rec.CurrentAgent.OrDefault()
}

// ApplyHandoff scans an agent response for transfer intent and, when the
// target differs from the current role, updates CurrentAgent and LastHandoff.
// It returns the recorded handoff, or nil when nothing changed.
func (Router) ApplyHandoff(rec *storage.SessionRecord, responseText string) *storage.HandoffRecord {
	det := handoff.Detect(responseText)
	if det == nil {
		return nil
	}
	current := rec.CurrentAgent.OrDefault()
	if det.Target == current {
		return nil
	}
	h := &storage.HandoffRecord{
		FromAgent: current,
		ToAgent:   det.Target,
		Indicator: det.Indicator,
	}
	rec.CurrentAgent = det.Target
	rec.LastHandoff = h
	return h
}
