// Package handoff detects agent-transfer intent in free-text agent responses.
//
// Detection is a best-effort keyword classifier over a fixed vocabulary, not
// a parser: it matches the literal transfer phrases below case-insensitively
// and resolves the target role from role-identifying keywords. Responses that
// discuss flights or itineraries without a transfer indicator never trigger a
// handoff. A structured transfer signal from the agent runtime could replace
// this package without touching routing logic.
package handoff

import (
	"strings"

	"github.com/flightscout/flightscout/storage"
)

// Detection is a detected transfer intent. FromAgent is filled in by the
// router, which knows the currently persisted role.
type Detection struct {
	Target    storage.AgentRole
	Indicator string
}

// indicators is the fixed transfer-intent vocabulary. Role-name mentions
// count as indicators on their own.
var indicators = []string{
	"handoff to",
	"handing off to",
	"hand off to",
	"transferring to",
	"transferring you to",
	"transfer to",
	"switching to",
	"switching you to",
	"itinerary planner",
	"itinerary planning agent",
	"flight search agent",
	"flight agent",
}

// Detect scans response text for a transfer indicator and resolves the target
// role. It returns nil when no indicator matches or no target role can be
// determined; that is a normal outcome, not an error.
func Detect(responseText string) *Detection {
	lower := strings.ToLower(responseText)
	for _, indicator := range indicators {
		if !strings.Contains(lower, indicator) {
			continue
		}
		if target, ok := targetRole(lower); ok {
			return &Detection{Target: target, Indicator: indicator}
		}
	}
	return nil
}

// targetRole resolves the destination role from role-identifying keywords.
func targetRole(lower string) (storage.AgentRole, bool) {
	if strings.Contains(lower, "itinerary") || strings.Contains(lower, "planner") {
		return storage.AgentItinerary, true
	}
	if strings.Contains(lower, "flight") &&
		(strings.Contains(lower, "search") || strings.Contains(lower, "agent")) {
		return storage.AgentFlight, true
	}
	return "", false
}
