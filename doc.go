// Package flightscout orchestrates durable multi-agent flight-search
// sessions: a clarify/brief scoping flow, a flight search, and follow-up
// chat routed between a flight search agent and an itinerary planner, with
// token-budget-driven context compaction.
//
// The Orchestrator is the only writer of session records. Subpackages:
//
//   - storage: session record model and the memory, SQLite, and Postgres stores
//   - compaction: token budget policy and the summarization coordinator
//   - handoff: transfer-intent detection in agent responses
//   - agent: the LLM runtime and scoping contracts plus the OpenAI backing
//   - maintenance: background retention sweeps
package flightscout
