package compaction

import "fmt"

// SummaryPrefix marks synthetic summary entries written during compaction.
const SummaryPrefix = "Summary of previous conversation:\n"

// DegradedSummaryPrefix marks a truncation fallback produced when the
// summarization call failed, so operators can audit degraded summaries.
const DegradedSummaryPrefix = "[degraded summary: truncated history]\n"

// SummarizationSystemPrompt instructs the summarizer model.
const SummarizationSystemPrompt = `You are summarizing a flight-search conversation so it can continue with a bounded context.
Preserve, concisely:
- the traveler's request: origin, destination, dates, passengers, cabin class, budget
- clarifying questions asked and the traveler's answers
- the flight search brief
- flight options already presented: airlines, prices, times, stops, offer ids
- itinerary decisions, preferences, and constraints stated so far
- anything the traveler asked to follow up on
Write plain text. Do not invent details. Do not address the traveler.`

// BuildSummarizationUserPrompt wraps the assembled memory text for the
// summarization call.
func BuildSummarizationUserPrompt(memory string) string {
	return fmt.Sprintf("Summarize the following flight-search session history:\n\n<history>\n%s\n</history>", memory)
}
