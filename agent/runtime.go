// Package agent abstracts the external LLM agent runtime behind the contracts
// the orchestrator consumes: per-role chat turns, the scoping agents
// (clarify and brief), and the live conversation buffer.
package agent

import (
	"context"

	"github.com/flightscout/flightscout/storage"
)

// Usage is the token usage reported by the runtime for one completed turn.
// TotalTokens is the authoritative figure fed to the token budget monitor;
// the core never computes tokens itself.
type Usage struct {
	TotalTokens  int `json:"total_tokens"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add combines two Usage values.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		TotalTokens:  u.TotalTokens + other.TotalTokens,
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
	}
}

// TurnResult is the outcome of one agent turn.
type TurnResult struct {
	Text  string
	Usage Usage
}

// Runtime runs one turn against the specialized agent for the given role.
// Both roles expose the same contract; they differ only in the instructions
// bound to them. Calls may block for seconds to minutes and honor ctx
// cancellation; a failed or cancelled call commits nothing.
type Runtime interface {
	RunTurn(ctx context.Context, role storage.AgentRole, input string, conv *Conversation) (*TurnResult, error)
}

// Clarification is the structured output of the clarify scoping agent.
type Clarification struct {
	NeedClarification bool
	Questions         []string
	Usage             Usage
}

// Scoper runs the scoping agents over the initial conversation: deciding
// whether clarifying questions are needed, and producing the flight search
// brief once scoping is complete.
type Scoper interface {
	Clarify(ctx context.Context, messages []storage.Message) (*Clarification, error)
	WriteBrief(ctx context.Context, messages []storage.Message) (string, Usage, error)
}
