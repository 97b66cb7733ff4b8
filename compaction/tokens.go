package compaction

import (
	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Estimator provides a client-side token estimate for display purposes.
//
// This figure is deliberately separate from the runtime-reported
// usage.totalTokens that drives the budget monitor: the estimate may drift
// from the provider's authoritative count and must never be used to decide
// compaction.
type Estimator struct {
	enc *tiktoken.Tiktoken
}

// NewEstimator creates an estimator backed by the cl100k_base encoding,
// falling back to a character heuristic when the encoding is unavailable.
func NewEstimator() *Estimator {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &Estimator{}
	}
	return &Estimator{enc: enc}
}

// Estimate returns the estimated token count for text.
func (e *Estimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	if e.enc != nil {
		return len(e.enc.Encode(text, nil, nil))
	}
	return ApproximateTokens(text)
}

// ApproximateTokens estimates tokens without a tokenizer, at roughly four
// characters per token. Any non-empty string counts as at least one token.
func ApproximateTokens(content string) int {
	if len(content) == 0 {
		return 0
	}
	return (len(content) + 3) / 4
}
