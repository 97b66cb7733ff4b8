package compaction

import (
	"fmt"
)

// Default configuration values.
const (
	// DefaultSummarizationThreshold is the cumulative token count at which
	// compaction triggers. It sits below the hard context ceiling so there
	// is headroom for the summarization call itself.
	DefaultSummarizationThreshold = 200_000

	// DefaultMaxContextTokens is the hard context ceiling of the target model.
	DefaultMaxContextTokens = 250_000

	// DefaultRecentMessagesToKeep is the trailing window of chat messages
	// preserved verbatim through compaction.
	DefaultRecentMessagesToKeep = 5

	// DefaultFallbackSummaryChars bounds the truncation fallback used when
	// the summarization call fails.
	DefaultFallbackSummaryChars = 2000

	DefaultSummarizerModel     = "claude-3-5-haiku-20241022"
	DefaultSummarizerMaxTokens = 4096
)

// Config holds compaction configuration.
type Config struct {
	// SummarizationThreshold triggers compaction when the reported
	// cumulative token count reaches it. Must be below MaxContextTokens.
	SummarizationThreshold int `yaml:"summarization_threshold"`

	// MaxContextTokens is the hard context ceiling; never a trigger itself,
	// only a sanity bound on the threshold.
	MaxContextTokens int `yaml:"max_context_tokens"`

	// RecentMessagesToKeep is the number of trailing chat messages kept
	// uncompacted, in original order, regardless of role.
	RecentMessagesToKeep int `yaml:"recent_messages_to_keep"`

	// FallbackSummaryChars is the prefix length kept when summarization
	// fails and the coordinator degrades to truncation.
	FallbackSummaryChars int `yaml:"fallback_summary_chars"`

	// SummarizerModel is the model used for the summarization call.
	SummarizerModel string `yaml:"summarizer_model"`

	// SummarizerMaxTokens caps the summarization response length.
	SummarizerMaxTokens int `yaml:"summarizer_max_tokens"`
}

// DefaultConfig returns a Config with the default thresholds.
func DefaultConfig() *Config {
	return &Config{
		SummarizationThreshold: DefaultSummarizationThreshold,
		MaxContextTokens:       DefaultMaxContextTokens,
		RecentMessagesToKeep:   DefaultRecentMessagesToKeep,
		FallbackSummaryChars:   DefaultFallbackSummaryChars,
		SummarizerModel:        DefaultSummarizerModel,
		SummarizerMaxTokens:    DefaultSummarizerMaxTokens,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.SummarizationThreshold == 0 {
		c.SummarizationThreshold = DefaultSummarizationThreshold
	}
	if c.MaxContextTokens == 0 {
		c.MaxContextTokens = DefaultMaxContextTokens
	}
	if c.RecentMessagesToKeep == 0 {
		c.RecentMessagesToKeep = DefaultRecentMessagesToKeep
	}
	if c.FallbackSummaryChars == 0 {
		c.FallbackSummaryChars = DefaultFallbackSummaryChars
	}
	if c.SummarizerModel == "" {
		c.SummarizerModel = DefaultSummarizerModel
	}
	if c.SummarizerMaxTokens == 0 {
		c.SummarizerMaxTokens = DefaultSummarizerMaxTokens
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.SummarizationThreshold <= 0 {
		return fmt.Errorf("%w: summarization_threshold must be positive, got %d",
			ErrInvalidConfig, c.SummarizationThreshold)
	}
	if c.MaxContextTokens <= 0 {
		return fmt.Errorf("%w: max_context_tokens must be positive, got %d",
			ErrInvalidConfig, c.MaxContextTokens)
	}
	if c.SummarizationThreshold >= c.MaxContextTokens {
		return fmt.Errorf("%w: summarization_threshold (%d) must be less than max_context_tokens (%d)",
			ErrInvalidConfig, c.SummarizationThreshold, c.MaxContextTokens)
	}
	if c.RecentMessagesToKeep < 0 {
		return fmt.Errorf("%w: recent_messages_to_keep must be non-negative, got %d",
			ErrInvalidConfig, c.RecentMessagesToKeep)
	}
	if c.FallbackSummaryChars <= 0 {
		return fmt.Errorf("%w: fallback_summary_chars must be positive, got %d",
			ErrInvalidConfig, c.FallbackSummaryChars)
	}
	if c.SummarizerModel == "" {
		return fmt.Errorf("%w: summarizer_model is required", ErrInvalidConfig)
	}
	if c.SummarizerMaxTokens <= 0 {
		return fmt.Errorf("%w: summarizer_max_tokens must be positive, got %d",
			ErrInvalidConfig, c.SummarizerMaxTokens)
	}
	return nil
}

// ShouldCompact is the token budget monitor: it reports whether the cumulative
// usage figure requires compaction. Pure and total over non-negative counts;
// it never mutates state.
func (c *Config) ShouldCompact(tokenCount int) bool {
	return tokenCount >= c.SummarizationThreshold
}
