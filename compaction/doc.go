// Package compaction bounds the growth of a session's conversational memory.
//
// It contains the token budget monitor (Config.ShouldCompact), the
// summarization engine (Summarizer and its Anthropic implementation), and the
// Coordinator that rewrites a session record around a condensed summary while
// preserving a fixed trailing window of recent chat messages.
package compaction
