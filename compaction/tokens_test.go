package compaction

import "testing"

func TestApproximateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"single char", "a", 1},
		{"four chars", "abcd", 1},
		{"five chars", "abcde", 2},
		{"eight chars", "abcdefgh", 2},
		{"sentence", "the quick brown fox", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ApproximateTokens(tt.text); got != tt.want {
				t.Errorf("ApproximateTokens(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestEstimator(t *testing.T) {
	est := NewEstimator()

	if got := est.Estimate(""); got != 0 {
		t.Errorf("Estimate(\"\") = %d, want 0", got)
	}

	text := "Find me a flight from San Francisco to New York in September."
	got := est.Estimate(text)
	if got <= 0 {
		t.Errorf("Estimate(%q) = %d, want positive", text, got)
	}

	// Longer text always estimates at least as large.
	longer := text + " I prefer a direct economy flight under $500."
	if est.Estimate(longer) < got {
		t.Errorf("longer text estimated smaller: %d < %d", est.Estimate(longer), got)
	}
}

func TestEstimatorZeroValueFallsBack(t *testing.T) {
	var est Estimator

	text := "some text without an encoder"
	if got, want := est.Estimate(text), ApproximateTokens(text); got != want {
		t.Errorf("zero-value Estimate = %d, want approximation %d", got, want)
	}
}
