package textfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "Ask about the trains.", expected: "ask about the trains"},
		{input: "  Ask   ABOUT\tthe trains!! ", expected: "ask about the trains"},
		{input: "Don't go", expected: "dont go"},
		{input: "Ｗａｉｔ", expected: "wait"},
		{input: "Straße", expected: "strasse"},
		{input: "...", expected: ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("Ask about the trains", "ask about the TRAINS!"))
	assert.Equal(t, 0.0, Similarity("Help Maya", "Leave quietly"))
	assert.Equal(t, 1.0, Similarity("", "?!"))
	assert.InDelta(t, 0.5, Similarity("ask about the trains", "ask about the luggage today"), 0.001)
}

func TestDedupe(t *testing.T) {
	texts := []string{
		"Ask about the trains.",
		"Offer to carry the crate.",
		"ask about the trains",
		"Offer to carry the heavy crate.",
		"Leave.",
	}

	tests := []struct {
		name      string
		threshold float64
		expected  []string
	}{
		{
			name:      "exact duplicates only",
			threshold: 1,
			expected:  []string{"Ask about the trains.", "Offer to carry the crate.", "Offer to carry the heavy crate.", "Leave."},
		},
		{
			name:      "near duplicates",
			threshold: 0.8,
			expected:  []string{"Ask about the trains.", "Offer to carry the crate.", "Leave."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Dedupe(texts, tt.threshold))
		})
	}

	assert.Empty(t, Dedupe(nil, 0.5))
}
