package textfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProfanityFilter_Clean(t *testing.T) {
	filter := NewProfanityFilter()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "simple replacement", input: "What the hell is going on?", expected: "What the heck is going on?"},
		{name: "multiple words", input: "This is damn crap!", expected: "This is dang crud!"},
		{name: "uppercase", input: "DAMN that's annoying!", expected: "DANG that's annoying!"},
		{name: "title case", input: "Hell no, that's not right", expected: "Heck no, that's not right"},
		{name: "partial match untouched", input: "I love classical music", expected: "I love classical music"},
		{name: "no profanity", input: "This is a perfectly clean sentence.", expected: "This is a perfectly clean sentence."},
		{name: "empty", input: "", expected: ""},
		{name: "punctuation", input: "What the hell?! That's damn crazy.", expected: "What the heck?! That's dang crazy."},
		{name: "mixed case", input: "HeLl yeah, that's DaMn good!", expected: "HeCk yeah, that's DaNg good!"},
		{name: "plurals", input: "Too many assholes and bastards here!", expected: "Too many jerks and jerks here!"},
		{name: "longest word wins", input: "What a jackass.", expected: "What a jerk."},
		{name: "no false plural", input: "I need to process this data", expected: "I need to process this data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, filter.Clean(tt.input))
		})
	}
}

func TestProfanityFilter_ContainsProfanity(t *testing.T) {
	filter := NewProfanityFilter()

	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{name: "mild", input: "What the hell is this?", expected: true},
		{name: "clean", input: "Offer to carry his crate of letters.", expected: false},
		{name: "partial word", input: "I love classical music", expected: false},
		{name: "uppercase", input: "HELL no!", expected: true},
		{name: "empty", input: "", expected: false},
		{name: "plural", input: "There are multiple hells on earth", expected: true},
		{name: "full-width letters", input: "ｄａｍｎ it", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, filter.ContainsProfanity(tt.input))
		})
	}
}

func TestProfanityFilter_CleanedTextIsClean(t *testing.T) {
	filter := NewProfanityFilter()
	input := "That lock was damn hard! What the hells was the station master thinking?"
	cleaned := filter.Clean(input)

	assert.Equal(t, "That lock was dang hard! What the hecks was the station master thinking?", cleaned)
	assert.True(t, filter.ContainsProfanity(input))
	assert.False(t, filter.ContainsProfanity(cleaned))
}
