package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "simple words",
			input:    "claim scope analysis",
			expected: []string{"claim", "scope", "analysis"},
		},
		{
			name:     "lowercases",
			input:    "Abstract WORD Limit",
			expected: []string{"abstract", "word", "limit"},
		},
		{
			name:     "statute citation splits on punctuation",
			input:    "35 U.S.C. 112(b)",
			expected: []string{"35", "u", "s", "c", "112", "b"},
		},
		{
			name:     "empty input",
			input:    "",
			expected: []string{},
		},
		{
			name:     "punctuation only",
			input:    "... --- !!!",
			expected: []string{},
		},
		{
			name:     "hyphenated terms split",
			input:    "cross-reference",
			expected: []string{"cross", "reference"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TokenizeText(tt.input))
		})
	}
}

func TestFilterStopWords(t *testing.T) {
	stopWords := BuildStopWordMap(DefaultStopWords)

	tokens := TokenizeText("the scope of the claim")
	filtered := FilterStopWords(tokens, stopWords)
	assert.Equal(t, []string{"scope", "claim"}, filtered)
}

func TestFilterStopWordsKeepsDomainTerms(t *testing.T) {
	stopWords := BuildStopWordMap(DefaultStopWords)

	// Legal operative words must survive filtering.
	tokens := TokenizeText("the applicant shall amend the claim")
	filtered := FilterStopWords(tokens, stopWords)
	assert.Contains(t, filtered, "shall")
	assert.Contains(t, filtered, "claim")
	assert.NotContains(t, filtered, "the")
}
