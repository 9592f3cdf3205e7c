package store

import (
	"regexp"
	"strings"
)

// wordRegex matches alphanumeric word runs. Punctuation (including the
// parentheses and periods of statute citations like "35 U.S.C. 112(b)")
// acts as a separator, so the citation survives as "35 usc 112 b".
var wordRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// DefaultStopWords are high-frequency English function words that carry no
// ranking signal in legal/technical prose. Domain terms ("claim", "section",
// "shall") are deliberately kept: they discriminate between passages.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
	"in", "is", "it", "of", "on", "or", "that", "the", "to", "with",
}

// TokenizeText splits text into lowercase word tokens with punctuation
// stripped. No stemming. This exact function backs both the Bleve analyzer
// (index time) and query-time tokenization, keeping the two identical.
func TokenizeText(text string) []string {
	words := wordRegex.FindAllString(text, -1)
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		tokens = append(tokens, strings.ToLower(w))
	}
	return tokens
}

// BuildStopWordMap converts a stop word list into a lookup set.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, isStop := stopWords[t]; !isStop {
			result = append(result, t)
		}
	}
	return result
}
