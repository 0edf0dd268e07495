package pipeline

import (
	"math"

	"text2phenotype.com/postag/aggregation"
)

const (
	PunctuationLabel = "."

	punctuationThreshold = 0.5
)

// IsPunctuation reports whether word is non-empty and made only of ASCII
// punctuation characters.
func IsPunctuation(word string) bool {
	if len(word) == 0 {
		return false
	}
	for _, r := range word {
		if !isASCIIPunctuation(r) {
			return false
		}
	}
	return true
}

func isASCIIPunctuation(r rune) bool {
	return (r >= '!' && r <= '/') || (r >= ':' && r <= '@') ||
		(r >= '[' && r <= '`') || (r >= '{' && r <= '~')
}

// ApplyPunctuationHeuristic relabels punctuation words the model was unsure
// about (score below 0.5 or NaN) as "." with full confidence.
func ApplyPunctuationHeuristic(c aggregation.Candidate) aggregation.Candidate {
	if IsPunctuation(c.Word) && (c.Score < punctuationThreshold || math.IsNaN(c.Score)) {
		c.Label = PunctuationLabel
		c.Score = 1.0
	}
	return c
}
