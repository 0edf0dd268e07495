// Package aggregation merges sub-word predictions into one decision per word.
package aggregation

import (
	"fmt"
	"strings"

	"text2phenotype.com/postag/types"
)

// Candidate is a word with the label and score chosen for it.
type Candidate struct {
	Word  string
	Label string
	Score float64
}

// Aggregator groups fragments into words: a group starts at a
// non-continuation fragment and takes every continuation fragment after it.
type Aggregator interface {
	Aggregate(predictions []types.RawPrediction) []Candidate
}

type policy func(group []types.RawPrediction) (string, float64)

type aggregator struct {
	marker string
	choose policy
}

// New returns the aggregator for option. marker is stripped from the start of
// continuation fragment texts; it may be empty.
func New(option types.AggregationOption, marker string) (Aggregator, error) {
	var choose policy
	switch option {
	case types.AggregationFirst, "":
		choose = first
	case types.AggregationLast:
		choose = last
	case types.AggregationMode:
		choose = mode
	case types.AggregationAverage:
		choose = average
	default:
		return nil, fmt.Errorf("unknown aggregation option %q", option)
	}
	return &aggregator{marker: marker, choose: choose}, nil
}

func (a *aggregator) Aggregate(predictions []types.RawPrediction) []Candidate {
	res := make([]Candidate, 0, len(predictions))

	start := 0
	for start < len(predictions) {
		end := start + 1
		for end < len(predictions) && predictions[end].IsContinuation {
			end++
		}

		group := predictions[start:end]
		label, score := a.choose(group)
		res = append(res, Candidate{
			Word:  a.word(group),
			Label: label,
			Score: score,
		})
		start = end
	}

	return res
}

func (a *aggregator) word(group []types.RawPrediction) string {
	if len(group) == 1 {
		return a.fragmentText(group[0])
	}

	var sb strings.Builder
	for _, p := range group {
		sb.WriteString(a.fragmentText(p))
	}
	return sb.String()
}

func (a *aggregator) fragmentText(p types.RawPrediction) string {
	if p.IsContinuation && len(a.marker) > 0 {
		return strings.TrimPrefix(p.Text, a.marker)
	}
	return p.Text
}

func first(group []types.RawPrediction) (string, float64) {
	return group[0].Label, group[0].Score
}

func last(group []types.RawPrediction) (string, float64) {
	p := group[len(group)-1]
	return p.Label, p.Score
}

// majority returns the most frequent label; ties go to the label seen first.
func majority(group []types.RawPrediction) string {
	counts := make(map[string]int, len(group))
	best, bestCount := "", 0
	for _, p := range group {
		counts[p.Label]++
	}
	for _, p := range group {
		if c := counts[p.Label]; c > bestCount {
			best, bestCount = p.Label, c
		}
	}
	return best
}

func mode(group []types.RawPrediction) (string, float64) {
	label := majority(group)
	for _, p := range group {
		if p.Label == label {
			return label, p.Score
		}
	}
	return first(group)
}

func average(group []types.RawPrediction) (string, float64) {
	label := majority(group)
	sum, n := 0.0, 0
	for _, p := range group {
		if p.Label == label {
			sum += p.Score
			n++
		}
	}
	return label, sum / float64(n)
}
