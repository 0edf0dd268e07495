package aggregation

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"text2phenotype.com/postag/types"
)

func fragment(text string, label string, score float64, continuation bool) types.RawPrediction {
	return types.RawPrediction{Text: text, Label: label, Score: score, IsContinuation: continuation}
}

var allOptions = []types.AggregationOption{
	types.AggregationFirst,
	types.AggregationLast,
	types.AggregationMode,
	types.AggregationAverage,
}

func TestNew(t *testing.T) {
	for _, option := range append(allOptions, "") {
		_, err := New(option, "##")
		assert.NoError(t, err, option)
	}

	_, err := New("median", "##")
	assert.Error(t, err)
}

func TestAggregatePolicies(t *testing.T) {
	predictions := []types.RawPrediction{
		fragment("The", "DET", 0.9, false),
		fragment("play", "VERB", 0.6, false),
		fragment("##ing", "NOUN", 0.7, true),
		fragment("##s", "NOUN", 0.5, true),
		fragment(".", "PUNCT", 0.99, false),
	}

	tests := []struct {
		option   types.AggregationOption
		expected []Candidate
	}{
		{
			option: types.AggregationFirst,
			expected: []Candidate{
				{Word: "The", Label: "DET", Score: 0.9},
				{Word: "playings", Label: "VERB", Score: 0.6},
				{Word: ".", Label: "PUNCT", Score: 0.99},
			},
		},
		{
			option: types.AggregationLast,
			expected: []Candidate{
				{Word: "The", Label: "DET", Score: 0.9},
				{Word: "playings", Label: "NOUN", Score: 0.5},
				{Word: ".", Label: "PUNCT", Score: 0.99},
			},
		},
		{
			option: types.AggregationMode,
			expected: []Candidate{
				{Word: "The", Label: "DET", Score: 0.9},
				{Word: "playings", Label: "NOUN", Score: 0.7},
				{Word: ".", Label: "PUNCT", Score: 0.99},
			},
		},
		{
			option: types.AggregationAverage,
			expected: []Candidate{
				{Word: "The", Label: "DET", Score: 0.9},
				{Word: "playings", Label: "NOUN", Score: 0.6},
				{Word: ".", Label: "PUNCT", Score: 0.99},
			},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.option), func(t *testing.T) {
			agg, err := New(tt.option, "##")
			require.NoError(t, err)

			got := agg.Aggregate(predictions)
			opt := cmp.Comparer(func(a, b float64) bool {
				d := a - b
				return d < 1e-9 && d > -1e-9
			})
			if diff := cmp.Diff(tt.expected, got, opt); diff != "" {
				t.Errorf("Aggregate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAggregateModeTieBreak(t *testing.T) {
	predictions := []types.RawPrediction{
		fragment("un", "ADJ", 0.4, false),
		fragment("##do", "VERB", 0.8, true),
		fragment("##ne", "VERB", 0.6, true),
		fragment("##x", "ADJ", 0.2, true),
	}

	agg, err := New(types.AggregationMode, "##")
	require.NoError(t, err)
	got := agg.Aggregate(predictions)
	require.Len(t, got, 1)
	assert.Equal(t, "ADJ", got[0].Label)
	assert.Equal(t, 0.4, got[0].Score)
	assert.Equal(t, "undonex", got[0].Word)

	agg, err = New(types.AggregationAverage, "##")
	require.NoError(t, err)
	got = agg.Aggregate(predictions)
	require.Len(t, got, 1)
	assert.Equal(t, "ADJ", got[0].Label)
	assert.InDelta(t, 0.3, got[0].Score, 1e-9)
}

func TestAggregateSingleFragmentGroups(t *testing.T) {
	predictions := []types.RawPrediction{
		fragment("cats", "NOUN", 0.8, false),
		fragment("sleep", "VERB", 0.7, false),
	}

	for _, option := range allOptions {
		agg, err := New(option, "##")
		require.NoError(t, err)
		assert.Equal(t, []Candidate{
			{Word: "cats", Label: "NOUN", Score: 0.8},
			{Word: "sleep", Label: "VERB", Score: 0.7},
		}, agg.Aggregate(predictions), option)
	}
}

func TestAggregateLeadingContinuation(t *testing.T) {
	predictions := []types.RawPrediction{
		fragment("##ing", "NOUN", 0.5, true),
		fragment("##s", "NOUN", 0.7, true),
		fragment("cat", "NOUN", 0.9, false),
	}

	agg, err := New(types.AggregationFirst, "##")
	require.NoError(t, err)
	assert.Equal(t, []Candidate{
		{Word: "ings", Label: "NOUN", Score: 0.5},
		{Word: "cat", Label: "NOUN", Score: 0.9},
	}, agg.Aggregate(predictions))
}

func TestAggregateEmptyMarker(t *testing.T) {
	predictions := []types.RawPrediction{
		fragment("play", "VERB", 0.6, false),
		fragment("##ing", "VERB", 0.7, true),
	}

	agg, err := New(types.AggregationFirst, "")
	require.NoError(t, err)
	got := agg.Aggregate(predictions)
	require.Len(t, got, 1)
	assert.Equal(t, "play##ing", got[0].Word)
}

func TestAggregateCountInvariant(t *testing.T) {
	predictions := []types.RawPrediction{
		fragment("a", "X", 0.1, false),
		fragment("##b", "Y", 0.2, true),
		fragment("c", "X", 0.3, false),
		fragment("d", "Z", 0.4, false),
		fragment("##e", "Z", 0.5, true),
		fragment("##f", "X", 0.6, true),
		fragment("g", "X", 0.7, false),
	}
	starts := 0
	for _, p := range predictions {
		if !p.IsContinuation {
			starts++
		}
	}

	for _, option := range allOptions {
		agg, err := New(option, "##")
		require.NoError(t, err)
		assert.Len(t, agg.Aggregate(predictions), starts, option)
		assert.Empty(t, agg.Aggregate(nil), option)
	}
}
