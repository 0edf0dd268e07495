package types

import (
	"fmt"
	"strings"
)

// AggregationOption names the strategy used to merge sub-word predictions
// into one label per word.
type AggregationOption string

const (
	AggregationFirst   AggregationOption = "first"
	AggregationLast    AggregationOption = "last"
	AggregationMode    AggregationOption = "mode"
	AggregationAverage AggregationOption = "average"
)

func ParseAggregationOption(s string) (AggregationOption, error) {
	switch o := AggregationOption(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return AggregationFirst, nil
	case AggregationFirst, AggregationLast, AggregationMode, AggregationAverage:
		return o, nil
	default:
		return "", fmt.Errorf("unknown aggregation option %q", s)
	}
}
