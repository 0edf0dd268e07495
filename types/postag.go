package types

// POSTag is a single word of the input text with its part-of-speech label.
type POSTag struct {
	Word  string `json:"word"`
	Label string `json:"label"`
}

// RawPrediction is the backend's decision for one sub-word token.
// Text is the span of the original text covered by the token.
type RawPrediction struct {
	Text           string
	Label          string
	Score          float64
	IsContinuation bool
}
