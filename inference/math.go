package inference

import "math"

// Argmax returns the index and value of the highest score. Ties resolve to
// the lowest index; an empty distribution yields -1.
func Argmax(dist []float64) (int, float64) {
	best, score := -1, math.Inf(-1)
	for i, p := range dist {
		if best < 0 || p > score {
			best, score = i, p
		}
	}
	if best < 0 {
		return -1, 0
	}
	return best, score
}

// Softmax turns logits into probabilities in a numerically stable way.
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	max := logits[0]
	for _, l := range logits[1:] {
		if l > max {
			max = l
		}
	}

	probs := make([]float64, len(logits))
	sum := 0.0
	for i, l := range logits {
		probs[i] = math.Exp(l - max)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}
