package pos

import (
	"math"

	queue "github.com/emirpasic/gods/queues/priorityqueue"
)

type Sequence struct {
	Score    float64
	Outcomes []string
	Probs    []float64
}

func (seq *Sequence) ExpandFrom(src Sequence, out string, score float64) {
	seq.Outcomes = make([]string, len(src.Outcomes)+1)
	copy(seq.Outcomes, src.Outcomes)
	seq.Outcomes[len(seq.Outcomes)-1] = out

	seq.Probs = make([]float64, len(src.Probs)+1)
	copy(seq.Probs, src.Probs)
	seq.Probs[len(seq.Probs)-1] = score

	seq.Score = src.Score + math.Log(score)
}

// newSequenceQueue dequeues the best scoring sequence first.
func newSequenceQueue() *queue.Queue {
	return queue.NewWith(func(a, b interface{}) int {
		sa, sb := a.(Sequence).Score, b.(Sequence).Score
		switch {
		case sa > sb:
			return -1
		case sa < sb:
			return 1
		default:
			return 0
		}
	})
}
