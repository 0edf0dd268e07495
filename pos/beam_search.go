package pos

import (
	"sort"

	queue "github.com/emirpasic/gods/queues/priorityqueue"
)

const minSequenceScore = -100000

type BeamSearch struct {
	model Model
	size  int
}

func NewBeamSearch(model Model, size int) *BeamSearch {
	if size < 1 {
		size = 1
	}
	return &BeamSearch{model: model, size: size}
}

// Search returns the best scoring label sequence for pieces.
func (bs *BeamSearch) Search(pieces []string, contextGen ContextGenerator, validator SequenceValidator) (Sequence, bool) {
	prev := newSequenceQueue()
	next := newSequenceQueue()
	prev.Enqueue(Sequence{})

	for i := 0; i < len(pieces); i++ {
		sz := prev.Size()
		if bs.size < sz {
			sz = bs.size
		}

		for sc := 0; !prev.Empty() && sc < sz; sc++ {
			v, _ := prev.Dequeue()
			top := v.(Sequence)
			scores := bs.model.Eval(contextGen.GetContext(i, pieces, top.Outcomes))

			sorted := make([]float64, len(scores))
			copy(sorted, scores)
			sort.Float64s(sorted)

			idx := len(scores) - bs.size
			if idx < 0 {
				idx = 0
			}
			threshold := sorted[idx]

			for p := 0; p < len(scores); p++ {
				if scores[p] < threshold {
					continue
				}
				bs.expand(next, top, i, pieces, p, scores[p], validator)
			}

			// nothing in the beam passed validation; fall back to all outcomes
			if next.Empty() {
				for p := 0; p < len(scores); p++ {
					bs.expand(next, top, i, pieces, p, scores[p], validator)
				}
			}
		}

		prev.Clear()
		prev, next = next, prev
	}

	best, ok := prev.Dequeue()
	if !ok {
		return Sequence{}, false
	}
	return best.(Sequence), true
}

func (bs *BeamSearch) expand(next *queue.Queue, top Sequence, i int, pieces []string, p int, score float64, validator SequenceValidator) {
	out := bs.model.Outcomes[p]
	if !validator.ValidSequence(i, pieces, out) {
		return
	}

	var ns Sequence
	ns.ExpandFrom(top, out, score)
	if ns.Score > minSequenceScore {
		next.Enqueue(ns)
	}
}
