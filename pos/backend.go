package pos

import (
	"context"

	"text2phenotype.com/postag/inference"
	"text2phenotype.com/postag/types"
)

// Backend runs the maxent model in process. It only executes on the cpu.
type Backend struct {
	model     Model
	search    *BeamSearch
	contexts  ContextGenerator
	validator SequenceValidator
}

var _ inference.Backend = (*Backend)(nil)

func NewBackend(model Model, beamSize int) *Backend {
	dict := make(map[string]bool, len(model.TagDictionary))
	for piece := range model.TagDictionary {
		dict[piece] = true
	}

	return &Backend{
		model:     model,
		search:    NewBeamSearch(model, beamSize),
		contexts:  NewContextGenerator(dict),
		validator: NewSequenceValidator(model.TagDictionary),
	}
}

// LoadBackend reads a JSON maxent model from disk.
func LoadBackend(modelFilePath string, beamSize int) (*Backend, error) {
	model, err := LoadModelFromFile(modelFilePath)
	if err != nil {
		return nil, err
	}
	return NewBackend(model, beamSize), nil
}

func (b *Backend) Labels() []string {
	return b.model.Outcomes
}

func (b *Backend) Devices(context.Context) ([]types.Device, error) {
	return []types.Device{types.DeviceCPU}, nil
}

// Infer decodes the best label history with beam search and reports, for each
// content position, the model distribution given that history.
func (b *Backend) Infer(ctx context.Context, batch []inference.Sequence) ([][][]float64, error) {
	res := make([][][]float64, len(batch))
	for si, seq := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows := make([][]float64, len(seq.IDs))
		pieces := contentPieces(seq)
		if len(pieces) > 0 {
			best, isOk := b.search.Search(pieces, b.contexts, b.validator)
			if isOk {
				for i := range pieces {
					dist := b.model.Eval(b.contexts.GetContext(i, pieces, best.Outcomes))
					rows[i+1] = b.constrain(i, pieces, dist)
				}
			}
		}
		res[si] = rows
	}
	return res, nil
}

// constrain zeroes labels the validator rejects for the piece. A distribution
// with no valid label is returned unchanged.
func (b *Backend) constrain(i int, pieces []string, dist []float64) []float64 {
	constrained := make([]float64, len(dist))
	sum := 0.0
	for oid, p := range dist {
		if b.validator.ValidSequence(i, pieces, b.model.Outcomes[oid]) {
			constrained[oid] = p
			sum += p
		}
	}
	if sum == 0 {
		return dist
	}
	for oid := range constrained {
		constrained[oid] /= sum
	}
	return constrained
}

func (b *Backend) Close() error {
	return nil
}

// contentPieces drops the [CLS] frame, the [SEP] frame and the padding.
func contentPieces(seq inference.Sequence) []string {
	n := 0
	for _, m := range seq.Mask {
		if m != 0 {
			n++
		}
	}
	if n <= 2 {
		return nil
	}
	return seq.Pieces[1 : n-1]
}
