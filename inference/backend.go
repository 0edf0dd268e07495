// Package inference defines the contract between the tagging pipeline and the
// engines that score sub-word tokens.
package inference

import (
	"context"

	"text2phenotype.com/postag/types"
)

// Sequence is one encoded window: [CLS] pieces [SEP] followed by padding.
// IDs, Mask and Pieces have the same length.
type Sequence struct {
	IDs    []int
	Mask   []int
	Pieces []string
}

// Backend scores every position of every sequence in a batch.
//
// Infer returns one row per position of each input sequence. Each row is a
// probability distribution over Labels(). Rows of [CLS], [SEP] and padding
// positions may be nil and are never read.
type Backend interface {
	Labels() []string
	Devices(ctx context.Context) ([]types.Device, error)
	Infer(ctx context.Context, batch []Sequence) ([][][]float64, error)
	Close() error
}
