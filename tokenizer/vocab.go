package tokenizer

import (
	"fmt"

	"text2phenotype.com/postag/utils"
)

const (
	UnknownToken = "[UNK]"
	ClsToken     = "[CLS]"
	SepToken     = "[SEP]"
	PadToken     = "[PAD]"
)

// Vocab maps a WordPiece to its id.
type Vocab map[string]int

// LoadVocab reads a BERT vocab.txt: one piece per line, id is the line number.
func LoadVocab(filePath string) (Vocab, error) {
	lines, err := utils.ReadList(filePath)
	if err != nil {
		return nil, err
	}
	return NewVocab(lines)
}

func NewVocab(pieces []string) (Vocab, error) {
	vocab := make(Vocab, len(pieces))
	for id, piece := range pieces {
		if len(piece) == 0 {
			continue
		}
		if _, dup := vocab[piece]; dup {
			continue
		}
		vocab[piece] = id
	}
	for _, special := range []string{UnknownToken, ClsToken, SepToken, PadToken} {
		if _, ok := vocab[special]; !ok {
			return nil, fmt.Errorf("vocabulary has no %s token", special)
		}
	}
	return vocab, nil
}
