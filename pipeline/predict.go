package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"text2phenotype.com/postag/inference"
	"text2phenotype.com/postag/tokenizer"
	"text2phenotype.com/postag/types"
)

// window is a run of sub-word tokens of one text that fits in a sequence.
type window struct {
	text   int
	tokens []tokenizer.Token
}

// Predict returns, for each text, one tag per word in input order. An empty
// text yields an empty slice. Any tokenization or inference failure fails the
// whole call.
func (m *POSModel) Predict(ctx context.Context, texts []string) ([][]types.POSTag, error) {
	started := time.Now()

	res, words, err := m.predict(ctx, texts)
	if err != nil {
		m.logger.Err(err).Int("texts", len(texts)).Msg("Prediction failed")
		m.metrics.ObservePredict(m.cfg.ModelIdentity, errorKind(err), started, len(texts), 0)
		return nil, err
	}

	m.logger.Debug().
		Int("texts", len(texts)).
		Int("words", words).
		Dur("duration", time.Since(started)).
		Msg("Tagged texts")
	m.metrics.ObservePredict(m.cfg.ModelIdentity, "ok", started, len(texts), words)
	return res, nil
}

func (m *POSModel) predict(ctx context.Context, texts []string) ([][]types.POSTag, int, error) {
	tokens, err := m.tokenize(ctx, texts)
	if err != nil {
		return nil, 0, err
	}

	var windows []window
	for i, t := range tokens {
		for _, w := range tokenizer.Windows(t, m.cfg.MaxSequenceLength-2) {
			windows = append(windows, window{text: i, tokens: w})
		}
	}

	predictions := make([][]types.RawPrediction, len(texts))
	for start := 0; start < len(windows); start += m.cfg.BatchSize {
		end := start + m.cfg.BatchSize
		if end > len(windows) {
			end = len(windows)
		}
		if err := m.inferBatch(ctx, texts, windows[start:end], predictions); err != nil {
			return nil, 0, err
		}
	}

	res := make([][]types.POSTag, len(texts))
	words := 0
	for i := range texts {
		candidates := m.aggregator.Aggregate(predictions[i])
		tags := make([]types.POSTag, len(candidates))
		for j, c := range candidates {
			c = ApplyPunctuationHeuristic(c)
			tags[j] = types.POSTag{Word: c.Word, Label: c.Label}
		}
		res[i] = tags
		words += len(tags)
	}
	return res, words, nil
}

func (m *POSModel) tokenize(ctx context.Context, texts []string) ([][]tokenizer.Token, error) {
	tokens := make([][]tokenizer.Token, len(texts))
	g, _ := errgroup.WithContext(ctx)
	for i := range texts {
		i := i
		g.Go(func() error {
			t, err := m.tokenizer.Tokenize(texts[i])
			if err != nil {
				return &types.TokenizationError{Index: i, Err: err}
			}
			tokens[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tokens, nil
}

// inferBatch scores a batch of windows and appends one prediction per token
// to the owning text.
func (m *POSModel) inferBatch(ctx context.Context, texts []string, batch []window, predictions [][]types.RawPrediction) error {
	length := 0
	for _, w := range batch {
		if len(w.tokens)+2 > length {
			length = len(w.tokens) + 2
		}
	}

	sequences := make([]inference.Sequence, len(batch))
	for i, w := range batch {
		ids, mask := m.tokenizer.Encode(w.tokens, length)
		pieces := make([]string, length)
		pieces[0] = tokenizer.ClsToken
		for j, t := range w.tokens {
			pieces[j+1] = t.Piece
		}
		pieces[len(w.tokens)+1] = tokenizer.SepToken
		for j := len(w.tokens) + 2; j < length; j++ {
			pieces[j] = tokenizer.PadToken
		}
		sequences[i] = inference.Sequence{IDs: ids, Mask: mask, Pieces: pieces}
	}

	scores, err := m.backend.Infer(ctx, sequences)
	m.metrics.ObserveBatch()
	if err != nil {
		return &types.InferenceError{Op: "infer", Err: err}
	}
	if len(scores) != len(batch) {
		return &types.InferenceError{Op: "infer", Err: fmt.Errorf("backend returned %d sequences for %d", len(scores), len(batch))}
	}

	for i, w := range batch {
		rows := scores[i]
		for j, t := range w.tokens {
			// position 0 holds [CLS]
			p := j + 1
			if p >= len(rows) || len(rows[p]) != len(m.labels) {
				return &types.InferenceError{Op: "decode", Err: fmt.Errorf("no distribution for token %d of text #%d", j, w.text)}
			}
			idx, score := inference.Argmax(rows[p])
			predictions[w.text] = append(predictions[w.text], types.RawPrediction{
				Text:           t.Text(texts[w.text]),
				Label:          m.labels[idx],
				Score:          score,
				IsContinuation: t.IsContinuation,
			})
		}
	}
	return nil
}

func errorKind(err error) string {
	var tokenizationErr *types.TokenizationError
	var inferenceErr *types.InferenceError
	switch {
	case errors.As(err, &tokenizationErr):
		return "tokenization_error"
	case errors.As(err, &inferenceErr):
		return "inference_error"
	default:
		return "error"
	}
}
