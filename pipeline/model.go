// Package pipeline tags the words of raw texts with part-of-speech labels:
// WordPiece tokenization, scoring by an inference backend, aggregation of
// sub-word decisions and a punctuation correction.
package pipeline

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"text2phenotype.com/postag/aggregation"
	"text2phenotype.com/postag/inference"
	"text2phenotype.com/postag/logger"
	"text2phenotype.com/postag/metrics"
	"text2phenotype.com/postag/resources"
	"text2phenotype.com/postag/tokenizer"
	"text2phenotype.com/postag/types"
)

// POSModel is safe for concurrent use. It keeps no state between calls.
type POSModel struct {
	cfg        types.Configuration
	device     types.Device
	tokenizer  *tokenizer.WordPiece
	backend    inference.Backend
	aggregator aggregation.Aggregator
	labels     []string
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

type Option func(m *POSModel)

func WithMetrics(m *metrics.Metrics) Option {
	return func(model *POSModel) {
		model.metrics = m
	}
}

// New validates cfg, resolves its resources and connects the backend it names.
func New(ctx context.Context, cfg types.Configuration, resolver resources.Resolver, opts ...Option) (*POSModel, error) {
	modelLogger := logger.NewLogger("POS model").With().Str("model", cfg.ModelIdentity).Logger()
	errLogger := modelLogger.With().Caller().Logger()

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		errLogger.Err(err).Interface("configuration", cfg).Msg("Invalid tagger configuration")
		return nil, err
	}

	vocabPath, err := resolver.Resolve(ctx, cfg.Resources.Vocab)
	if err != nil {
		errLogger.Err(err).Str("resource", cfg.Resources.Vocab.String()).Msg("Failed to resolve vocabulary")
		return nil, &types.ResourceLoadError{Op: "resolve vocabulary", Resource: cfg.Resources.Vocab.String(), Err: err}
	}
	vocab, err := tokenizer.LoadVocab(vocabPath)
	if err != nil {
		errLogger.Err(err).Str("path", vocabPath).Msg("Failed to load vocabulary")
		return nil, &types.ResourceLoadError{Op: "load vocabulary", Resource: cfg.Resources.Vocab.String(), Err: err}
	}

	backend, err := newBackend(ctx, cfg, resolver)
	if err != nil {
		errLogger.Err(err).Str("backend", cfg.Backend).Msg("Failed to create inference backend")
		return nil, err
	}

	m, err := Assemble(ctx, cfg, vocab, backend, opts...)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return m, nil
}

// Assemble builds a model around an existing backend. The backend is owned by
// the returned model.
func Assemble(ctx context.Context, cfg types.Configuration, vocab tokenizer.Vocab, backend inference.Backend, opts ...Option) (*POSModel, error) {
	cfg = cfg.WithDefaults()
	modelLogger := logger.NewLogger("POS model").With().Str("model", cfg.ModelIdentity).Logger()

	wp, err := tokenizer.New(vocab, tokenizer.Options{
		LowerCase:    cfg.LowerCase,
		StripAccents: cfg.StripAccents,
	})
	if err != nil {
		return nil, &types.ResourceLoadError{Op: "create tokenizer", Resource: cfg.Resources.Vocab.String(), Err: err}
	}

	labels := backend.Labels()
	if len(labels) == 0 {
		return nil, &types.ResourceLoadError{Op: "read labels", Resource: cfg.ModelIdentity, Err: errors.New("backend has no labels")}
	}

	available, err := backend.Devices(ctx)
	if err != nil {
		return nil, &types.ResourceLoadError{Op: "list devices", Resource: cfg.ModelIdentity, Err: err}
	}
	device, err := types.SelectDevice(cfg.Device, available)
	if err != nil {
		return nil, &types.ConfigurationError{Op: "select device", Err: err}
	}

	aggregator, err := aggregation.New(cfg.Aggregation, "")
	if err != nil {
		return nil, &types.ConfigurationError{Op: "create aggregator", Err: err}
	}

	m := &POSModel{
		cfg:        cfg,
		device:     device,
		tokenizer:  wp,
		backend:    backend,
		aggregator: aggregator,
		labels:     labels,
		logger:     modelLogger.With().Str("device", string(device)).Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.logger.Info().
		Str("backend", cfg.Backend).
		Str("aggregation", string(cfg.Aggregation)).
		Int("labels", len(labels)).
		Uint64("fingerprint", cfg.Fingerprint()).
		Msg("POS model is ready")
	return m, nil
}

func (m *POSModel) Configuration() types.Configuration {
	return m.cfg
}

func (m *POSModel) Device() types.Device {
	return m.device
}

func (m *POSModel) Labels() []string {
	res := make([]string, len(m.labels))
	copy(res, m.labels)
	return res
}

func (m *POSModel) Close() error {
	return m.backend.Close()
}
