package pipeline

import (
	"context"
	"encoding/json"

	"text2phenotype.com/postag/resources"
	"text2phenotype.com/postag/types"
)

// TagText tags a single text and returns the [][]POSTag result as JSON.
func (m *POSModel) TagText(ctx context.Context, text string) (string, error) {
	tags, err := m.Predict(ctx, []string{text})
	if err != nil {
		return "", err
	}
	buf, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// TagText builds a model from cfg, tags text and releases the model.
func TagText(ctx context.Context, cfg types.Configuration, resolver resources.Resolver, text string) (string, error) {
	m, err := New(ctx, cfg, resolver)
	if err != nil {
		return "", err
	}
	defer m.Close()
	return m.TagText(ctx, text)
}
