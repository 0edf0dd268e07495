package pipeline

import (
	"context"
	"fmt"

	"text2phenotype.com/postag/inference"
	"text2phenotype.com/postag/kserve"
	"text2phenotype.com/postag/pos"
	"text2phenotype.com/postag/resources"
	"text2phenotype.com/postag/types"
)

func newBackend(ctx context.Context, cfg types.Configuration, resolver resources.Resolver) (inference.Backend, error) {
	switch cfg.Backend {
	case types.BackendMaxent:
		modelPath, err := resolver.Resolve(ctx, cfg.Resources.Model)
		if err != nil {
			return nil, &types.ResourceLoadError{Op: "resolve model", Resource: cfg.Resources.Model.String(), Err: err}
		}
		backend, err := pos.LoadBackend(modelPath, cfg.BeamSize)
		if err != nil {
			return nil, &types.ResourceLoadError{Op: "load model", Resource: cfg.Resources.Model.String(), Err: err}
		}
		return backend, nil

	case types.BackendKServe:
		configPath, err := resolver.Resolve(ctx, cfg.Resources.Config)
		if err != nil {
			return nil, &types.ResourceLoadError{Op: "resolve label config", Resource: cfg.Resources.Config.String(), Err: err}
		}
		labels, err := kserve.LoadLabels(configPath)
		if err != nil {
			return nil, &types.ResourceLoadError{Op: "load label config", Resource: cfg.Resources.Config.String(), Err: err}
		}
		client, err := kserve.NewClient(cfg.Endpoint, cfg.ModelIdentity, "", cfg.Timeout)
		if err != nil {
			return nil, &types.ConfigurationError{Op: "create kserve client", Err: err}
		}
		backend, err := kserve.NewBackend(ctx, client, labels)
		if err != nil {
			return nil, &types.ResourceLoadError{Op: "connect model server", Resource: cfg.Endpoint, Err: err}
		}
		return backend, nil

	default:
		return nil, &types.ConfigurationError{Op: "create backend", Err: fmt.Errorf("unknown backend %q", cfg.Backend)}
	}
}
