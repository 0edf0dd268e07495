package types

import "fmt"

// ConfigurationError is returned when a tagger cannot be built from the given
// configuration: unknown model, backend or aggregation option, or a device
// that is not available.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ResourceLoadError is returned when vocabulary, label configuration or model
// weights cannot be resolved or parsed.
type ResourceLoadError struct {
	Op       string
	Resource string
	Err      error
}

func (e *ResourceLoadError) Error() string {
	return fmt.Sprintf("resource load error: %s %q: %v", e.Op, e.Resource, e.Err)
}

func (e *ResourceLoadError) Unwrap() error {
	return e.Err
}

// TokenizationError fails a whole Predict call.
type TokenizationError struct {
	Index int
	Err   error
}

func (e *TokenizationError) Error() string {
	return fmt.Sprintf("tokenization error: text #%d: %v", e.Index, e.Err)
}

func (e *TokenizationError) Unwrap() error {
	return e.Err
}

// InferenceError fails a whole Predict call.
type InferenceError struct {
	Op  string
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference error: %s: %v", e.Op, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// IOError wraps file read/write failures of the command line shell.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io error: %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
