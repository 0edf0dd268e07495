// Package kserve talks to a model server implementing the KServe v2
// inference protocol over HTTP (Triton, TorchServe, KServe runtimes).
package kserve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultTimeout = 10 * time.Second

// StatusError is a non-200 answer of the server.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Status     string
	Message    string
}

func (e *StatusError) Error() string {
	if len(e.Message) > 0 {
		return fmt.Sprintf("%s %s: %s: %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Status)
}

// IsUnsupported reports whether the server does not implement the endpoint.
func IsUnsupported(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.StatusCode == http.StatusNotFound || statusErr.StatusCode == http.StatusNotImplemented
}

type Client struct {
	baseURL      string
	modelName    string
	modelVersion string
	httpClient   *http.Client
	timeout      time.Duration
}

func NewClient(endpoint string, modelName string, modelVersion string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("endpoint %q must be an http(s) url", endpoint)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL:      strings.TrimRight(endpoint, "/"),
		modelName:    modelName,
		modelVersion: modelVersion,
		httpClient:   &http.Client{},
		timeout:      timeout,
	}, nil
}

func (c *Client) ModelName() string {
	return c.modelName
}

func (c *Client) modelPath() string {
	p := "/v2/models/" + url.PathEscape(c.modelName)
	if len(c.modelVersion) > 0 {
		p += "/versions/" + url.PathEscape(c.modelVersion)
	}
	return p
}

func (c *Client) ServerLive(ctx context.Context) (bool, error) {
	return c.check(ctx, "/v2/health/live")
}

func (c *Client) ServerReady(ctx context.Context) (bool, error) {
	return c.check(ctx, "/v2/health/ready")
}

func (c *Client) ModelReady(ctx context.Context) (bool, error) {
	return c.check(ctx, c.modelPath()+"/ready")
}

func (c *Client) ModelMetadata(ctx context.Context) (*ModelMetadata, error) {
	var res ModelMetadata
	if err := c.do(ctx, http.MethodGet, c.modelPath(), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ModelConfig(ctx context.Context) (*ModelConfig, error) {
	var res ModelConfig
	if err := c.do(ctx, http.MethodGet, c.modelPath()+"/config", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ModelInfer(ctx context.Context, req *InferRequest) (*InferResponse, error) {
	var res InferResponse
	if err := c.do(ctx, http.MethodPost, c.modelPath()+"/infer", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) check(ctx context.Context, path string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK, nil
}

func (c *Client) do(ctx context.Context, method string, path string, body interface{}, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Status: resp.Status}
		var errResp errorResponse
		if json.Unmarshal(buf, &errResp) == nil {
			statusErr.Message = errResp.Error
		}
		return statusErr
	}

	return json.Unmarshal(buf, out)
}
