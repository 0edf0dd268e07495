// Package api serves the tagger over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"text2phenotype.com/postag/metrics"
	"text2phenotype.com/postag/types"
)

// MaxBodyBytes limits the size of a /tag request body.
const MaxBodyBytes = 16 << 20

// Tagger is the part of pipeline.POSModel the API needs.
type Tagger interface {
	Predict(ctx context.Context, texts []string) ([][]types.POSTag, error)
}

type Request struct {
	Tagger Tagger
}

// BatchRequest is the JSON body form of /tag.
type BatchRequest struct {
	Texts []string `json:"texts"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHandler routes /tag, /healthz and, when m is set, /metrics.
func NewHandler(tagger Tagger, m *metrics.Metrics) http.Handler {
	req := &Request{Tagger: tagger}
	mux := http.NewServeMux()
	mux.HandleFunc("/tag", instrument(m, "/tag", req.TagText))
	mux.HandleFunc("/healthz", instrument(m, "/healthz", Healthz))
	if m != nil {
		mux.Handle("/metrics", m.Handler())
	}
	return mux
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(w, "ok")
}

// TagText tags the request body. A text/plain body is one text; an
// application/json body is a BatchRequest. The response is [][]POSTag.
func (req *Request) TagText(w http.ResponseWriter, r *http.Request) {
	id := requestID(r)
	w.Header().Set(RequestIDHeader, id)
	logger := makeRequestLogger(r, id)

	if r.Method != http.MethodPost {
		logger.Err(nil).Int("status", http.StatusMethodNotAllowed).Msg("Only 'POST' method is allowed here")
		writeError(w, http.StatusMethodNotAllowed, "only POST is allowed")
		return
	}

	texts, err := readTexts(r)
	if err != nil {
		logger.Err(err).Int("status", http.StatusBadRequest).Msg("Could not read request body")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	logger.Info().Int("texts", len(texts)).Msg("Tagging request from API")
	tags, err := req.Tagger.Predict(r.Context(), texts)
	if err != nil {
		status := statusOf(err)
		logger.Err(err).Int("status", status).Msg("Tagging failed")
		writeError(w, status, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(tags); err != nil {
		logger.Err(err).Msg("Could not write response")
		return
	}
	logger.Info().Int("status", http.StatusOK).Msg("Finished processing request")
}

func readTexts(r *http.Request) ([]string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > MaxBodyBytes {
		return nil, errors.New("request body is too large")
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		return []string{string(body)}, nil
	}
	var batch BatchRequest
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, err
	}
	if batch.Texts == nil {
		return nil, errors.New("texts is required")
	}
	return batch.Texts, nil
}

func statusOf(err error) int {
	var tokenizationErr *types.TokenizationError
	if errors.As(err, &tokenizationErr) {
		return http.StatusBadRequest
	}
	if errors.Is(err, context.Canceled) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message})
}
