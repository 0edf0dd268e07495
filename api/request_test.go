package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"text2phenotype.com/postag/metrics"
	"text2phenotype.com/postag/types"
)

// wordTagger labels every whitespace separated word as NOUN.
type wordTagger struct {
	err   error
	texts []string
}

func (f *wordTagger) Predict(ctx context.Context, texts []string) ([][]types.POSTag, error) {
	f.texts = texts
	if f.err != nil {
		return nil, f.err
	}
	res := make([][]types.POSTag, len(texts))
	for i, text := range texts {
		res[i] = []types.POSTag{}
		for _, word := range strings.Fields(text) {
			res[i] = append(res[i], types.POSTag{Word: word, Label: "NOUN"})
		}
	}
	return res, nil
}

func post(t *testing.T, handler http.Handler, contentType string, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/tag", strings.NewReader(body))
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

func TestTagPlainText(t *testing.T) {
	tagger := &wordTagger{}
	w := post(t, NewHandler(tagger, nil), "text/plain; charset=utf-8", "cat sat")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var tags [][]types.POSTag
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tags))
	assert.Equal(t, [][]types.POSTag{{{Word: "cat", Label: "NOUN"}, {Word: "sat", Label: "NOUN"}}}, tags)
	assert.Equal(t, []string{"cat sat"}, tagger.texts)
}

func TestTagBatch(t *testing.T) {
	tagger := &wordTagger{}
	w := post(t, NewHandler(tagger, nil), "application/json", `{"texts":["a b",""]}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[[{"word":"a","label":"NOUN"},{"word":"b","label":"NOUN"}],[]]`, w.Body.String())
	assert.Equal(t, []string{"a b", ""}, tagger.texts)
}

func TestRequestID(t *testing.T) {
	handler := NewHandler(&wordTagger{}, nil)

	w := post(t, handler, "text/plain", "cat")
	_, err := uuid.Parse(w.Header().Get(RequestIDHeader))
	assert.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/tag", strings.NewReader("cat"))
	r.Header.Set(RequestIDHeader, "req-42")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
}

func TestTagErrors(t *testing.T) {
	tests := []struct {
		name        string
		tagger      *wordTagger
		method      string
		contentType string
		body        string
		status      int
	}{
		{
			name:   "method not allowed",
			tagger: &wordTagger{},
			method: http.MethodGet,
			status: http.StatusMethodNotAllowed,
		},
		{
			name:        "malformed batch",
			tagger:      &wordTagger{},
			method:      http.MethodPost,
			contentType: "application/json",
			body:        `{"texts":`,
			status:      http.StatusBadRequest,
		},
		{
			name:        "batch without texts",
			tagger:      &wordTagger{},
			method:      http.MethodPost,
			contentType: "application/json",
			body:        `{}`,
			status:      http.StatusBadRequest,
		},
		{
			name:   "tokenization error",
			tagger: &wordTagger{err: &types.TokenizationError{Index: 0, Err: errors.New("bad text")}},
			method: http.MethodPost,
			body:   "x",
			status: http.StatusBadRequest,
		},
		{
			name:   "inference error",
			tagger: &wordTagger{err: &types.InferenceError{Op: "infer", Err: errors.New("down")}},
			method: http.MethodPost,
			body:   "x",
			status: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, "/tag", strings.NewReader(tt.body))
			if tt.contentType != "" {
				r.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			NewHandler(tt.tagger, nil).ServeHTTP(w, r)

			assert.Equal(t, tt.status, w.Code)
			var resp errorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	handler := NewHandler(&wordTagger{}, m)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	post(t, handler, "", "cat")
	post(t, handler, "application/json", "{")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodPost, "/tag", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodPost, "/tag", "400")))

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `http_requests_total{method="POST",path="/tag",status="200"} 1`)
}
