package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"text2phenotype.com/postag/logger"
	"text2phenotype.com/postag/metrics"
)

var defaultLogger = logger.NewLogger("API")

type endpointLoggerFields struct {
	Method    string `json:"method"`
	Url       string `json:"url"`
	RequestID string `json:"request_id"`
}

const (
	RequestInfoFieldsKey = "request_info"
	RequestIDHeader      = "X-Request-ID"
)

// requestID returns the caller supplied id or a fresh one.
func requestID(request *http.Request) string {
	if id := request.Header.Get(RequestIDHeader); id != "" {
		return id
	}
	return uuid.NewString()
}

func makeRequestLogger(request *http.Request, id string) zerolog.Logger {
	fields := endpointLoggerFields{
		Method:    request.Method,
		Url:       request.URL.String(),
		RequestID: id,
	}
	return defaultLogger.
		With().Interface(RequestInfoFieldsKey, fields).Logger()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument counts requests of the route by method and status.
func instrument(m *metrics.Metrics, route string, next http.HandlerFunc) http.HandlerFunc {
	if m == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(started).Seconds())
	}
}
