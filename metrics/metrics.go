// Package metrics defines the Prometheus collectors of the tagger and exposes
// an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	PredictTotal        *prometheus.CounterVec
	PredictDuration     *prometheus.HistogramVec
	TextsTagged         prometheus.Counter
	WordsTagged         prometheus.Counter
	InferenceBatches    prometheus.Counter
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	TasksProcessed      *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. A nil reg means the
// default registry.
func New(reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	m := &Metrics{
		PredictTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postag_predict_total",
				Help: "Total Predict calls by model and result (ok, tokenization_error, inference_error).",
			},
			[]string{"model", "result"},
		),
		PredictDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "postag_predict_duration_seconds",
				Help:    "Predict latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"model"},
		),
		TextsTagged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "postag_texts_tagged_total",
				Help: "Total number of texts tagged.",
			},
		),
		WordsTagged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "postag_words_tagged_total",
				Help: "Total number of words tagged.",
			},
		),
		InferenceBatches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "postag_inference_batches_total",
				Help: "Total number of batches sent to the inference backend.",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		TasksProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postag_tasks_processed_total",
				Help: "Total queue tasks processed by status.",
			},
			[]string{"status"},
		),
		gatherer: gatherer,
	}

	reg.MustRegister(
		m.PredictTotal,
		m.PredictDuration,
		m.TextsTagged,
		m.WordsTagged,
		m.InferenceBatches,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.TasksProcessed,
	)

	return m
}

// ObservePredict records one Predict call. result is "ok" or an error kind.
func (m *Metrics) ObservePredict(model string, result string, started time.Time, texts int, words int) {
	if m == nil {
		return
	}
	m.PredictTotal.WithLabelValues(model, result).Inc()
	m.PredictDuration.WithLabelValues(model).Observe(time.Since(started).Seconds())
	if result == "ok" {
		m.TextsTagged.Add(float64(texts))
		m.WordsTagged.Add(float64(words))
	}
}

func (m *Metrics) ObserveBatch() {
	if m == nil {
		return
	}
	m.InferenceBatches.Inc()
}

func (m *Metrics) ObserveTask(status string) {
	if m == nil {
		return
	}
	m.TasksProcessed.WithLabelValues(status).Inc()
}

// Handler returns the Prometheus scrape HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
