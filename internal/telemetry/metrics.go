// Package telemetry holds the Prometheus metrics and OpenTelemetry tracing
// set-up of the assistant server.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "assistant"

// Request outcomes used as the "outcome" label.
const (
	OutcomeOK          = "ok"
	OutcomeFallback    = "fallback"
	OutcomeInvalid     = "invalid"
	OutcomeConfig      = "config_error"
	OutcomeTimeout     = "timeout"
	OutcomeUpstream    = "upstream_error"
	OutcomeStreamError = "stream_error"
)

// Metrics is the set of assistant collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// RequestsTotal counts finished requests.
	// Labels: mode (buffered, stream), outcome.
	RequestsTotal *prometheus.CounterVec

	// FallbackTotal counts answers replaced by the fallback composer.
	// Labels: mode.
	FallbackTotal *prometheus.CounterVec

	// StageDuration measures retrieval, generation and retry calls.
	// Labels: stage.
	StageDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics registers the collectors, plus Go runtime and process
// collectors, on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "requests_total",
				Help:      "Assistant requests by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		FallbackTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "fallback_total",
				Help:      "Answers built from excerpts because generation returned no text",
			},
			[]string{"mode"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of upstream calls per pipeline stage",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
			},
			[]string{"stage"},
		),
		registry: reg,
	}
	reg.MustRegister(
		m.RequestsTotal,
		m.FallbackTotal,
		m.StageDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Request records one finished request.
func (m *Metrics) Request(mode, outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(mode, outcome).Inc()
}

// Fallback records one fallback answer.
func (m *Metrics) Fallback(mode string) {
	if m == nil {
		return
	}
	m.FallbackTotal.WithLabelValues(mode).Inc()
}

// Stage records how long a stage took.
func (m *Metrics) Stage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
