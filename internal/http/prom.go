package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fyrsmithlabs/agentkb/internal/agent"
)

// RunMetrics counts agent runs served over HTTP in a registry owned by the
// server, exposed at /metrics.
//
// Metrics:
//   - agentkb_agent_runs_total{status} - runs by outcome (ok, invalid, error)
//   - agentkb_agent_run_duration_seconds - run latency including the model
type RunMetrics struct {
	registry *prometheus.Registry
	runs     *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewRunMetrics creates the metrics with Go runtime and process collectors.
func NewRunMetrics() *RunMetrics {
	reg := prometheus.NewRegistry()
	m := &RunMetrics{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentkb_agent_runs_total",
			Help: "Agent runs served over HTTP by outcome",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentkb_agent_run_duration_seconds",
			Help:    "Agent run latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
	reg.MustRegister(
		m.runs,
		m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe records one run.
func (m *RunMetrics) Observe(d time.Duration, err error) {
	status := "ok"
	switch {
	case errors.Is(err, agent.ErrEmptyInput):
		status = "invalid"
	case err != nil:
		status = "error"
	}
	m.runs.WithLabelValues(status).Inc()
	if err == nil {
		m.duration.Observe(d.Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *RunMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
