// Package metrics exposes Prometheus instruments for the query pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hermes_pipeline_runs_total",
		Help: "Completed pipeline runs by resolved intent.",
	}, []string{"intent"})

	PipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hermes_pipeline_duration_seconds",
		Help:    "Wall time of one pipeline run.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	CapabilityCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hermes_capability_calls_total",
		Help: "External capability calls by capability and outcome.",
	}, []string{"capability", "outcome"})

	SandboxFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hermes_sandbox_fallbacks_total",
		Help: "Metrics expressions discarded in favour of default metrics.",
	})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hermes_ws_connections",
		Help: "Open chat WebSocket connections.",
	})

	QueueRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hermes_queue_rejections_total",
		Help: "Pipeline runs rejected because the executor queue was full.",
	})

	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hermes_jobs_processed_total",
		Help: "Executor jobs finished by status.",
	}, []string{"status"})
)

// Capability outcome labels.
const (
	OutcomeOK          = "ok"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
