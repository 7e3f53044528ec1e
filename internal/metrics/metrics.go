// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tomato_executions_total",
			Help: "Total number of code executions by language and outcome",
		},
		[]string{"language", "outcome"},
	)

	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tomato_execution_duration_seconds",
			Help:    "Wall-clock time from admission to outcome",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
		},
		[]string{"language"},
	)

	SandboxesRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tomato_sandboxes_running",
			Help: "Sandbox slots currently held",
		},
	)

	AdmissionRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tomato_admission_rejections_total",
			Help: "Executions rejected because every sandbox slot was busy",
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tomato_rate_limit_hits_total",
			Help: "Requests rejected by the per-client rate limiter",
		},
	)

	SlideClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tomato_slide_clients",
			Help: "Open slide-sync WebSocket connections",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
