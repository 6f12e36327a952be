package orchestrator

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for guide update runs.
type Metrics struct {
	RunsTotal     *prometheus.CounterVec
	ActiveRuns    prometheus.Gauge
	GuidesTotal   *prometheus.CounterVec
	GuideDuration *prometheus.HistogramVec
	LayerDuration prometheus.Histogram
	DiffFailures  prometheus.Counter
}

// NewMetrics registers the metrics once per process and returns them.
//
// Metrics:
//   - guidekeeper_runs_total{status}
//   - guidekeeper_active_runs
//   - guidekeeper_guide_updates_total{status}
//   - guidekeeper_guide_update_duration_seconds{status}
//   - guidekeeper_layer_duration_seconds
//   - guidekeeper_layer_diff_failures_total
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			RunsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "guidekeeper_runs_total",
					Help: "Total number of finished update runs",
				},
				[]string{"status"},
			),
			ActiveRuns: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "guidekeeper_active_runs",
					Help: "Number of update runs in progress",
				},
			),
			GuidesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "guidekeeper_guide_updates_total",
					Help: "Total number of guide outcomes recorded",
				},
				[]string{"status"},
			),
			GuideDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "guidekeeper_guide_update_duration_seconds",
					Help:    "Duration of a single guide update",
					Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4m
				},
				[]string{"status"},
			),
			LayerDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "guidekeeper_layer_duration_seconds",
					Help:    "Duration of a layer from dispatch to join",
					Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
				},
			),
			DiffFailures: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "guidekeeper_layer_diff_failures_total",
					Help: "Layers treated as unchanged because the diff could not be fetched",
				},
			),
		}
	})
	return globalMetrics
}
