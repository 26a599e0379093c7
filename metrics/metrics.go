package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// ReportsSubmittedTotal counts submission attempts by outcome.
	ReportsSubmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "safetypoll",
		Subsystem: "ingest",
		Name:      "reports_submitted_total",
		Help:      "Total number of safety poll submissions, labeled by result.",
	}, []string{"result"})

	// RateLimitedTotal counts submissions rejected by the rate limiter.
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "safetypoll",
		Subsystem: "ingest",
		Name:      "rate_limited_total",
		Help:      "Total number of submissions rejected by the per-submitter rate limit.",
	})

	// IndexedBuckets is the current number of non-empty geo buckets.
	IndexedBuckets = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "safetypoll",
		Subsystem: "index",
		Name:      "buckets",
		Help:      "Current number of non-empty geo buckets in the in-memory index.",
	})

	// HeatmapDurationSeconds is end-to-end time to build a heatmap overlay.
	HeatmapDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "safetypoll",
		Subsystem: "aggregate",
		Name:      "heatmap_duration_seconds",
		Help:      "Time to compute a heatmap overlay for one viewport.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	// HeatmapPoints tracks how many overlay points each heatmap response carried.
	HeatmapPoints = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "safetypoll",
		Subsystem: "aggregate",
		Name:      "heatmap_points",
		Help:      "Number of overlay points per heatmap response.",
		Buckets:   []float64{0, 1, 5, 10, 50, 100, 500, 1000},
	})
)

// Register registers service metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ReportsSubmittedTotal,
			RateLimitedTotal,
			IndexedBuckets,
			HeatmapDurationSeconds,
			HeatmapPoints,
		)
	})
}
