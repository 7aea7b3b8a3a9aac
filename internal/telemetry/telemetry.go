// Package telemetry exposes Prometheus instrumentation for the retry
// controller, the result cache, and cross-verification. promauto
// panics on duplicate registration against the default registry, so
// New must only be called once per process; callers needing isolation
// pass a dedicated *prometheus.Registry.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the counters/gauges/histograms the coordinator and
// its collaborators update during a debate.
type Metrics struct {
	RetryAttempts    *prometheus.CounterVec
	RetryExhausted   prometheus.Counter
	RetryDelaySeconds prometheus.Histogram

	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	CacheStores      prometheus.Counter
	CacheEntries     prometheus.Gauge
	CacheTokensSaved prometheus.Counter

	VerificationTriggered  prometheus.Counter
	VerificationConfidence prometheus.Histogram

	DebateDurationSeconds *prometheus.HistogramVec
	ExpertsSelected       prometheus.Histogram
	InsufficientExperts   prometheus.Counter
}

// New registers and returns the full metric set against reg. Pass
// prometheus.DefaultRegisterer for process-wide metrics, or a fresh
// *prometheus.Registry in tests to avoid cross-test collisions.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RetryAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consensusd",
			Subsystem: "retry",
			Name:      "attempts_total",
			Help:      "Total retry attempts by classified error kind",
		}, []string{"kind"}),

		RetryExhausted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "consensusd",
			Subsystem: "retry",
			Name:      "exhausted_total",
			Help:      "Total operations that exhausted all retry attempts",
		}),

		RetryDelaySeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "consensusd",
			Subsystem: "retry",
			Name:      "delay_seconds",
			Help:      "Backoff delay before each retry attempt",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),

		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "consensusd",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total result cache hits",
		}),

		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "consensusd",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total result cache misses",
		}),

		CacheStores: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "consensusd",
			Subsystem: "cache",
			Name:      "stores_total",
			Help:      "Total result cache stores",
		}),

		CacheEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "consensusd",
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Current number of entries held in the result cache",
		}),

		CacheTokensSaved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "consensusd",
			Subsystem: "cache",
			Name:      "tokens_saved_total",
			Help:      "Estimated tokens saved by cache hits",
		}),

		VerificationTriggered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "consensusd",
			Subsystem: "verify",
			Name:      "triggered_total",
			Help:      "Total debates that ran cross-verification",
		}),

		VerificationConfidence: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "consensusd",
			Subsystem: "verify",
			Name:      "overall_confidence",
			Help:      "Distribution of VerificationReport.OverallConfidence",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}),

		DebateDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "consensusd",
			Subsystem: "debate",
			Name:      "duration_seconds",
			Help:      "End-to-end debate duration by outcome",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"outcome"}),

		ExpertsSelected: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "consensusd",
			Subsystem: "debate",
			Name:      "experts_selected",
			Help:      "Number of distinct experts selected per debate",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 7},
		}),

		InsufficientExperts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "consensusd",
			Subsystem: "debate",
			Name:      "insufficient_experts_total",
			Help:      "Total debates that failed with InsufficientExperts",
		}),
	}
}
