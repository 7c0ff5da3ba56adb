package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	updatesQueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fieldsync",
			Name:      "updates_queued_total",
			Help:      "Pending updates enqueued locally.",
		},
	)

	updatesSynced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fieldsync",
			Name:      "updates_synced_total",
			Help:      "Pending updates acknowledged by the server.",
		},
	)

	updatesFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fieldsync",
			Name:      "updates_failed_total",
			Help:      "Pending updates in a terminal or stalled failure state.",
		},
		[]string{"state"},
	)

	drainsCoalesced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fieldsync",
			Name:      "drains_coalesced_total",
			Help:      "Drain triggers coalesced into an in-flight drain.",
		},
	)

	drainDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fieldsync",
			Name:      "drain_duration_seconds",
			Help:      "Wall time of a full queue drain.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	cacheActivations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fieldsync",
			Name:      "cache_version_activations_total",
			Help:      "Service-worker cache version cutovers.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			updatesQueued,
			updatesSynced,
			updatesFailed,
			drainsCoalesced,
			drainDuration,
			cacheActivations,
		)
	})
}

// IncQueued increments the enqueue counter.
func IncQueued() { updatesQueued.Inc() }

// IncSynced increments the acknowledged-update counter.
func IncSynced() { updatesSynced.Inc() }

// IncFailed increments the failure counter for a sync state label.
func IncFailed(state string) { updatesFailed.WithLabelValues(state).Inc() }

// IncCoalesced increments the coalesced-trigger counter.
func IncCoalesced() { drainsCoalesced.Inc() }

// ObserveDrain records the duration of a completed drain in seconds.
func ObserveDrain(seconds float64) { drainDuration.Observe(seconds) }

// IncActivation increments the cache cutover counter.
func IncActivation() { cacheActivations.Inc() }
