package simcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics mirrors Stats as Prometheus collectors.
type metrics struct {
	hits         prometheus.Counter
	misses       prometheus.Counter
	computations prometheus.Counter
	failures     prometheus.Counter
	entries      prometheus.Gauge
	duration     prometheus.Histogram
}

// newMetrics registers the cache collectors on reg. A nil reg yields
// unregistered collectors, which keeps tests from sharing global state.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		hits: factory.NewCounter(prometheus.CounterOpts{
			Name: "simdash_cache_hits_total",
			Help: "Simulation results served from cache.",
		}),
		misses: factory.NewCounter(prometheus.CounterOpts{
			Name: "simdash_cache_misses_total",
			Help: "Lookups that found no live cache entry.",
		}),
		computations: factory.NewCounter(prometheus.CounterOpts{
			Name: "simdash_cache_computations_total",
			Help: "Simulation runs started by the cache.",
		}),
		failures: factory.NewCounter(prometheus.CounterOpts{
			Name: "simdash_cache_failures_total",
			Help: "Simulation runs that returned an error.",
		}),
		entries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "simdash_cache_entries",
			Help: "Live entries held by the cache.",
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "simdash_simulation_duration_seconds",
			Help:    "Wall time of simulation runs.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
}
