// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes the daemon's Prometheus instrumentation:
// classification outcomes, decision-cache effectiveness, rate-limit
// drops, and socket-diag query latency. Collection happens inline in
// internal/engine and internal/sockdiag; this package only owns metric
// definitions and registration.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector the daemon exports.
type Metrics struct {
	ClassificationsTotal *prometheus.CounterVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	RateLimitDropsTotal  *prometheus.CounterVec
	SockDiagLatency      prometheus.Histogram
	SockDiagErrorsTotal  *prometheus.CounterVec
}

// New constructs a Metrics with every collector initialized and
// registered against reg. Pass prometheus.DefaultRegisterer at daemon
// startup and prometheus.NewRegistry() in tests that need isolation
// from the global registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ClassificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perimeterd_classifications_total",
			Help: "Total number of packets classified, by accept decision.",
		}, []string{"accept"}),

		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perimeterd_decision_cache_hits_total",
			Help: "Total number of decision cache fingerprint hits.",
		}),

		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perimeterd_decision_cache_misses_total",
			Help: "Total number of decision cache fingerprint misses.",
		}),

		RateLimitDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perimeterd_rate_limit_drops_total",
			Help: "Total number of packets dropped because a rate-limit bucket was exhausted, by bucket name.",
		}, []string{"bucket"}),

		SockDiagLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "perimeterd_sockdiag_query_seconds",
			Help:    "Latency of kernel socket-diag queries.",
			Buckets: prometheus.DefBuckets,
		}),

		SockDiagErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perimeterd_sockdiag_errors_total",
			Help: "Total number of socket-diag query failures, by error kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.ClassificationsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.RateLimitDropsTotal,
		m.SockDiagLatency,
		m.SockDiagErrorsTotal,
	)

	return m
}

// ObserveClassification records a completed classification.
func (m *Metrics) ObserveClassification(accept bool) {
	label := "false"
	if accept {
		label = "true"
	}
	m.ClassificationsTotal.WithLabelValues(label).Inc()
}

// ObserveCacheResult records a decision cache hit or miss.
func (m *Metrics) ObserveCacheResult(hit bool) {
	if hit {
		m.CacheHitsTotal.Inc()
		return
	}
	m.CacheMissesTotal.Inc()
}

// ObserveRateLimitDrop records a rate-limit rejection for the named bucket.
func (m *Metrics) ObserveRateLimitDrop(bucketName string) {
	m.RateLimitDropsTotal.WithLabelValues(bucketName).Inc()
}

// ObserveSockDiagError records a socket-diag failure by error kind.
func (m *Metrics) ObserveSockDiagError(kind string) {
	m.SockDiagErrorsTotal.WithLabelValues(kind).Inc()
}
