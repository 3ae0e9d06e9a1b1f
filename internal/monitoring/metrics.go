// Package monitoring bundles Prometheus collectors for the pricing engine.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors on a dedicated registry.
type Metrics struct {
	Registry       *prometheus.Registry
	RequestsTotal  prometheus.Counter
	ErrorsTotal    *prometheus.CounterVec
	CacheHitsTotal *prometheus.CounterVec
	FetchesTotal   prometheus.Counter
	FetchDuration  prometheus.Histogram
	CacheSize      prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pricing_requests_total",
		Help: "Total pricing lookups served.",
	})
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_errors_total",
			Help: "Total pricing lookup errors by type.",
		},
		[]string{"error_type"},
	)
	cacheHits := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_cache_hits_total",
			Help: "Cache hits by tier.",
		},
		[]string{"tier"},
	)
	fetches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pricing_remote_fetches_total",
		Help: "Completed-sales API calls issued.",
	})
	fetchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pricing_remote_fetch_duration_seconds",
		Help:    "Completed-sales API call latency.",
		Buckets: prometheus.DefBuckets,
	})
	cacheSize := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pricing_memory_cache_entries",
		Help: "Entries currently held in the memory cache tier.",
	})

	registry.MustRegister(requests, errorsTotal, cacheHits, fetches, fetchDuration, cacheSize)

	return &Metrics{
		Registry:       registry,
		RequestsTotal:  requests,
		ErrorsTotal:    errorsTotal,
		CacheHitsTotal: cacheHits,
		FetchesTotal:   fetches,
		FetchDuration:  fetchDuration,
		CacheSize:      cacheSize,
	}
}

// IncRequest increments the lookup counter.
func (m *Metrics) IncRequest() {
	if m == nil {
		return
	}
	m.RequestsTotal.Inc()
}

// IncError increments the error counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncCacheHit increments the hit counter for a tier label.
func (m *Metrics) IncCacheHit(tier string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(tier).Inc()
}

// ObserveFetch records one remote call and its latency.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchesTotal.Inc()
	m.FetchDuration.Observe(d.Seconds())
}

// SetCacheSize updates the memory-cache size gauge.
func (m *Metrics) SetCacheSize(n int) {
	if m == nil {
		return
	}
	m.CacheSize.Set(float64(n))
}
