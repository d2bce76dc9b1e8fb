// Package metrics exposes Prometheus collectors for the cache layer: cache
// hit rates, fetch outcomes and latency, discarded stale completions and
// cross-store signals.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for fetches.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeDiscarded = "discarded"
)

type Metrics struct {
	registry *prometheus.Registry

	cacheLookups  *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	signals       *prometheus.CounterVec
	inflight      *prometheus.GaugeVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// New builds collectors on a private registry so instances never collide.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "carecache",
				Name:      "cache_lookups_total",
				Help:      "Cache lookups by store and result (hit or miss).",
			},
			[]string{"store", "result"},
		),
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "carecache",
				Name:      "fetches_total",
				Help:      "Remote fetches by store, facet and outcome.",
			},
			[]string{"store", "facet", "outcome"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "carecache",
				Name:      "fetch_duration_seconds",
				Help:      "Duration of remote fetches in seconds.",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
			},
			[]string{"store", "facet"},
		),
		signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "carecache",
				Name:      "signals_total",
				Help:      "Cross-store refresh signals by source and target.",
			},
			[]string{"from", "to"},
		),
		inflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "carecache",
				Name:      "fetches_inflight",
				Help:      "Fetches currently in flight by store.",
			},
			[]string{"store"},
		),
	}
	m.registry.MustRegister(m.cacheLookups, m.fetches, m.fetchDuration, m.signals, m.inflight)
	return m
}

// Registry returns the registry to serve or gather from.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordCacheLookup(store string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(store, result).Inc()
}

// StartFetch marks a fetch in flight and returns the func that records its
// outcome and latency.
func (m *Metrics) StartFetch(store, facet string) func(outcome string) {
	start := time.Now()
	m.inflight.WithLabelValues(store).Inc()
	return func(outcome string) {
		m.inflight.WithLabelValues(store).Dec()
		m.fetches.WithLabelValues(store, facet, outcome).Inc()
		m.fetchDuration.WithLabelValues(store, facet).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) RecordSignal(from, to string) {
	m.signals.WithLabelValues(from, to).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
