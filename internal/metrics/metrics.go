package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "veracity"

// Metrics holds the veracity collectors on a private registry.
// All methods are safe on a nil *Metrics, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	searchRequests *prometheus.CounterVec
	searchAttempts *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	factChecks     *prometheus.CounterVec
	turns          prometheus.Histogram
	duration       prometheus.Histogram
}

// New creates and registers all collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Labels: provider, outcome (ok, cache_hit, provider_unavailable, rate_limited, invalid_query)
		searchRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Search tool invocations by final outcome",
		}, []string{"provider", "outcome"}),

		// Labels: provider, result (ok, transient, rate_limited, fatal)
		searchAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "attempts_total",
			Help:      "Individual HTTP attempts against search providers",
		}, []string{"provider", "result"}),

		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Evidence cache lookups by result",
		}, []string{"result"}),

		factChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "factchecks_total",
			Help:      "Completed fact-checks by outcome",
		}, []string{"outcome"}),

		turns: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "factcheck_turns",
			Help:      "Model calls per fact-check",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10, 15, 20},
		}),

		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "factcheck_duration_seconds",
			Help:      "End-to-end fact-check latency",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		}),
	}
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SearchRequest records the final outcome of one search call
func (m *Metrics) SearchRequest(provider, outcome string) {
	if m == nil {
		return
	}
	m.searchRequests.WithLabelValues(provider, outcome).Inc()
}

// SearchAttempt records one HTTP attempt
func (m *Metrics) SearchAttempt(provider, result string) {
	if m == nil {
		return
	}
	m.searchAttempts.WithLabelValues(provider, result).Inc()
}

// CacheLookup records a cache hit or miss
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// FactCheck records a finished fact-check. outcome is a verdict or a failure kind.
func (m *Metrics) FactCheck(outcome string, turns int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.factChecks.WithLabelValues(outcome).Inc()
	m.turns.Observe(float64(turns))
	m.duration.Observe(elapsed.Seconds())
}
