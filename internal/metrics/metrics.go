// Package metrics provides Prometheus metrics for the tipoff pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns the pipeline collectors. A nil *Manager records nothing, so
// components can be built without metrics in tests.
type Manager struct {
	namespace string
	subsystem string
	buckets   []float64
	registry  *prometheus.Registry

	gamesAssembled   prometheus.Counter
	gamesSkipped     *prometheus.CounterVec
	tierFallbacks    *prometheus.CounterVec
	datesProcessed   *prometheus.CounterVec
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec
	recordsSaved     prometheus.Counter
	runs             *prometheus.CounterVec
	runActive        prometheus.Gauge
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
	wsClients        prometheus.Gauge
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithSubsystem sets the subsystem for all metrics.
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithHistogramBuckets sets custom buckets for latency histograms.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.buckets = buckets
		}
	}
}

// WithRegistry registers the collectors on the given registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// NewManager creates a manager with its own registry unless one is supplied.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "tipoff",
		subsystem: "pipeline",
		buckets:   prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.gamesAssembled = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "games_assembled_total",
		Help:      "Total number of game records assembled",
	})
	m.gamesSkipped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "games_skipped_total",
		Help:      "Total number of games dropped from the dataset, by reason",
	}, []string{"reason"})
	m.tierFallbacks = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tier_fallbacks_total",
		Help:      "Entity rows served from a tier other than recent",
	}, []string{"entity", "tier"})
	m.datesProcessed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dates_total",
		Help:      "Dates visited by the orchestrator, by outcome",
	}, []string{"outcome"})
	m.upstreamRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "upstream",
		Name:      "requests_total",
		Help:      "Requests sent to the stats sources, by endpoint and outcome",
	}, []string{"endpoint", "outcome"})
	m.upstreamLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "upstream",
		Name:      "request_duration_seconds",
		Help:      "Latency of stats source requests",
		Buckets:   m.buckets,
	}, []string{"endpoint"})
	m.cacheLookups = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Response cache lookups, by result",
	}, []string{"result"})
	m.recordsSaved = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "records_saved_total",
		Help:      "Records written to datasets",
	})
	m.runs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "runs_total",
		Help:      "Finished runs, by outcome",
	}, []string{"outcome"})
	m.runActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "run_active",
		Help:      "1 while a run is executing",
	})
	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "API requests, by route, method and status",
	}, []string{"route", "method", "status"})
	m.httpLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "API request latency",
		Buckets:   m.buckets,
	}, []string{"route", "method"})
	m.wsClients = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "websocket",
		Name:      "clients",
		Help:      "Connected progress feed clients",
	})
}

// Registry exposes the underlying registry.
func (m *Manager) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Manager) RecordGameAssembled() {
	if m == nil {
		return
	}
	m.gamesAssembled.Inc()
}

func (m *Manager) RecordGameSkipped(reason string) {
	if m == nil {
		return
	}
	m.gamesSkipped.WithLabelValues(reason).Inc()
}

func (m *Manager) RecordTierFallback(entity, tier string) {
	if m == nil {
		return
	}
	m.tierFallbacks.WithLabelValues(entity, tier).Inc()
}

func (m *Manager) RecordDate(outcome string) {
	if m == nil {
		return
	}
	m.datesProcessed.WithLabelValues(outcome).Inc()
}

func (m *Manager) RecordUpstreamRequest(endpoint, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.upstreamRequests.WithLabelValues(endpoint, outcome).Inc()
	m.upstreamLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (m *Manager) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Manager) RecordRecordsSaved(n int) {
	if m == nil {
		return
	}
	m.recordsSaved.Add(float64(n))
}

func (m *Manager) RecordRunStart() {
	if m == nil {
		return
	}
	m.runActive.Set(1)
}

func (m *Manager) RecordRunEnd(outcome string) {
	if m == nil {
		return
	}
	m.runActive.Set(0)
	m.runs.WithLabelValues(outcome).Inc()
}

func (m *Manager) RecordHTTPRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func (m *Manager) SetWebsocketClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}
