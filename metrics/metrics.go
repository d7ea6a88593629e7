// Package metrics provides Prometheus metrics for the compensation engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for computations.
const (
	OutcomeComputed = "computed"
	OutcomeCacheHit = "cache_hit"
	OutcomeFailed   = "failed"
)

// Manager owns every collector the engine reports to. A nil *Manager is
// valid and records nothing, so library code never has to nil-check.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	computations        *prometheus.CounterVec
	computationDuration prometheus.Histogram
	cacheLookups        *prometheus.CounterVec
	cacheEvictions      prometheus.Counter
	batchRuns           prometheus.Counter
	batchFailures       prometheus.Counter
	configWarnings      *prometheus.CounterVec
	reassignments       prometheus.Counter
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a metrics manager. Collectors are registered on the
// configured registry (a fresh one unless WithPrometheusRegistry is given).
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "payroll",
		subsystem:        "compensation",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		registry:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.computations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "computations_total",
		Help:      "Compensation requests by outcome (computed, cache_hit, failed)",
	}, []string{"outcome"})

	m.computationDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "computation_duration_milliseconds",
		Help:      "Time spent computing one instructor-period on a cache miss",
		Buckets:   m.histogramBuckets,
	})

	m.cacheLookups = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_lookups_total",
		Help:      "Cache lookups by result (hit, miss)",
	}, []string{"result"})

	m.cacheEvictions = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_evictions_total",
		Help:      "Cache entries removed by explicit invalidation",
	})

	m.batchRuns = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batch_runs_total",
		Help:      "Compute-all batch runs started",
	})

	m.batchFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batch_instructor_failures_total",
		Help:      "Instructors omitted from a batch because their computation failed",
	})

	m.configWarnings = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "config_warnings_total",
		Help:      "Missing-configuration conditions degraded to zero contribution",
	}, []string{"kind"})

	m.reassignments = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "reassignments_recorded_total",
		Help:      "Reassignment events recorded through the engine",
	})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"route", "method", "status_code"})
}

// Registerer returns the registry collectors were registered on.
func (m *Manager) Registerer() prometheus.Registerer {
	if m == nil {
		return nil
	}
	return m.registry
}

// Gatherer returns the registry as a Gatherer when it supports gathering.
func (m *Manager) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	if g, ok := m.registry.(prometheus.Gatherer); ok {
		return g
	}
	return prometheus.DefaultGatherer
}

// RecordComputation counts one request outcome.
func (m *Manager) RecordComputation(outcome string) {
	if m == nil {
		return
	}
	m.computations.WithLabelValues(outcome).Inc()
}

// ObserveComputation records the duration of a cache-miss computation.
func (m *Manager) ObserveComputation(d time.Duration) {
	if m == nil {
		return
	}
	m.computationDuration.Observe(float64(d.Milliseconds()))
}

// RecordCacheLookup counts a cache hit or miss.
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

// RecordEvictions counts entries removed by an invalidation.
func (m *Manager) RecordEvictions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cacheEvictions.Add(float64(n))
}

// RecordBatch counts a batch run and the instructors it had to omit.
func (m *Manager) RecordBatch(failures int) {
	if m == nil {
		return
	}
	m.batchRuns.Inc()
	if failures > 0 {
		m.batchFailures.Add(float64(failures))
	}
}

// RecordConfigWarning counts a missing-configuration condition.
func (m *Manager) RecordConfigWarning(kind string) {
	if m == nil {
		return
	}
	m.configWarnings.WithLabelValues(kind).Inc()
}

// RecordReassignment counts a recorded reassignment event.
func (m *Manager) RecordReassignment() {
	if m == nil {
		return
	}
	m.reassignments.Inc()
}

// ObserveHTTPRequest records one served request.
func (m *Manager) ObserveHTTPRequest(route, method, statusCode string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestDuration.WithLabelValues(route, method, statusCode).Observe(float64(d.Milliseconds()))
}
