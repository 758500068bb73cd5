package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
// Each instance owns its registry so tests can create as many as they like.
// A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Cache and coordination
	CacheLookups       *prometheus.CounterVec
	LockAcquisitions   *prometheus.CounterVec
	RateLimitDecisions *prometheus.CounterVec

	// Key-value store
	StoreOperations *prometheus.CounterVec
	StoreDuration   *prometheus.HistogramVec

	// Command and query dispatch
	Dispatches       *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec

	// Events
	EventsPublished *prometheus.CounterVec
	EventsConsumed  *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors under namespace
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Cache lookups by cache and result",
			},
			[]string{"cache", "result"},
		),
		LockAcquisitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lock_acquisitions_total",
				Help:      "Distributed lock attempts by result",
			},
			[]string{"result"},
		),
		RateLimitDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_decisions_total",
				Help:      "Rate limiter decisions by request class and result",
			},
			[]string{"class", "result"},
		),
		StoreOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "kvstore_operations_total",
				Help:      "Key-value store operations by status",
			},
			[]string{"operation", "status"},
		),
		StoreDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "kvstore_operation_duration_seconds",
				Help:      "Key-value store operation duration in seconds",
				Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"},
		),
		Dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatches_total",
				Help:      "Commands and queries dispatched by kind, type and status",
			},
			[]string{"kind", "type", "status"},
		),
		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Command and query handler duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind", "type"},
		),
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Domain events published by type and status",
			},
			[]string{"type", "status"},
		),
		EventsConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_consumed_total",
				Help:      "Domain events consumed by type and status",
			},
			[]string{"type", "status"},
		),
	}

	m.registry.MustRegister(
		m.HTTPRequests,
		m.HTTPDuration,
		m.CacheLookups,
		m.LockAcquisitions,
		m.RateLimitDecisions,
		m.StoreOperations,
		m.StoreDuration,
		m.Dispatches,
		m.DispatchDuration,
		m.EventsPublished,
		m.EventsConsumed,
	)

	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *Metrics) RecordCacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(cache, result).Inc()
}

// RecordLockAttempt counts one lock attempt; result is acquired, contended or error
func (m *Metrics) RecordLockAttempt(result string) {
	if m == nil {
		return
	}
	m.LockAcquisitions.WithLabelValues(result).Inc()
}

// RecordRateLimit counts one decision; result is allowed, rejected or fail_open
func (m *Metrics) RecordRateLimit(class, result string) {
	if m == nil {
		return
	}
	m.RateLimitDecisions.WithLabelValues(class, result).Inc()
}

func (m *Metrics) RecordStoreOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StoreOperations.WithLabelValues(operation, status).Inc()
	m.StoreDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordDispatch counts one command or query; kind is command or query
func (m *Metrics) RecordDispatch(kind, name string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.Dispatches.WithLabelValues(kind, name, statusOf(err)).Inc()
	m.DispatchDuration.WithLabelValues(kind, name).Observe(duration.Seconds())
}

func (m *Metrics) RecordEventPublished(eventType string, err error) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType, statusOf(err)).Inc()
}

func (m *Metrics) RecordEventConsumed(eventType string, err error) {
	if m == nil {
		return
	}
	m.EventsConsumed.WithLabelValues(eventType, statusOf(err)).Inc()
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
