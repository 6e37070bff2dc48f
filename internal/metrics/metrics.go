// Package metrics owns the prometheus collectors shared by the delivery,
// cache, alert and HTTP layers. A nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "athlink"

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// Delivery outcomes.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeGroup     = "group"
	OutcomeOffline   = "offline"
)

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Metrics groups every collector the API exports.
type Metrics struct {
	deliveries     *prometheus.CounterVec
	connections    *prometheus.GaugeVec
	cacheLookups   *prometheus.CounterVec
	alertsRaised   *prometheus.CounterVec
	alertFailures  prometheus.Counter
	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	rateLimitHits  *prometheus.CounterVec
}

// New builds the collectors and registers them with reg. Collectors that are
// already registered are reused, so New may be called more than once against
// the same registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "deliveries_total",
			Help:      "Event delivery attempts by outcome",
		}, []string{"event", "outcome"}),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "presence",
			Name:      "open_channels",
			Help:      "Currently open live channels by transport",
		}, []string{"transport"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache-aside lookups by key kind and result",
		}, []string{"kind", "result"}),
		alertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "raised_total",
			Help:      "Alerts produced by threshold evaluation",
		}, []string{"type", "severity"}),
		alertFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "persist_failures_total",
			Help:      "Alerts that could not be persisted",
		}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"}),
		rateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "rate_limit_hits_total",
			Help:      "Number of rate-limited responses",
		}, []string{"route"}),
	}
	if reg == nil {
		return m
	}
	m.deliveries = register(reg, m.deliveries)
	m.connections = register(reg, m.connections)
	m.cacheLookups = register(reg, m.cacheLookups)
	m.alertsRaised = register(reg, m.alertsRaised)
	m.alertFailures = register(reg, m.alertFailures)
	m.requestTotal = register(reg, m.requestTotal)
	m.requestLatency = register(reg, m.requestLatency)
	m.rateLimitHits = register(reg, m.rateLimitHits)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

// Delivery counts one delivery attempt.
func (m *Metrics) Delivery(event, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(event, outcome).Inc()
}

// ChannelOpened increments the open channel gauge for transport.
func (m *Metrics) ChannelOpened(transport string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(transport).Inc()
}

// ChannelClosed decrements the open channel gauge for transport.
func (m *Metrics) ChannelClosed(transport string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(transport).Dec()
}

// CacheLookup records a cache-aside read.
func (m *Metrics) CacheLookup(kind, result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(kind, result).Inc()
}

// AlertRaised records an evaluated alert.
func (m *Metrics) AlertRaised(alertType, severity string) {
	if m == nil {
		return
	}
	m.alertsRaised.WithLabelValues(alertType, severity).Inc()
}

// AlertPersistFailed records an alert write failure.
func (m *Metrics) AlertPersistFailed() {
	if m == nil {
		return
	}
	m.alertFailures.Inc()
}

// Request records a completed HTTP request.
func (m *Metrics) Request(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	m.requestTotal.With(labels).Inc()
	m.requestLatency.With(labels).Observe(duration.Seconds())
}

// RateLimitHit records a rejected request.
func (m *Metrics) RateLimitHit(route string) {
	if m == nil {
		return
	}
	m.rateLimitHits.WithLabelValues(route).Inc()
}
