// Package metrics exposes the service's Prometheus instruments on a
// dedicated registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every instrument the service reports. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	OrdersTotal       *prometheus.CounterVec
	OrderOpDuration   *prometheus.HistogramVec
	LockContention    prometheus.Counter
	EventsPublished   *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	HTTPRequestLength *prometheus.HistogramVec
}

// New creates the instruments and registers them on registry. A nil
// registry gets a fresh one.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: registry,
		OrdersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_total",
				Help: "Order lifecycle operations by outcome.",
			},
			[]string{"op", "status"},
		),
		OrderOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "order_op_duration_seconds",
				Help:    "Duration of order lifecycle operations, retries included.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		LockContention: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_lock_contention_total",
				Help: "Units of work that failed on a lock wait.",
			},
		),
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "events_published_total",
				Help: "Order events handed to a sink, by outcome.",
			},
			[]string{"sink", "status"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestLength: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}

	registry.MustRegister(
		m.OrdersTotal,
		m.OrderOpDuration,
		m.LockContention,
		m.EventsPublished,
		m.HTTPRequests,
		m.HTTPRequestLength,
	)
	return m
}

func (m *Metrics) ObserveOrderOp(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.OrdersTotal.WithLabelValues(op, outcome).Inc()
	m.OrderOpDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) IncLockContention() {
	if m == nil {
		return
	}
	m.LockContention.Inc()
}

func (m *Metrics) IncEventPublished(sink, status string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(sink, status).Inc()
}

// ObserveHTTPRequest records one served request. path should be the route
// pattern, not the raw URL, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.HTTPRequests.WithLabelValues(method, path, code).Inc()
	m.HTTPRequestLength.WithLabelValues(method, path, code).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
