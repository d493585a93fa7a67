// Package metrics defines galley's Prometheus collectors.
//
// Collectors are registered on an explicit registry rather than the global
// default so tests and multiple engines in one process do not collide. All
// recording methods are nil-safe: components built without metrics pass a
// nil *Metrics and pay nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "galley"

// Metrics holds every collector.
type Metrics struct {
	registry *prometheus.Registry

	OrdersSubmitted   *prometheus.CounterVec
	OrderTransitions  *prometheus.CounterVec
	QueueDepth        *prometheus.GaugeVec
	Compactions       *prometheus.CounterVec
	Fulfillments      *prometheus.CounterVec
	StockLevel        *prometheus.GaugeVec
	LowStockWarnings  *prometheus.CounterVec
	DanglingRefs      *prometheus.CounterVec
	StoreRetries      *prometheus.CounterVec
	StoreOperation    *prometheus.HistogramVec
	HTTPRequests      *prometheus.CounterVec
	HTTPRequestLength *prometheus.HistogramVec
	KDSNotifications  *prometheus.CounterVec
}

// New creates and registers all collectors on a fresh registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		OrdersSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_submitted_total",
			Help:      "Total number of orders accepted into a queue",
		}, []string{"tenant"}),

		OrderTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Total number of order status transitions",
		}, []string{"tenant", "to"}),

		QueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of active orders per tenant queue",
		}, []string{"tenant"}),

		Compactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "position_compactions_total",
			Help:      "Total number of queue position compactions",
		}, []string{"tenant"}),

		Fulfillments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fulfillments_total",
			Help:      "Completed-order stock deductions by outcome",
		}, []string{"tenant", "outcome"}),

		StockLevel: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inventory_stock_level",
			Help:      "Stock level of inventory items after the last deduction",
		}, []string{"tenant", "item"}),

		LowStockWarnings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "low_stock_warnings_total",
			Help:      "Deductions that drove stock below zero under the soft policy",
		}, []string{"tenant", "item"}),

		DanglingRefs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dangling_ingredient_references_total",
			Help:      "Ingredient references that did not resolve at completion",
		}, []string{"tenant"}),

		StoreRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_retries_total",
			Help:      "Boundary retries after STORE_UNAVAILABLE",
		}, []string{"op"}),

		StoreOperation: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Duration of row-store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		HTTPRequestLength: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),

		KDSNotifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kds_notifications_total",
			Help:      "Queue snapshots delivered to KDS sinks",
		}, []string{"tenant", "sink"}),
	}
}

// Registry exposes the registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) OrderSubmitted(tenant string) {
	if m == nil {
		return
	}
	m.OrdersSubmitted.WithLabelValues(tenant).Inc()
}

func (m *Metrics) Transition(tenant, to string) {
	if m == nil {
		return
	}
	m.OrderTransitions.WithLabelValues(tenant, to).Inc()
}

func (m *Metrics) SetQueueDepth(tenant string, depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(tenant).Set(float64(depth))
}

func (m *Metrics) Compaction(tenant string) {
	if m == nil {
		return
	}
	m.Compactions.WithLabelValues(tenant).Inc()
}

// Fulfillment records a completion outcome: applied, duplicate, skipped or rejected.
func (m *Metrics) Fulfillment(tenant, outcome string) {
	if m == nil {
		return
	}
	m.Fulfillments.WithLabelValues(tenant, outcome).Inc()
}

func (m *Metrics) SetStock(tenant, item string, level float64) {
	if m == nil {
		return
	}
	m.StockLevel.WithLabelValues(tenant, item).Set(level)
}

func (m *Metrics) LowStock(tenant, item string) {
	if m == nil {
		return
	}
	m.LowStockWarnings.WithLabelValues(tenant, item).Inc()
}

func (m *Metrics) Dangling(tenant string, n int) {
	if m == nil {
		return
	}
	m.DanglingRefs.WithLabelValues(tenant).Add(float64(n))
}

func (m *Metrics) StoreRetry(op string) {
	if m == nil {
		return
	}
	m.StoreRetries.WithLabelValues(op).Inc()
}

// TrackStore returns a func that records the duration since start for op.
//
//	defer m.TrackStore("save_order")(time.Now())
func (m *Metrics) TrackStore(op string) func(time.Time) {
	return func(start time.Time) {
		if m == nil {
			return
		}
		m.StoreOperation.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) HTTPRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.HTTPRequests.WithLabelValues(method, path, code).Inc()
	m.HTTPRequestLength.WithLabelValues(method, path, code).Observe(d.Seconds())
}

func (m *Metrics) KDSNotified(tenant, sink string) {
	if m == nil {
		return
	}
	m.KDSNotifications.WithLabelValues(tenant, sink).Inc()
}
