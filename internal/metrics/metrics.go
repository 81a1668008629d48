package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     prometheus.CounterVec
	HTTPRequestDuration   prometheus.HistogramVec
	HTTPRequestSize       prometheus.HistogramVec
	HTTPResponseSize      prometheus.HistogramVec
	HTTPActiveConnections prometheus.GaugeVec

	// Rate limiting metrics
	RateLimitExceededTotal prometheus.CounterVec

	// Database metrics
	DatabaseQueryDuration prometheus.HistogramVec
	DatabaseQueriesTotal  prometheus.CounterVec

	// Redis metrics
	RedisOperationDuration prometheus.HistogramVec
	RedisOperationsTotal   prometheus.CounterVec

	// Ledger metrics
	LedgerOperationsTotal   prometheus.CounterVec
	LedgerOperationDuration prometheus.HistogramVec
	LedgerCoalescedTotal    prometheus.CounterVec
	LedgerSubscriptions     prometheus.GaugeVec

	// Store and broker metrics
	StoreConflictRetriesTotal prometheus.CounterVec
	BrokerMessagesTotal       prometheus.CounterVec

	// WebSocket metrics
	WebSocketConnections prometheus.GaugeVec
	WebSocketMessages    prometheus.CounterVec

	// Error metrics
	ErrorsTotal prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			// HTTP metrics
			HTTPRequestsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestSize: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_size_bytes",
					Help:    "HTTP request body size in bytes",
					Buckets: prometheus.ExponentialBuckets(100, 10, 7),
				},
				[]string{"method", "path"},
			),
			HTTPResponseSize: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_response_size_bytes",
					Help:    "HTTP response size in bytes",
					Buckets: prometheus.ExponentialBuckets(100, 10, 7),
				},
				[]string{"method", "path", "status"},
			),
			HTTPActiveConnections: *promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "http_active_connections",
					Help: "Number of currently active HTTP connections",
				},
				[]string{"method", "path"},
			),

			// Rate limiting metrics
			RateLimitExceededTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rate_limit_exceeded_total",
					Help: "Total number of rate limit violations",
				},
				[]string{"endpoint", "method"},
			),

			// Database metrics
			DatabaseQueryDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "database_query_duration_seconds",
					Help:    "Database query latency in seconds",
					Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"query_type", "table"},
			),
			DatabaseQueriesTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "database_queries_total",
					Help: "Total number of database queries",
				},
				[]string{"query_type", "table", "status"},
			),

			// Redis metrics
			RedisOperationDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "redis_operation_duration_seconds",
					Help:    "Redis operation latency in seconds",
					Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
				},
				[]string{"operation"},
			),
			RedisOperationsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "redis_operations_total",
					Help: "Total number of Redis operations",
				},
				[]string{"operation", "status"},
			),

			// Ledger metrics
			LedgerOperationsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ledger_operations_total",
					Help: "Total number of ledger operations by signal and result",
				},
				[]string{"operation", "signal", "result"},
			),
			LedgerOperationDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "ledger_operation_duration_seconds",
					Help:    "Ledger operation latency in seconds",
					Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
				},
				[]string{"operation"},
			),
			LedgerCoalescedTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ledger_coalesced_toggles_total",
					Help: "Concurrent duplicate toggles served by an in-flight toggle",
				},
				[]string{"signal"},
			),
			LedgerSubscriptions: *promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "ledger_active_subscriptions",
					Help: "Number of active ledger watch subscriptions",
				},
				[]string{"signal"},
			),

			// Store and broker metrics
			StoreConflictRetriesTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "store_conflict_retries_total",
					Help: "Optimistic concurrency retries by store backend",
				},
				[]string{"backend"},
			),
			BrokerMessagesTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "broker_messages_total",
					Help: "Change notifications published and received by broker backend",
				},
				[]string{"backend", "direction", "status"},
			),

			// WebSocket metrics
			WebSocketConnections: *promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "websocket_connections",
					Help: "Number of open websocket connections",
				},
				[]string{"authenticated"},
			),
			WebSocketMessages: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "websocket_messages_total",
					Help: "Websocket messages by direction and type",
				},
				[]string{"direction", "type"},
			),

			// Error metrics
			ErrorsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "errors_total",
					Help: "Total number of errors by type",
				},
				[]string{"error_type", "endpoint"},
			),
		}
	})
	return instance
}

// Get returns the global metrics instance
func Get() *Metrics {
	return Initialize()
}
