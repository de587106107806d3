// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Execution metrics
	ExecutionsTotal    *prometheus.CounterVec
	CheckFailures      *prometheus.CounterVec
	SwapVolumeIn       prometheus.Counter
	TradersInitialized prometheus.Counter

	// Upstream latency metrics
	OracleCallLatency *prometheus.HistogramVec
	VenueCallLatency  prometheus.Histogram
	LedgerCallLatency prometheus.Histogram

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulExecution prometheus.Gauge
	OracleStreamConnected   prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "swap_guard"
	}

	return &Metrics{
		// Execution metrics
		ExecutionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "executions_total",
			Help:      "Total number of execution attempts by outcome code",
		}, []string{"outcome"}),
		CheckFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "check_failures_total",
			Help:      "Total number of precondition check failures by check",
		}, []string{"check"}),
		SwapVolumeIn: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "swap_volume_in_total",
			Help:      "Total input volume of filled swaps in base units",
		}),
		TradersInitialized: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "traders_initialized_total",
			Help:      "Total number of trader configs created",
		}),

		// Upstream latency metrics
		OracleCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "call_latency_seconds",
			Help:      "Oracle price fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		VenueCallLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "venue",
			Name:      "call_latency_seconds",
			Help:      "Venue swap call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		LedgerCallLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "call_latency_seconds",
			Help:      "Ledger balance lookup latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulExecution: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_execution_timestamp",
			Help:      "Unix timestamp of the last filled swap",
		}),
		OracleStreamConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "oracle_stream_connected",
			Help:      "1 when the streaming oracle source is connected",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordExecution records one execution attempt by stable outcome code.
func RecordExecution(outcome string) {
	DefaultMetrics.ExecutionsTotal.WithLabelValues(outcome).Inc()
}

// RecordCheckFailure records a failed precondition check.
func RecordCheckFailure(check string) {
	DefaultMetrics.CheckFailures.WithLabelValues(check).Inc()
}

// RecordFill records a filled swap.
func RecordFill(amountIn uint64, executedAt int64) {
	DefaultMetrics.SwapVolumeIn.Add(float64(amountIn))
	DefaultMetrics.LastSuccessfulExecution.Set(float64(executedAt))
}

// RecordTraderInitialized increments the trader configs created counter.
func RecordTraderInitialized() {
	DefaultMetrics.TradersInitialized.Inc()
}

// RecordOracleLatency records oracle fetch latency for a source kind.
func RecordOracleLatency(source string, seconds float64) {
	DefaultMetrics.OracleCallLatency.WithLabelValues(source).Observe(seconds)
}

// RecordVenueLatency records venue swap call latency.
func RecordVenueLatency(seconds float64) {
	DefaultMetrics.VenueCallLatency.Observe(seconds)
}

// RecordLedgerLatency records ledger balance lookup latency.
func RecordLedgerLatency(seconds float64) {
	DefaultMetrics.LedgerCallLatency.Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// SetOracleStreamConnected updates the streaming source connection gauge.
func SetOracleStreamConnected(connected bool) {
	if connected {
		DefaultMetrics.OracleStreamConnected.Set(1)
	} else {
		DefaultMetrics.OracleStreamConnected.Set(0)
	}
}
