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
	// Source metrics
	PoolEventsDetected prometheus.Counter
	EventsDropped      prometheus.Counter
	WSReconnects       prometheus.Counter
	SourceBufferSize   prometheus.Gauge

	// Evaluation metrics
	EventsAccepted    prometheus.Counter
	EventsRejected    *prometheus.CounterVec
	DuplicatesSkipped prometheus.Counter
	EvaluationLatency prometheus.Histogram

	// Wallet pool metrics
	LeaseOutcomes    *prometheus.CounterVec
	WalletsAvailable prometheus.Gauge
	WalletBalance    *prometheus.GaugeVec
	ForcedReleases   prometheus.Counter

	// Execution metrics
	ExecutionsTotal   *prometheus.CounterVec
	AttemptsTotal     *prometheus.CounterVec
	ExecutionLatency  prometheus.Histogram
	DetectionToSubmit prometheus.Histogram

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastEventReceived prometheus.Gauge
	UptimeSeconds     prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_sniper"
	}

	return &Metrics{
		// Source metrics
		PoolEventsDetected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "pool_events_detected_total",
			Help:      "Total number of pool creation events detected",
		}),
		EventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped due to full buffer",
		}),
		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "ws_reconnects_total",
			Help:      "Total number of WebSocket reconnections",
		}),
		SourceBufferSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "buffer_size",
			Help:      "Current number of events in the source buffer",
		}),

		// Evaluation metrics
		EventsAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluate",
			Name:      "events_accepted_total",
			Help:      "Total number of events accepted for execution",
		}),
		EventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluate",
			Name:      "events_rejected_total",
			Help:      "Total number of events rejected by reason",
		}, []string{"reason"}),
		DuplicatesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluate",
			Name:      "duplicates_skipped_total",
			Help:      "Total number of events skipped as duplicate pairs",
		}),
		EvaluationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evaluate",
			Name:      "latency_seconds",
			Help:      "Evaluation latency in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .02, .05, .1},
		}),

		// Wallet pool metrics
		LeaseOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "lease_outcomes_total",
			Help:      "Total number of wallet lease attempts by outcome",
		}, []string{"outcome"}),
		WalletsAvailable: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "available",
			Help:      "Number of wallets currently available for lease",
		}),
		WalletBalance: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "balance_lamports",
			Help:      "Last known balance per wallet in lamports",
		}, []string{"wallet"}),
		ForcedReleases: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "forced_releases_total",
			Help:      "Total number of leases force-released at shutdown",
		}),

		// Execution metrics
		ExecutionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "executions_total",
			Help:      "Total number of executions by terminal status",
		}, []string{"status"}),
		AttemptsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "attempts_total",
			Help:      "Total number of transaction attempts by outcome",
		}, []string{"outcome"}),
		ExecutionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "latency_seconds",
			Help:      "Execution duration from lease to terminal outcome",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		DetectionToSubmit: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "detection_to_submit_seconds",
			Help:      "Latency from event detection to first transaction submit",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),

		// Latency metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

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
		LastEventReceived: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_event_received_timestamp",
			Help:      "Unix timestamp of the last received chain event",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEventDetected increments the detected pool events counter and
// marks the health gauge.
func RecordEventDetected(unixSeconds float64) {
	DefaultMetrics.PoolEventsDetected.Inc()
	DefaultMetrics.LastEventReceived.Set(unixSeconds)
}

// RecordEventDropped increments the dropped events counter.
func RecordEventDropped() {
	DefaultMetrics.EventsDropped.Inc()
}

// RecordWSReconnect increments the WebSocket reconnect counter.
func RecordWSReconnect() {
	DefaultMetrics.WSReconnects.Inc()
}

// UpdateSourceBuffer updates the source buffer gauge.
func UpdateSourceBuffer(n int) {
	DefaultMetrics.SourceBufferSize.Set(float64(n))
}

// RecordEvaluation records an evaluator decision and its latency.
func RecordEvaluation(accepted bool, reason string, seconds float64) {
	if accepted {
		DefaultMetrics.EventsAccepted.Inc()
	} else {
		DefaultMetrics.EventsRejected.WithLabelValues(reason).Inc()
	}
	DefaultMetrics.EvaluationLatency.Observe(seconds)
}

// RecordDuplicate increments the duplicate pair counter.
func RecordDuplicate() {
	DefaultMetrics.DuplicatesSkipped.Inc()
}

// RecordLeaseOutcome records a wallet lease attempt outcome
// ("leased", "busy", "insufficient_funds", "closed").
func RecordLeaseOutcome(outcome string) {
	DefaultMetrics.LeaseOutcomes.WithLabelValues(outcome).Inc()
}

// UpdateWalletsAvailable updates the available wallets gauge.
func UpdateWalletsAvailable(n int) {
	DefaultMetrics.WalletsAvailable.Set(float64(n))
}

// UpdateWalletBalance updates the balance gauge for one wallet.
func UpdateWalletBalance(pubkey string, lamports uint64) {
	DefaultMetrics.WalletBalance.WithLabelValues(pubkey).Set(float64(lamports))
}

// RecordForcedRelease increments the forced release counter.
func RecordForcedRelease() {
	DefaultMetrics.ForcedReleases.Inc()
}

// RecordExecution records a terminal execution status and duration.
func RecordExecution(status string, seconds float64) {
	DefaultMetrics.ExecutionsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.ExecutionLatency.Observe(seconds)
}

// RecordAttempt records one transaction attempt by outcome.
func RecordAttempt(outcome string) {
	DefaultMetrics.AttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordDetectionToSubmit records detection-to-first-submit latency.
func RecordDetectionToSubmit(seconds float64) {
	DefaultMetrics.DetectionToSubmit.Observe(seconds)
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
