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
	// Trade metrics
	TradesTotal    *prometheus.CounterVec
	TradeDuration  *prometheus.HistogramVec
	ReferralCredit prometheus.Counter

	// Route service metrics
	QuoteLatency *prometheus.HistogramVec
	QuoteErrors  *prometheus.CounterVec

	// Relay metrics
	BundleSubmissions *prometheus.CounterVec
	BundleOutcomes    *prometheus.CounterVec

	// Confirmation metrics
	ConfirmationOutcomes *prometheus.CounterVec
	ConfirmationAttempts prometheus.Histogram
	SchedulerQueueDepth  prometheus.Gauge

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_trade_engine"
	}

	return &Metrics{
		// Trade metrics
		TradesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "trades_total",
			Help:      "Total number of trades by side and outcome",
		}, []string{"side", "outcome"}),
		TradeDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "trade_duration_seconds",
			Help:      "Trade pipeline duration from quote to enqueue in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"side"}),
		ReferralCredit: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "referral_credit_lamports_total",
			Help:      "Total referral credit handed out after confirmation",
		}),

		// Route service metrics
		QuoteLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jupiter",
			Name:      "request_latency_seconds",
			Help:      "Route service request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		QuoteErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jupiter",
			Name:      "errors_total",
			Help:      "Total number of failed route service requests",
		}, []string{"operation"}),

		// Relay metrics
		BundleSubmissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jito",
			Name:      "bundle_submissions_total",
			Help:      "Total number of bundle submissions by outcome",
		}, []string{"outcome"}),
		BundleOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jito",
			Name:      "bundle_statuses_total",
			Help:      "Total number of polled bundle statuses",
		}, []string{"status"}),

		// Confirmation metrics
		ConfirmationOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "jobs_total",
			Help:      "Total number of confirmation jobs by terminal state",
		}, []string{"state"}),
		ConfirmationAttempts: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "attempts",
			Help:      "Attempts used by finished confirmation jobs",
			Buckets:   []float64{1, 2, 3, 5, 8, 10, 20},
		}),
		SchedulerQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "pending_jobs",
			Help:      "Current number of non-terminal confirmation jobs",
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
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTrade records a finished trade attempt.
func RecordTrade(side, outcome string, durationSeconds float64) {
	DefaultMetrics.TradesTotal.WithLabelValues(side, outcome).Inc()
	DefaultMetrics.TradeDuration.WithLabelValues(side).Observe(durationSeconds)
}

// RecordReferralCredit adds lamports to the referral credit counter.
func RecordReferralCredit(lamports uint64) {
	DefaultMetrics.ReferralCredit.Add(float64(lamports))
}

// RecordQuote records a route service request.
func RecordQuote(operation string, seconds float64, err error) {
	DefaultMetrics.QuoteLatency.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.QuoteErrors.WithLabelValues(operation).Inc()
	}
}

// RecordBundleSubmission records a sendBundle outcome.
func RecordBundleSubmission(outcome string) {
	DefaultMetrics.BundleSubmissions.WithLabelValues(outcome).Inc()
}

// RecordBundleStatus records a polled bundle status.
func RecordBundleStatus(status string) {
	DefaultMetrics.BundleOutcomes.WithLabelValues(status).Inc()
}

// RecordConfirmation records a confirmation job entering state.
func RecordConfirmation(state string, attempts int) {
	DefaultMetrics.ConfirmationOutcomes.WithLabelValues(state).Inc()
	DefaultMetrics.ConfirmationAttempts.Observe(float64(attempts))
}

// SetQueueDepth updates the pending jobs gauge.
func SetQueueDepth(n int) {
	DefaultMetrics.SchedulerQueueDepth.Set(float64(n))
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
