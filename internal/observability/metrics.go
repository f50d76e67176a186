// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch error kinds used as the "kind" label.
const (
	FetchErrorTransient = "transient"
	FetchErrorPermanent = "permanent"
	FetchErrorMalformed = "malformed"
	FetchErrorSink      = "sink"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	PagesFetched     prometheus.Counter
	PointsStored     prometheus.Counter
	TokensUpserted   prometheus.Counter
	FetchErrors      *prometheus.CounterVec
	Retries          *prometheus.CounterVec
	PointsPruned     prometheus.Counter
	TokenCursor      *prometheus.GaugeVec
	CyclesTotal      *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	ProviderLatency  *prometheus.HistogramVec
	ProviderFailures *prometheus.CounterVec

	// Chart metrics
	AggregationLatency prometheus.Histogram
	AggregationErrors  prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulIngestion prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "token_chart_lab"
	}
	f := promauto.With(reg)

	return &Metrics{
		PagesFetched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "pages_fetched_total",
			Help:      "Total number of non-empty provider pages fetched",
		}),
		PointsStored: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "points_stored_total",
			Help:      "Total number of new hourly points written to storage",
		}),
		TokensUpserted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "tokens_upserted_total",
			Help:      "Total number of token metadata rows upserted",
		}),
		FetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "fetch_errors_total",
			Help:      "Token fetch loops aborted, by error kind",
		}, []string{"kind"}),
		Retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "retries_total",
			Help:      "Provider request retries by operation",
		}, []string{"operation"}),
		PointsPruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "points_pruned_total",
			Help:      "Total number of points removed by retention",
		}),
		TokenCursor: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "token_cursor_unix",
			Help:      "Last committed period start per token",
		}, []string{"token"}),
		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "cycles_total",
			Help:      "Ingestion cycles by status",
		}, []string{"status"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "cycle_duration_seconds",
			Help:      "Ingestion cycle duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		ProviderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "subgraph",
			Name:      "request_latency_seconds",
			Help:      "Subgraph request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		ProviderFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subgraph",
			Name:      "request_failures_total",
			Help:      "Failed subgraph requests by operation",
		}, []string{"operation"}),

		AggregationLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chart",
			Name:      "aggregation_latency_seconds",
			Help:      "Candle aggregation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		AggregationErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chart",
			Name:      "aggregation_errors_total",
			Help:      "Total number of failed aggregations",
		}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastSuccessfulIngestion: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingestion_timestamp",
			Help:      "Unix timestamp of last completed ingestion cycle",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", prometheus.DefaultRegisterer)

// RecordPageFetched counts one non-empty provider page.
func RecordPageFetched() {
	DefaultMetrics.PagesFetched.Inc()
}

// RecordPointsStored adds newly stored points.
func RecordPointsStored(n int) {
	DefaultMetrics.PointsStored.Add(float64(n))
}

// RecordTokensUpserted adds upserted metadata rows.
func RecordTokensUpserted(n int) {
	DefaultMetrics.TokensUpserted.Add(float64(n))
}

// RecordFetchError counts an aborted token loop.
func RecordFetchError(kind string) {
	DefaultMetrics.FetchErrors.WithLabelValues(kind).Inc()
}

// RecordRetry counts a retried provider request.
func RecordRetry(operation string) {
	DefaultMetrics.Retries.WithLabelValues(operation).Inc()
}

// RecordPruned adds rows removed by retention.
func RecordPruned(n int64) {
	DefaultMetrics.PointsPruned.Add(float64(n))
}

// UpdateTokenCursor sets the committed boundary for a token.
func UpdateTokenCursor(tokenID string, cursor int64) {
	DefaultMetrics.TokenCursor.WithLabelValues(tokenID).Set(float64(cursor))
}

// RecordCycle records a finished ingestion cycle.
func RecordCycle(status string, durationSeconds float64) {
	DefaultMetrics.CyclesTotal.WithLabelValues(status).Inc()
	DefaultMetrics.CycleDuration.Observe(durationSeconds)
	if status == "success" {
		DefaultMetrics.LastSuccessfulIngestion.Set(float64(time.Now().Unix()))
	}
}

// RecordProviderRequest records subgraph request metrics.
func RecordProviderRequest(operation string, seconds float64, err error) {
	DefaultMetrics.ProviderLatency.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.ProviderFailures.WithLabelValues(operation).Inc()
	}
}

// RecordAggregation records candle aggregation metrics.
func RecordAggregation(seconds float64, err error) {
	DefaultMetrics.AggregationLatency.Observe(seconds)
	if err != nil {
		DefaultMetrics.AggregationErrors.Inc()
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
