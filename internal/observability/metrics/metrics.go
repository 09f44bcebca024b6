package metrics

import (
	"database/sql"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "subway_"

	resultSuccess  = "success"
	resultRejected = "rejected"
	resultError    = "error"
)

// Line operations.
const (
	OperationCreateLine    = "create_line"
	OperationUpdateLine    = "update_line"
	OperationDeleteLine    = "delete_line"
	OperationAppendSection = "append_section"
	OperationRemoveSection = "remove_section"
	OperationCreateStation = "create_station"
	OperationDeleteStation = "delete_station"
)

var (
	registerOnce sync.Once

	operationTotal   *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	ruleRejections   *prometheus.CounterVec
	lockWaitLatency  prometheus.Histogram
	httpRequests     *prometheus.CounterVec
	exportTotal      *prometheus.CounterVec
)

// Init registers metrics and DB-backed gauges. db may be nil.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		operationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "operations_total",
				Help: "Total line and station operations by result",
			},
			[]string{"operation", "result"},
		)
		operationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "operation_latency_seconds",
				Help:    "Line and station operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		)
		ruleRejections = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "section_rule_rejections_total",
				Help: "Section changes rejected by chain rules, by kind",
			},
			[]string{"kind"},
		)
		lockWaitLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "line_lock_wait_seconds",
				Help:    "Time spent waiting for the per-line write lock",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
		)
		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "HTTP requests by method and status",
			},
			[]string{"method", "status"},
		)
		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "line_export_total",
				Help: "Line exports by format and result",
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			operationTotal,
			operationLatency,
			ruleRejections,
			lockWaitLatency,
			httpRequests,
			exportTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveOperation records an operation outcome. rejected marks domain rule
// or validation failures as opposed to infrastructure errors.
func ObserveOperation(operation string, err error, rejected bool, duration time.Duration) {
	if operation == "" {
		operation = "unknown"
	}
	result := resultSuccess
	if err != nil {
		result = resultError
		if rejected {
			result = resultRejected
		}
	}
	if operationTotal != nil {
		operationTotal.WithLabelValues(operation, result).Inc()
	}
	if operationLatency != nil {
		operationLatency.WithLabelValues(operation).Observe(duration.Seconds())
	}
}

// IncRuleRejection counts a section change rejected with the given kind.
func IncRuleRejection(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if ruleRejections != nil {
		ruleRejections.WithLabelValues(kind).Inc()
	}
}

// ObserveLockWait records how long a writer waited for a line lock.
func ObserveLockWait(duration time.Duration) {
	if lockWaitLatency != nil {
		lockWaitLatency.Observe(duration.Seconds())
	}
}

// IncHTTPRequest counts a served HTTP request.
func IncHTTPRequest(method string, status int) {
	if httpRequests != nil {
		httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	}
}

// IncExport counts a line export.
func IncExport(format string, err error) {
	if format == "" {
		format = "unknown"
	}
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
}

// Exported result labels for callers and tests.
const (
	ResultSuccess  = resultSuccess
	ResultRejected = resultRejected
	ResultError    = resultError
)
