// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Remote API Metrics
	RemoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tractionrec_request_duration_seconds",
			Help:    "Duration of TractionRec API requests in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"}, // "token", "query", "next_page", "send"
	)

	RemoteRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tractionrec_request_errors_total",
			Help: "Total number of failed TractionRec API requests",
		},
		[]string{"operation", "error_type"},
	)

	RemoteRateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tractionrec_rate_limit_hits_total",
			Help: "Total number of HTTP 429 responses from TractionRec",
		},
	)

	// Fetch Metrics
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetch_duration_seconds",
			Help:    "Duration of complete fetch runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"pipeline"},
	)

	FetchStepRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_step_records_total",
			Help: "Total number of records written by fetch steps",
		},
		[]string{"pipeline", "step"},
	)

	FetchStepErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_step_errors_total",
			Help: "Total number of fetch steps that ended with an error marker",
		},
		[]string{"pipeline", "step"},
	)

	FetchLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fetch_last_success_timestamp",
			Help: "Unix timestamp of the last completed fetch",
		},
		[]string{"pipeline"},
	)

	// Import Metrics
	ImportRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "import_runs_total",
			Help: "Total number of import passes by outcome",
		},
		[]string{"pipeline", "outcome"}, // "imported", "disabled", "locked", "not_idle", "nothing_to_import"
	)

	ImportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "import_duration_seconds",
			Help:    "Duration of import passes in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 300, 900},
		},
		[]string{"pipeline"},
	)

	ImportDirectories = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "import_directories_total",
			Help: "Total number of working directories processed",
		},
		[]string{"pipeline", "result"}, // "success", "failure", "empty"
	)

	ImportRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "import_rows_total",
			Help: "Total number of source rows handled by migrations",
		},
		[]string{"migration", "result"}, // "imported", "updated", "unchanged", "skipped", "failed", "deleted"
	)

	ImportLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "import_last_success_timestamp",
			Help: "Unix timestamp of the last successful import pass",
		},
		[]string{"pipeline"},
	)

	LockAcquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "import_lock_acquisitions_total",
			Help: "Total number of lock acquisition attempts",
		},
		[]string{"name", "result"}, // "acquired", "held", "error"
	)

	// Queue Metrics
	QueueEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_enqueued_total",
			Help: "Total number of messages added to the import queue",
		},
		[]string{"type"},
	)

	QueueProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_processed_total",
			Help: "Total number of queue messages processed",
		},
		[]string{"type", "result"}, // "success", "retry", "deferred", "dead", "invalid"
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Current number of queue entries by state",
		},
		[]string{"state"}, // "pending", "leased", "dead"
	)

	// Event Metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total number of events published",
		},
		[]string{"topic"},
	)

	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_consumed_total",
			Help: "Total number of events handled",
		},
		[]string{"topic", "result"},
	)

	// Cleanup Metrics
	CleanupRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cleanup_removed_total",
			Help: "Total number of items removed by the cleaner",
		},
		[]string{"pipeline", "kind"}, // "backup", "paragraph"
	)

	// Scheduler Metrics
	ScheduledJobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduled_job_runs_total",
			Help: "Total number of scheduled job runs",
		},
		[]string{"job", "result"},
	)

	ScheduledJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduled_job_duration_seconds",
			Help:    "Duration of scheduled job runs in seconds",
			Buckets: []float64{0.1, 1, 5, 30, 60, 300, 900},
		},
		[]string{"job"},
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// Admin API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of admin API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of admin API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of in-flight admin API requests",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tractionsync_info",
			Help: "Build information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordRemoteRequest records one TractionRec API call.
func RecordRemoteRequest(operation string, duration time.Duration, err error) {
	RemoteRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		RemoteRequestErrors.WithLabelValues(operation, ErrorType(err)).Inc()
	}
}

// RecordFetch records a completed fetch run.
func RecordFetch(pipeline string, duration time.Duration) {
	FetchDuration.WithLabelValues(pipeline).Observe(duration.Seconds())
	FetchLastSuccess.WithLabelValues(pipeline).Set(float64(time.Now().Unix()))
}

// RecordFetchStep records the outcome of one fetch step.
func RecordFetchStep(pipeline, step string, records int, err error) {
	if err != nil {
		FetchStepErrors.WithLabelValues(pipeline, step).Inc()
		return
	}
	FetchStepRecords.WithLabelValues(pipeline, step).Add(float64(records))
}

// RecordImportRun records an import pass by outcome.
func RecordImportRun(pipeline, outcome string, duration time.Duration) {
	ImportRuns.WithLabelValues(pipeline, outcome).Inc()
	if outcome == "imported" {
		ImportDuration.WithLabelValues(pipeline).Observe(duration.Seconds())
		ImportLastSuccess.WithLabelValues(pipeline).Set(float64(time.Now().Unix()))
	}
}

// RecordDirectoryImport records the result of importing one working directory.
func RecordDirectoryImport(pipeline, result string) {
	ImportDirectories.WithLabelValues(pipeline, result).Inc()
}

// RecordRows adds n rows with the given result for a migration.
func RecordRows(migration, result string, n int) {
	if n <= 0 {
		return
	}
	ImportRows.WithLabelValues(migration, result).Add(float64(n))
}

// RecordLockAttempt records a lock acquisition attempt.
func RecordLockAttempt(name string, acquired bool, err error) {
	result := "held"
	switch {
	case err != nil:
		result = "error"
	case acquired:
		result = "acquired"
	}
	LockAcquisitions.WithLabelValues(name, result).Inc()
}

// RecordQueueResult records the handling of one queue message.
func RecordQueueResult(msgType, result string) {
	QueueProcessed.WithLabelValues(msgType, result).Inc()
}

// UpdateQueueDepth sets the queue depth gauges.
func UpdateQueueDepth(pending, leased, dead int) {
	QueueDepth.WithLabelValues("pending").Set(float64(pending))
	QueueDepth.WithLabelValues("leased").Set(float64(leased))
	QueueDepth.WithLabelValues("dead").Set(float64(dead))
}

// RecordCleanup adds n removed items of kind for a pipeline.
func RecordCleanup(pipeline, kind string, n int) {
	if n <= 0 {
		return
	}
	CleanupRemoved.WithLabelValues(pipeline, kind).Add(float64(n))
}

// RecordScheduledJob records one run of a cron job.
func RecordScheduledJob(job string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	ScheduledJobRuns.WithLabelValues(job, result).Inc()
	ScheduledJobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records an admin API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// ErrorType buckets an error into a small, bounded label value.
func ErrorType(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "circuit breaker"):
		return "circuit_open"
	case strings.Contains(msg, "token"):
		return "auth"
	case strings.Contains(msg, "rate limit"):
		return "rate_limited"
	case strings.Contains(msg, "status"):
		return "http_status"
	case strings.Contains(msg, "decode"), strings.Contains(msg, "unmarshal"):
		return "decode"
	default:
		return "other"
	}
}
