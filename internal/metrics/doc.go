// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

/*
Package metrics provides Prometheus instrumentation for TractionSync.

All collectors are registered with the default registry through promauto and
exposed by the admin API on GET /metrics.

# Metric Families

  - tractionrec_*: remote API latency, errors and 429 responses
  - fetch_*: fetch duration, per-step records and step error markers
  - import_*: import pass outcomes, directories, migration rows, lock attempts
  - queue_*: enqueued and processed messages, queue depth
  - events_*: published and consumed fetch completed events
  - cleanup_removed_total: rotated backups and collected paragraphs
  - duckdb_*: content store query latency
  - circuit_breaker_*: state of the breaker around the remote API

# Usage

	start := time.Now()
	outcome, stats, err := importer.Run(ctx, opts)
	metrics.RecordImportRun(pipeline, string(outcome), time.Since(start))

Label values are kept to small fixed sets. Errors are bucketed through
ErrorType rather than used verbatim.
*/
package metrics
