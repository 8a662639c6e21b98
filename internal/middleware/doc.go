// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

/*
Package middleware holds the net/http middleware of the admin API.

All middleware has the func(http.Handler) http.Handler shape chi expects:

  - RequestID: X-Request-ID propagation plus request and run ids in the
    logging context
  - PrometheusMetrics: api_requests_total, api_request_duration_seconds and
    api_active_requests, labelled by chi route pattern
  - PerformanceMonitor: sliding window of request timings served by the
    status endpoint, with slow request warnings
  - Compression: chi's gzip compressor limited to JSON and text responses

Order matters. RequestID goes first so every later log line carries the
ids; metrics and performance run inside the router so the route pattern is
known when they record:

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.PrometheusMetrics, perf.Middleware, middleware.Compression)
*/
package middleware
