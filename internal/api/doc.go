// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

/*
Package api is the admin HTTP API started by serve.

The API never imports or deletes files itself. Import and cleanup requests
become queue messages for the worker, and fetch requests trigger the
scheduler's fetch job in the background, so a request returns as soon as
the work is handed off (202 Accepted).

Every response uses one envelope:

	{"success": true, "data": {...}, "meta": {"request_id": "...", "timestamp": "...", "duration_ms": 3}}
	{"success": false, "error": {"code": "CONFLICT", "message": "..."}, "meta": {...}}

/api/v1 is rate limited per client IP with httprate. /healthz and /metrics
are not, so probes and scrapers are never throttled.
*/
package api
