// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

// Package jsonstream writes large JSON arrays to disk incrementally, so a
// paginated fetch never holds more than one page of records in memory.
package jsonstream
