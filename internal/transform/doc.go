// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

// Package transform holds the per-field converters applied while migrating
// TractionRec records. Converters that can reject a row return a Result;
// the caller drops skipped rows from the batch and records the reason.
// Nothing here writes to the store.
package transform
