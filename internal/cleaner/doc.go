// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

// Package cleaner keeps a pipeline's backup directory to its configured size
// and removes session time paragraphs left behind by deleted sessions.
package cleaner
