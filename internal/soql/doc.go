// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

// Package soql builds SOQL SELECT statements for the TractionRec query
// endpoint. Plain conditions are joined with AND; anything needing OR goes
// through AddCustomCondition as a literal expression.
package soql
