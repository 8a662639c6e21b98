// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package transform

// Result is the outcome of one field transformation: a value, or the reason
// the whole source row must be left out of the batch.
type Result[T any] struct {
	Value T
	Skip  string
}

// Ok wraps a value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// SkipRow marks the row as unmappable.
func SkipRow[T any](reason string) Result[T] {
	if reason == "" {
		reason = "skipped"
	}
	return Result[T]{Skip: reason}
}

// Skipped reports whether the row must be skipped.
func (r Result[T]) Skipped() bool {
	return r.Skip != ""
}
