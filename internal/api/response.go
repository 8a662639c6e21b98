// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tractionsync/internal/logging"
)

// Response is the envelope of every admin API response.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Error is the error half of the envelope.
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Meta carries tracing data.
type Meta struct {
	RequestID  string    `json:"request_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
}

// Error codes.
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// responseWriter writes the envelope for one request.
type responseWriter struct {
	w     http.ResponseWriter
	r     *http.Request
	start time.Time
}

func newResponseWriter(w http.ResponseWriter, r *http.Request) *responseWriter {
	return &responseWriter{w: w, r: r, start: time.Now()}
}

func (rw *responseWriter) meta() *Meta {
	return &Meta{
		RequestID:  logging.RequestIDFromContext(rw.r.Context()),
		Timestamp:  time.Now(),
		DurationMs: time.Since(rw.start).Milliseconds(),
	}
}

func (rw *responseWriter) success(status int, data interface{}) {
	rw.writeJSON(status, Response{Success: true, Data: data, Meta: rw.meta()})
}

// OK writes 200.
func (rw *responseWriter) OK(data interface{}) {
	rw.success(http.StatusOK, data)
}

// Accepted writes 202 for work handed to the queue or a background job.
func (rw *responseWriter) Accepted(data interface{}) {
	rw.success(http.StatusAccepted, data)
}

func (rw *responseWriter) fail(status int, code, message string, details interface{}) {
	rw.writeJSON(status, Response{
		Error: &Error{Code: code, Message: message, Details: details},
		Meta:  rw.meta(),
	})
}

// BadRequest writes 400.
func (rw *responseWriter) BadRequest(message string) {
	rw.fail(http.StatusBadRequest, ErrCodeBadRequest, message, nil)
}

// NotFound writes 404.
func (rw *responseWriter) NotFound(message string) {
	rw.fail(http.StatusNotFound, ErrCodeNotFound, message, nil)
}

// Conflict writes 409, used for disabled pipelines and fetches already
// in progress.
func (rw *responseWriter) Conflict(message string) {
	rw.fail(http.StatusConflict, ErrCodeConflict, message, nil)
}

// InternalError logs err and writes 500 without leaking it.
func (rw *responseWriter) InternalError(message string, err error) {
	logging.Ctx(rw.r.Context()).Error().Err(err).Str("path", rw.r.URL.Path).Msg(message)
	rw.fail(http.StatusInternalServerError, ErrCodeInternalError, message, nil)
}

// ServiceUnavailable writes 503 with per-check details.
func (rw *responseWriter) ServiceUnavailable(message string, details interface{}) {
	rw.fail(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, message, details)
}

func (rw *responseWriter) writeJSON(status int, v interface{}) {
	rw.w.Header().Set("Content-Type", "application/json")
	rw.w.WriteHeader(status)
	if err := json.NewEncoder(rw.w).Encode(v); err != nil {
		logging.Ctx(rw.r.Context()).Error().Err(err).Msg("Failed to encode response")
	}
}
