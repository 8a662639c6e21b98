// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	runIDKey     contextKey = "run_id"
	pipelineKey  contextKey = "pipeline"
	requestIDKey contextKey = "request_id"
)

// GenerateRunID returns the first 8 characters of a UUID.
func GenerateRunID() string {
	return uuid.New().String()[:8]
}

// ContextWithRunID tags ctx with the id of a fetch, import or queue pass.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// ContextWithNewRunID tags ctx with a freshly generated run id.
func ContextWithNewRunID(ctx context.Context) context.Context {
	return ContextWithRunID(ctx, GenerateRunID())
}

// RunIDFromContext returns the run id or "".
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithPipeline tags ctx with the pipeline name (sessions, memberships).
func ContextWithPipeline(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, pipelineKey, name)
}

// PipelineFromContext returns the pipeline name or "".
func PipelineFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(pipelineKey).(string); ok {
		return name
	}
	return ""
}

// ContextWithRequestID tags ctx with the admin API request id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns the global logger with run_id, pipeline and request_id
// fields from ctx.
//
//	logging.Ctx(ctx).Info().Str("dir", dir).Msg("Directory imported")
func Ctx(ctx context.Context) *zerolog.Logger {
	logCtx := with()
	if id := RunIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("run_id", id)
	}
	if name := PipelineFromContext(ctx); name != "" {
		logCtx = logCtx.Str("pipeline", name)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("request_id", id)
	}
	l := logCtx.Logger()
	return &l
}
