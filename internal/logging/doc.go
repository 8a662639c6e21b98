// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

// Package logging provides the zerolog-based global logger used by every
// TractionSync component.
//
// # Quick Start
//
//	logging.Init(logging.FromConfig(cfg.Logging, "import", version))
//	logging.Info().Str("dir", dir).Msg("Fetch completed")
//
// Every line carries the command and version it was written by.
//
// Fetch, import and queue passes run under a run id so their log lines can be
// correlated:
//
//	ctx = logging.ContextWithNewRunID(ctx)
//	ctx = logging.ContextWithPipeline(ctx, "sessions")
//	logging.Ctx(ctx).Warn().Err(err).Msg("Directory import failed")
//
// # Adapters
//
// NewSlogLogger feeds sutureslog, NewWatermillLogger feeds the watermill
// router and publishers. Both write through the same global logger.
//
// # Configuration
//
// Environment variables LOG_LEVEL, LOG_FORMAT and LOG_CALLER are mapped by the
// config package; FromConfig turns that section into a Config.
package logging
