// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

/*
Package services adapts TractionSync components to suture.Service.

Each wrapper turns a component lifecycle (ListenAndServe, Router.Run, an
already started server) into a context-aware Serve that returns when the
context is canceled and implements fmt.Stringer for supervisor logs.

  - HTTPServerService: the admin API *http.Server with graceful shutdown.
  - RouterService: a watermill router, rebuilt on every restart.
  - EmbeddedNATSService: shutdown of the in-process NATS server.

The cron scheduler implements suture.Service itself and needs no wrapper.
*/
package services
