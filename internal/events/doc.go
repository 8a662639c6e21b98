// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

/*
Package events carries the fetch completed event from the fetcher to the
import queue over Watermill.

Two transports are supported:

  - channel: an in-process gochannel pub/sub. Publishing blocks until the
    subscriber acknowledges, so the import is queued before Fetch returns.
  - nats: core NATS through watermill-nats, for running the fetcher and the
    queue worker in separate processes.

Routers built by Bus.Router recover from handler panics and retry failed
handlers with exponential backoff.
*/
package events
