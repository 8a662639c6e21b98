// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

// Package lock keeps two import runs of the same pipeline from overlapping.
//
// Locks expire after their TTL (1200 seconds by default) so a crashed run
// cannot block imports forever. The badger backend lives in the local state
// database; the redis backend is shared between hosts.
package lock
