// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

/*
Package tractionimport runs fetched TractionRec working directories through
the migrations of a pipeline.

Each pipeline (sessions, memberships) gets its own Importer with its own
directory root, lock name and migration group. A directory import copies the
directory's JSON files into the staging root, runs every idle migration
against them and then archives the directory under backup/ or deletes it.

Two call paths share the same preflight: the enabled gate, the pipeline lock
and the migration status check.

  - Run imports every waiting directory, oldest first, under one lock. A
    failing directory is logged and left in place; the run moves on.
  - ImportOne imports a single directory, the queue worker path.

Directory imports only happen in the CLI and worker execution contexts. An
importer built with ExecHTTP refuses them.

Run statistics are kept in a RunState (BadgerDB in production) and exposed
through Status and LastRun.
*/
package tractionimport
