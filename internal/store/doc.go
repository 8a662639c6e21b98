// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

/*
Package store persists imported content in DuckDB.

Tables:
  - nodes: destination content (sessions, classes, programs, categories,
    memberships). Type specific values live in a JSON encoded fields column.
  - paragraphs: sub-records owned by a node, such as session time windows.
    Deleting a node leaves its paragraphs behind until the cleaner collects
    them.
  - migrate_map: source id to node id per migration, with a content hash
    used to skip unchanged rows.
  - migrate_status: the run state of each migration.

Store also implements locations.NodeFinder.
*/
package store
