// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

/*
Package migrate runs the migrations that turn staged JSON files into
content nodes.

A migration reads one file from the staging directory and processes it row
by row in three phases:

 1. decode and transform; a skipped Result leaves the row out
 2. commit the node and its source map entry; rows whose content hash is
    unchanged are left alone unless Options.Update is set
 3. materialize sub-records (session time paragraphs) for committed rows

With Options.Sync, nodes whose source id is absent from the file are
deleted afterwards. Each migration's status is importing while it runs and
idle afterwards; the importer refuses to start while any migration of its
group is not idle.

Session migrations run in dependency order: programs, categories, classes,
sessions.
*/
package migrate
