// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

/*
Package fetch pulls TractionRec data into timestamped working directories.

A Fetcher runs an ordered list of steps, each writing one or two JSON array
files into root/json/YYYYMMDDHHmm/:

	programs     programs.json, program_categories.json
	classes      classes.json (streamed, paginated)
	sessions     sessions.json (streamed, paginated, mapped locations only)
	locations    locations.json (locations with a city)
	memberships  memberships.json (grouped by category)

A failing step is recorded as an error in the step summary and the others
still run. Once every step has run, the fetch completed event is published
with the directory and the summaries; the import queue picks it up from
there. The fetcher never calls the importer.

FetchTotalAvailable is separate from Fetch: it returns the capacity snapshot
in memory for the update-total-available command.
*/
package fetch
