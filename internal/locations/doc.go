// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

/*
Package locations maps TractionRec locations to local branch and camp nodes.

The mapping is configured as text, one externalId:localId:comment per line:

	a0B5f000001XyZ1:12:Downtown YMCA
	a0B5f000001XyZ2:15

The mapped external ids scope the session and capacity queries. During
import, Resolver looks a location up in the mapping and falls back to an
exact title match when the location is not mapped.
*/
package locations
