// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

/*
Package tractionrec is the client for the TractionRec (Salesforce) REST API.

Client handles authentication with the OAuth2 JWT bearer grant: an RS256
assertion carrying iss (consumer key), sub (login user), aud (login URL) and
a 60 second exp is exchanged for a bearer token, which is cached until a
request is rejected with 401. Every request passes a token bucket limiter,
the shared circuit breaker and the HTTP 429 retry loop.

Gateway builds one SOQL query per domain concept. Results come back with
keys simplified: the TREX1__ namespace and the __c and __r suffixes are
removed and attributes metadata is dropped.

	client, err := tractionrec.NewClient(&cfg.TractionRec)
	gw := tractionrec.NewGateway(client)
	page, err := gw.LoadCourseOptions(ctx, mapping.MappedIDs())
	for page.NextRecordsURL != "" {
		page, err = gw.LoadNextPage(ctx, page.NextRecordsURL)
	}

Errors: ErrInvalidToken when no token is available and *InvalidResponseError
for non-2xx responses. Gateway methods wrap both with the operation that
failed.
*/
package tractionrec
