// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package middleware

import (
	"compress/gzip"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// CompressedTypes are the content types the admin API compresses: status
// and run summaries (JSON) and the text exposition format of /metrics.
var CompressedTypes = []string{"application/json", "text/plain"}

var compress = chimw.Compress(gzip.DefaultCompression, CompressedTypes...)

// Compression gzips API responses for clients that accept it. A response
// that already carries a Content-Encoding, like a promhttp reply that
// negotiated gzip itself, is passed through.
func Compression(next http.Handler) http.Handler {
	return compress(next)
}
