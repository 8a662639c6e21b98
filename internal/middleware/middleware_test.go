// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/tractionsync/internal/logging"
	"github.com/tomtom215/tractionsync/internal/metrics"
)

func TestRequestID(t *testing.T) {
	t.Parallel()

	var seenRequest, seenRun string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenRequest = logging.RequestIDFromContext(r.Context())
		seenRun = logging.RunIDFromContext(r.Context())
	}))

	tests := []struct {
		name     string
		upstream string
		keep     bool
	}{
		{name: "generated", upstream: ""},
		{name: "propagated", upstream: "proxy-123", keep: true},
		{name: "oversized replaced", upstream: strings.Repeat("x", 200)},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		if tt.upstream != "" {
			req.Header.Set(RequestIDHeader, tt.upstream)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		got := rec.Header().Get(RequestIDHeader)
		if got == "" {
			t.Errorf("%s: response header empty", tt.name)
		}
		if tt.keep && got != tt.upstream {
			t.Errorf("%s: header = %q, want %q", tt.name, got, tt.upstream)
		}
		if !tt.keep && got == tt.upstream {
			t.Errorf("%s: header kept %q, want a generated id", tt.name, got)
		}
		if seenRequest != got {
			t.Errorf("%s: context request id = %q, want %q", tt.name, seenRequest, got)
		}
		if len(seenRun) != 8 {
			t.Errorf("%s: run id = %q, want 8 chars", tt.name, seenRun)
		}
	}
}

func TestPrometheusMetricsUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics)
	r.Post("/api/v1/pipelines/{pipeline}/import", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	counter := metrics.APIRequestsTotal.WithLabelValues(http.MethodPost, "/api/v1/pipelines/{pipeline}/import", "202")
	before := testutil.ToFloat64(counter)

	for _, p := range []string{"sessions", "memberships"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/pipelines/"+p+"/import", nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("requests recorded under route pattern = %v, want 2", got)
	}
}

func TestPerformanceMonitor(t *testing.T) {
	t.Parallel()

	pm := NewPerformanceMonitor(3, time.Hour)
	for i, d := range []time.Duration{50, 10, 20, 30} {
		endpoint := "GET /a"
		if i == 3 {
			endpoint = "GET /b"
		}
		pm.Record(RequestSample{Endpoint: endpoint, Duration: d * time.Millisecond})
	}

	stats := pm.Stats()
	if len(stats) != 2 {
		t.Fatalf("len(Stats()) = %d, want 2", len(stats))
	}
	a := stats[0]
	if a.Endpoint != "GET /a" || a.Requests != 2 {
		t.Errorf("stats[0] = %+v, want GET /a with 2 requests (oldest evicted)", a)
	}
	if a.MaxMS != 20 || a.P50MS != 10 || a.AvgMS != 15 {
		t.Errorf("stats[0] = %+v, want max 20, p50 10, avg 15", a)
	}

	r := chi.NewRouter()
	r.Use(pm.Middleware)
	r.Get("/status", func(http.ResponseWriter, *http.Request) {})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/status", nil))

	found := false
	for _, s := range pm.Stats() {
		if s.Endpoint == "GET /status" {
			found = true
		}
	}
	if !found {
		t.Errorf("middleware did not record GET /status: %+v", pm.Stats())
	}
}

func TestCompression(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("tractionrec ", 200)
	h := Compression(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = io.WriteString(w, body)
	}))

	t.Run("gzip accepted", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		req.Header.Set("Accept-Encoding", "gzip, deflate")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got := rec.Header().Get("Content-Encoding"); got != "gzip" {
			t.Fatalf("Content-Encoding = %q, want gzip", got)
		}
		zr, err := gzip.NewReader(rec.Body)
		if err != nil {
			t.Fatalf("gzip.NewReader() error = %v", err)
		}
		got, err := io.ReadAll(zr)
		if err != nil {
			t.Fatalf("read gzip body: %v", err)
		}
		if string(got) != body {
			t.Errorf("decompressed body length = %d, want %d", len(got), len(body))
		}
	})

	t.Run("plain", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if got := rec.Header().Get("Content-Encoding"); got != "" {
			t.Errorf("Content-Encoding = %q, want none", got)
		}
		if rec.Body.String() != body {
			t.Error("plain body altered")
		}
	})

	t.Run("other content types untouched", func(t *testing.T) {
		t.Parallel()
		img := Compression(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			_, _ = io.WriteString(w, body)
		}))
		req := httptest.NewRequest(http.MethodGet, "/logo.png", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		rec := httptest.NewRecorder()
		img.ServeHTTP(rec, req)
		if got := rec.Header().Get("Content-Encoding"); got != "" {
			t.Errorf("Content-Encoding = %q, want none", got)
		}
	})
}
