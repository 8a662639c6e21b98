// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tractionsync/internal/config"
	tractionimport "github.com/tomtom215/tractionsync/internal/import"
	"github.com/tomtom215/tractionsync/internal/middleware"
	"github.com/tomtom215/tractionsync/internal/queue"
)

type fakeImporter struct {
	enabled bool
	dirs    []string
	last    *tractionimport.Summary
}

func (f *fakeImporter) IsEnabled() bool                    { return f.enabled }
func (f *fakeImporter) JSONDirectories() ([]string, error) { return f.dirs, nil }
func (f *fakeImporter) Status(context.Context) (*tractionimport.Summary, error) {
	return f.last, nil
}

type fakeQueue struct {
	mu   sync.Mutex
	msgs []queue.Message
	err  error
}

func (f *fakeQueue) Enqueue(_ context.Context, msg queue.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if err := msg.Validate(); err != nil {
		return "", err
	}
	f.msgs = append(f.msgs, msg)
	return "entry-" + string(rune('a'+len(f.msgs)-1)), nil
}

func (f *fakeQueue) Stats(context.Context) (queue.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return queue.Stats{Pending: len(f.msgs)}, nil
}

type fakeJobs struct {
	release chan struct{}
	mu      sync.Mutex
	ran     []string
}

func (f *fakeJobs) Trigger(_ context.Context, name string) error {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran = append(f.ran, name)
	return nil
}

type harness struct {
	handler *Handler
	server  http.Handler
	queue   *fakeQueue
	jobs    *fakeJobs
}

func newHarness(t *testing.T, mutate func(*Deps)) *harness {
	t.Helper()
	q := &fakeQueue{}
	jobs := &fakeJobs{}
	deps := Deps{
		Pipelines: map[string]Pipeline{
			"sessions": {
				FetchEnabled: true,
				Importer: &fakeImporter{
					enabled: true,
					dirs:    []string{"/data/json/202601021505", "/data/json/202601021504"},
					last:    &tractionimport.Summary{Status: "completed", Pipeline: "sessions", Outcome: tractionimport.OutcomeImported},
				},
			},
			"memberships": {Importer: &fakeImporter{}},
		},
		Queue:       q,
		Jobs:        jobs,
		Checks:      map[string]func(context.Context) error{"store": func(context.Context) error { return nil }},
		Performance: middleware.NewPerformanceMonitor(100, time.Second),
	}
	if mutate != nil {
		mutate(&deps)
	}
	h := NewHandler(deps)
	return &harness{
		handler: h,
		server:  NewRouter(h, config.ServerConfig{RateLimitRequests: 1000, RateLimitWindow: time.Minute}),
		queue:   q,
		jobs:    jobs,
	}
}

func (h *harness) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)

	var resp Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return rec, resp
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	rec, resp := h.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || !resp.Success {
		t.Errorf("GET /healthz = %d %+v, want 200 success", rec.Code, resp)
	}
	if resp.Meta == nil || resp.Meta.RequestID == "" {
		t.Errorf("meta = %+v, want request id", resp.Meta)
	}

	sick := newHarness(t, func(d *Deps) {
		d.Checks["queue"] = func(context.Context) error { return errors.New("closed") }
	})
	rec, resp = sick.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable || resp.Error == nil {
		t.Fatalf("GET /healthz = %d, want 503", rec.Code)
	}
	details, _ := resp.Error.Details.(map[string]interface{})
	if details["queue"] != "closed" {
		t.Errorf("details = %v, want queue: closed", resp.Error.Details)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.do(t, http.MethodGet, "/healthz", "")
	rec, _ := h.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "api_requests_total") {
		t.Error("/metrics does not expose api_requests_total")
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	rec, resp := h.do(t, http.MethodGet, "/api/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/v1/status = %d, want 200", rec.Code)
	}

	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("re-marshal data: %v", err)
	}
	var status StatusResponse
	if err := json.Unmarshal(raw, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	s := status.Pipelines["sessions"]
	if !s.Enabled || !s.FetchEnabled || s.PendingDirectories != 2 {
		t.Errorf("sessions = %+v, want enabled, fetch enabled, 2 pending", s)
	}
	if s.LastRun == nil || s.LastRun.Outcome != tractionimport.OutcomeImported {
		t.Errorf("sessions last run = %+v, want imported", s.LastRun)
	}
	if m := status.Pipelines["memberships"]; m.Enabled || m.LastRun != nil {
		t.Errorf("memberships = %+v, want disabled without runs", m)
	}
}

func TestImport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		body       string
		wantCode   int
		wantQueued int
	}{
		{name: "queues each directory", path: "/api/v1/pipelines/sessions/import", wantCode: http.StatusAccepted, wantQueued: 2},
		{name: "with options", path: "/api/v1/pipelines/sessions/import", body: `{"sync":true,"update":true}`, wantCode: http.StatusAccepted, wantQueued: 2},
		{name: "bad body", path: "/api/v1/pipelines/sessions/import", body: `{"sync":`, wantCode: http.StatusBadRequest},
		{name: "disabled", path: "/api/v1/pipelines/memberships/import", wantCode: http.StatusConflict},
		{name: "unknown", path: "/api/v1/pipelines/programs/import", wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, nil)
			rec, _ := h.do(t, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("POST %s = %d, want %d: %s", tt.path, rec.Code, tt.wantCode, rec.Body.String())
			}
			if got := len(h.queue.msgs); got != tt.wantQueued {
				t.Fatalf("queued %d messages, want %d", got, tt.wantQueued)
			}
			if tt.wantQueued == 0 {
				return
			}
			first := h.queue.msgs[0]
			if first.Directory != "/data/json/202601021504" || first.Type != queue.TypeImport {
				t.Errorf("first message = %+v, want oldest directory first", first)
			}
			wantSync := strings.Contains(tt.body, "sync")
			if first.Options.Sync != wantSync || first.Options.Update != wantSync {
				t.Errorf("options = %+v, want sync and update %v", first.Options, wantSync)
			}
		})
	}
}

func TestImportNothingWaiting(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(d *Deps) {
		d.Pipelines["sessions"] = Pipeline{Importer: &fakeImporter{enabled: true}}
	})
	rec, resp := h.do(t, http.MethodPost, "/api/v1/pipelines/sessions/import", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST import = %d, want 200", rec.Code)
	}
	data, _ := resp.Data.(map[string]interface{})
	if data["message"] != tractionimport.OutcomeNothingToImport.Notice("sessions") {
		t.Errorf("message = %v, want nothing to import notice", data["message"])
	}
}

func TestImportQueueFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.queue.err = queue.ErrQueueClosed
	rec, resp := h.do(t, http.MethodPost, "/api/v1/pipelines/sessions/import", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("POST import = %d, want 500", rec.Code)
	}
	if strings.Contains(resp.Error.Message, "closed") {
		t.Errorf("error message leaks cause: %q", resp.Error.Message)
	}
}

func TestCleanup(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	rec, _ := h.do(t, http.MethodPost, "/api/v1/pipelines/memberships/cleanup", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST cleanup = %d, want 202", rec.Code)
	}
	if len(h.queue.msgs) != 1 || h.queue.msgs[0].Type != queue.TypeCleanup || h.queue.msgs[0].Pipeline != "memberships" {
		t.Errorf("queued = %+v, want one memberships cleanup", h.queue.msgs)
	}
}

func TestFetch(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.jobs.release = make(chan struct{})

	rec, _ := h.do(t, http.MethodPost, "/api/v1/pipelines/sessions/fetch", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first fetch = %d, want 202", rec.Code)
	}
	rec, _ = h.do(t, http.MethodPost, "/api/v1/pipelines/sessions/fetch", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("concurrent fetch = %d, want 409", rec.Code)
	}

	close(h.jobs.release)
	h.handler.Wait()
	if len(h.jobs.ran) != 1 || h.jobs.ran[0] != "sessions-fetch" {
		t.Errorf("jobs ran = %v, want [sessions-fetch]", h.jobs.ran)
	}

	rec, _ = h.do(t, http.MethodPost, "/api/v1/pipelines/sessions/fetch", "")
	if rec.Code != http.StatusAccepted {
		t.Errorf("fetch after completion = %d, want 202", rec.Code)
	}
	h.handler.Wait()

	rec, _ = h.do(t, http.MethodPost, "/api/v1/pipelines/memberships/fetch", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("fetch with fetching disabled = %d, want 409", rec.Code)
	}
}

func TestFetchWithoutScheduler(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(d *Deps) { d.Jobs = nil })
	rec, _ := h.do(t, http.MethodPost, "/api/v1/pipelines/sessions/fetch", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("fetch = %d, want 503", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.server = NewRouter(h.handler, config.ServerConfig{RateLimitRequests: 2, RateLimitWindow: time.Minute})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec, _ := h.do(t, http.MethodGet, "/api/v1/status", "")
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v, want 200 then 429", codes)
	}
	if rec, _ := h.do(t, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("/healthz throttled: %d", rec.Code)
	}
}
