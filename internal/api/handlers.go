// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	tractionimport "github.com/tomtom215/tractionsync/internal/import"
	"github.com/tomtom215/tractionsync/internal/logging"
	"github.com/tomtom215/tractionsync/internal/middleware"
	"github.com/tomtom215/tractionsync/internal/queue"
	"github.com/tomtom215/tractionsync/internal/scheduler"
)

// fetchTimeout bounds a fetch started over HTTP. The request returns at
// once; this only stops a stuck fetch from holding the pipeline forever.
const fetchTimeout = 30 * time.Minute

// ImportStatus is the read side of a pipeline importer.
type ImportStatus interface {
	IsEnabled() bool
	JSONDirectories() ([]string, error)
	Status(ctx context.Context) (*tractionimport.Summary, error)
}

// Queue is the part of the import queue the API uses.
type Queue interface {
	Enqueue(ctx context.Context, msg queue.Message) (string, error)
	Stats(ctx context.Context) (queue.Stats, error)
}

// JobTrigger runs a named scheduler job now.
type JobTrigger interface {
	Trigger(ctx context.Context, name string) error
}

// Pipeline is one pipeline as the API sees it.
type Pipeline struct {
	FetchEnabled bool
	Importer     ImportStatus
}

// Deps are the handler collaborators. Jobs and Performance may be nil.
type Deps struct {
	Pipelines   map[string]Pipeline
	Queue       Queue
	Jobs        JobTrigger
	Checks      map[string]func(ctx context.Context) error
	Performance *middleware.PerformanceMonitor
}

// Handler serves the admin endpoints.
type Handler struct {
	deps Deps

	mu       sync.Mutex
	fetching map[string]bool
	wg       sync.WaitGroup
}

// NewHandler creates a handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps, fetching: make(map[string]bool)}
}

// Wait blocks until background fetches started over HTTP have finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) pipeline(w http.ResponseWriter, r *http.Request) (string, Pipeline, bool) {
	name := chi.URLParam(r, "pipeline")
	p, ok := h.deps.Pipelines[name]
	if !ok {
		newResponseWriter(w, r).NotFound("unknown pipeline: " + name)
		return "", Pipeline{}, false
	}
	return name, p, true
}

// Healthz runs every registered check.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range h.deps.Checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		rw.ServiceUnavailable("unhealthy", failed)
		return
	}
	rw.OK(map[string]string{"status": "ok"})
}

// PipelineStatus is one entry of the status response.
type PipelineStatus struct {
	Enabled            bool                    `json:"enabled"`
	FetchEnabled       bool                    `json:"fetch_enabled"`
	PendingDirectories int                     `json:"pending_directories"`
	LastRun            *tractionimport.Summary `json:"last_run,omitempty"`
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Pipelines   map[string]PipelineStatus  `json:"pipelines"`
	Queue       queue.Stats                `json:"queue"`
	Performance []middleware.EndpointStats `json:"performance,omitempty"`
}

// Status reports pipelines, queue depth and request timings.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)
	resp := StatusResponse{Pipelines: make(map[string]PipelineStatus, len(h.deps.Pipelines))}

	for name, p := range h.deps.Pipelines {
		dirs, err := p.Importer.JSONDirectories()
		if err != nil {
			rw.InternalError("list pending directories", err)
			return
		}
		last, err := p.Importer.Status(r.Context())
		if err != nil {
			rw.InternalError("load run status", err)
			return
		}
		resp.Pipelines[name] = PipelineStatus{
			Enabled:            p.Importer.IsEnabled(),
			FetchEnabled:       p.FetchEnabled,
			PendingDirectories: len(dirs),
			LastRun:            last,
		}
	}

	stats, err := h.deps.Queue.Stats(r.Context())
	if err != nil {
		rw.InternalError("read queue stats", err)
		return
	}
	resp.Queue = stats
	if h.deps.Performance != nil {
		resp.Performance = h.deps.Performance.Stats()
	}
	rw.OK(resp)
}

// ImportRequest is the optional body of the import endpoint.
type ImportRequest struct {
	Sync   bool `json:"sync"`
	Update bool `json:"update"`
}

// QueuedResponse lists the queue entries created by a request.
type QueuedResponse struct {
	Pipeline string   `json:"pipeline"`
	Queued   []string `json:"queued"`
	Message  string   `json:"message,omitempty"`
}

// Import queues every pending working directory of a pipeline. The
// directories are imported by the queue worker, never by the request.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)
	name, p, ok := h.pipeline(w, r)
	if !ok {
		return
	}
	if !p.Importer.IsEnabled() {
		rw.Conflict(tractionimport.OutcomeDisabled.Notice(name))
		return
	}

	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		rw.BadRequest("invalid import request body")
		return
	}

	dirs, err := p.Importer.JSONDirectories()
	if err != nil {
		rw.InternalError("list pending directories", err)
		return
	}
	sort.Strings(dirs)
	if len(dirs) == 0 {
		rw.OK(QueuedResponse{Pipeline: name, Queued: []string{}, Message: tractionimport.OutcomeNothingToImport.Notice(name)})
		return
	}

	queued := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		id, err := h.deps.Queue.Enqueue(r.Context(), queue.Message{
			Type:      queue.TypeImport,
			Pipeline:  name,
			Directory: dir,
			Options:   queue.Options{Sync: req.Sync, Update: req.Update},
		})
		if err != nil {
			rw.InternalError("enqueue import", err)
			return
		}
		queued = append(queued, id)
	}
	logging.Ctx(r.Context()).Info().Str("pipeline", name).Int("directories", len(queued)).Msg("Imports queued over HTTP")
	rw.Accepted(QueuedResponse{Pipeline: name, Queued: queued})
}

// Cleanup queues a backup cleanup for a pipeline.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)
	name, _, ok := h.pipeline(w, r)
	if !ok {
		return
	}
	id, err := h.deps.Queue.Enqueue(r.Context(), queue.Message{Type: queue.TypeCleanup, Pipeline: name})
	if err != nil {
		rw.InternalError("enqueue cleanup", err)
		return
	}
	rw.Accepted(QueuedResponse{Pipeline: name, Queued: []string{id}})
}

// Fetch starts the pipeline's fetch job in the background. Only one fetch
// per pipeline runs at a time through this endpoint.
func (h *Handler) Fetch(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)
	name, p, ok := h.pipeline(w, r)
	if !ok {
		return
	}
	if !p.FetchEnabled {
		rw.Conflict("Fetching is not enabled for the " + name + " pipeline.")
		return
	}
	if h.deps.Jobs == nil {
		rw.ServiceUnavailable("scheduler not running", nil)
		return
	}

	h.mu.Lock()
	if h.fetching[name] {
		h.mu.Unlock()
		rw.Conflict("A fetch of the " + name + " pipeline is already running.")
		return
	}
	h.fetching[name] = true
	h.mu.Unlock()

	job := scheduler.JobName(name, "fetch")
	// Keep the request and run ids for the logs, not the cancellation.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), fetchTimeout)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer cancel()
		defer func() {
			h.mu.Lock()
			delete(h.fetching, name)
			h.mu.Unlock()
		}()
		if err := h.deps.Jobs.Trigger(ctx, job); err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("job", job).Msg("Fetch started over HTTP failed")
		}
	}()

	rw.Accepted(map[string]string{"pipeline": name, "job": job})
}
