// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/tractionsync/internal/logging"
)

// HTTPServer is the part of *http.Server the service drives.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService runs the admin API under supervision. On shutdown it
// stops accepting requests, then waits for work the API started in the
// background (a triggered fetch) within the same timeout.
//
//	svc := services.NewHTTPServerService(server, 10*time.Second)
//	svc.AwaitOnShutdown(handler.Wait)
//	tree.AddAPIService(svc)
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
	await           func()
}

// NewHTTPServerService wraps server. A non-positive shutdownTimeout
// becomes 10s.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{server: server, shutdownTimeout: shutdownTimeout}
}

// AwaitOnShutdown registers fn to block shutdown until background API work
// is done.
func (h *HTTPServerService) AwaitOnShutdown(fn func()) {
	h.await = fn
}

// Serve implements suture.Service. A failed bind is returned so the
// supervisor backs off and retries it.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	listenErr := make(chan error, 1)
	go func() {
		err := h.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		listenErr <- err
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("admin api: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.shutdownTimeout)
	defer cancel()
	if err := h.server.Shutdown(stopCtx); err != nil {
		return fmt.Errorf("admin api shutdown: %w", err)
	}
	<-listenErr
	h.awaitBackground(stopCtx)
	return ctx.Err()
}

func (h *HTTPServerService) awaitBackground(ctx context.Context) {
	if h.await == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		h.await()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logging.Warn().Msg("Admin API stopped with background work still running")
	}
}

func (h *HTTPServerService) String() string {
	return "admin-http-server"
}
