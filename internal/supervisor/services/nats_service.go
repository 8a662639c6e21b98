// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package services

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"
)

// NATSServer is the lifecycle of an embedded NATS server.
type NATSServer interface {
	IsRunning() bool
	Shutdown(ctx context.Context) error
}

// EmbeddedNATSService owns an embedded NATS server that was started
// before the bus connected to it. It only handles shutdown; a server that
// dies cannot be restarted in place, so the service then stops for good.
type EmbeddedNATSService struct {
	server          NATSServer
	shutdownTimeout time.Duration
	pollInterval    time.Duration
}

// NewEmbeddedNATSService wraps a running server.
func NewEmbeddedNATSService(server NATSServer, shutdownTimeout time.Duration) *EmbeddedNATSService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &EmbeddedNATSService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		pollInterval:    5 * time.Second,
	}
}

// Serve implements suture.Service.
func (s *EmbeddedNATSService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
			defer cancel()
			if err := s.server.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return ctx.Err()
		case <-ticker.C:
			if !s.server.IsRunning() {
				return suture.ErrDoNotRestart
			}
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (s *EmbeddedNATSService) String() string {
	return "embedded-nats-server"
}
