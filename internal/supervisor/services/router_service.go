// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package services

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
)

// RouterFactory builds a fresh watermill router. A closed router cannot be
// run again, so every restart asks for a new one.
type RouterFactory func() (*message.Router, error)

// RouterService runs a watermill router under supervision.
type RouterService struct {
	name  string
	build RouterFactory
}

// NewRouterService creates the service.
func NewRouterService(name string, build RouterFactory) *RouterService {
	return &RouterService{name: name, build: build}
}

// Serve implements suture.Service. Router.Run closes the router when ctx
// is canceled, waiting up to the router's own close timeout for handlers.
func (s *RouterService) Serve(ctx context.Context) error {
	router, err := s.build()
	if err != nil {
		return fmt.Errorf("%s: build router: %w", s.name, err)
	}
	if err := router.Run(ctx); err != nil {
		return fmt.Errorf("%s: router stopped: %w", s.name, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	// Run returned without error while still wanted; let suture restart it.
	return fmt.Errorf("%s: router closed unexpectedly", s.name)
}

// String implements fmt.Stringer for suture logging.
func (s *RouterService) String() string {
	return s.name
}
