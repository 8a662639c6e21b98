// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tomtom215/tractionsync/internal/cache"
	"github.com/tomtom215/tractionsync/internal/cleaner"
	"github.com/tomtom215/tractionsync/internal/config"
	"github.com/tomtom215/tractionsync/internal/events"
	"github.com/tomtom215/tractionsync/internal/fetch"
	tractionimport "github.com/tomtom215/tractionsync/internal/import"
	"github.com/tomtom215/tractionsync/internal/locations"
	"github.com/tomtom215/tractionsync/internal/lock"
	"github.com/tomtom215/tractionsync/internal/logging"
	"github.com/tomtom215/tractionsync/internal/migrate"
	"github.com/tomtom215/tractionsync/internal/queue"
	"github.com/tomtom215/tractionsync/internal/state"
	"github.com/tomtom215/tractionsync/internal/store"
	"github.com/tomtom215/tractionsync/internal/tractionrec"
	"github.com/tomtom215/tractionsync/internal/transform"
)

// app holds the components every command shares. Remote access is built
// lazily so import-only commands run without credentials.
type app struct {
	cfg  *config.Config
	exec tractionimport.ExecContext

	state   *state.DB
	store   *store.Store
	locker  lock.Locker
	engine  *migrate.Engine
	queue   *queue.Queue
	mapping *locations.Mapping

	importers map[string]*tractionimport.Importer
	cleaners  map[string]*cleaner.Cleaner

	gateway *tractionrec.Gateway
	closers []func() error
}

func newApp(cfg *config.Config, exec tractionimport.ExecContext) (_ *app, err error) {
	a := &app{
		cfg:       cfg,
		exec:      exec,
		mapping:   locations.Parse(cfg.Locations.Mapping),
		importers: make(map[string]*tractionimport.Importer),
		cleaners:  make(map[string]*cleaner.Cleaner),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.state, err = state.Open(cfg.State); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.state.Close)

	if a.store, err = store.Open(cfg.Store); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)

	if a.locker, err = lock.New(cfg.Lock, a.state.DB); err != nil {
		return nil, err
	}
	if c, ok := a.locker.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	a.queue = queue.New(a.state.DB, cfg.Queue)
	a.closers = append(a.closers, a.queue.Close)

	clock, err := transform.NewClock(cfg.TractionRec.Timezone)
	if err != nil {
		return nil, err
	}
	resolver := &locations.Resolver{
		Mapping: a.mapping,
		Nodes:   a.store,
		Titles:  cache.NewLRU[string, int64](cache.DefaultCapacity, cache.DefaultTTL),
	}
	a.engine = migrate.NewEngine(a.store)
	migrate.RegisterDefaults(a.engine, &migrate.Deps{
		Store:          a.store,
		Resolver:       resolver,
		Clock:          clock,
		CommunityURL:   cfg.TractionRec.CommunityURL,
		MembershipType: cfg.Membership.DefaultType,
	}, cfg.Sessions.MigrationGroup, cfg.Memberships.MigrationGroup)

	runState := tractionimport.NewBadgerRunState(a.state.DB)
	for _, name := range cfg.PipelineNames() {
		p, _ := cfg.Pipeline(name)
		imp := tractionimport.New(
			tractionimport.ConfigFromPipeline(name, p, cfg.Lock.TTL),
			tractionimport.Deps{
				Engine:     a.engine,
				Locker:     a.locker,
				State:      runState,
				Content:    a.store,
				OnRunStart: resolver.Reset,
			},
			exec,
		)
		a.importers[name] = imp
		a.cleaners[name] = cleaner.New(cleaner.ConfigFromImporter(imp.Config()), exec, a.store)
	}
	return a, nil
}

// Close releases everything in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logging.Warn().Err(err).Msg("Error during shutdown")
		}
	}
	a.closers = nil
}

func (a *app) importer(pipeline string) (*tractionimport.Importer, error) {
	imp, ok := a.importers[pipeline]
	if !ok {
		return nil, fmt.Errorf("unknown pipeline %q", pipeline)
	}
	return imp, nil
}

func (a *app) cleaner(pipeline string) (*cleaner.Cleaner, error) {
	c, ok := a.cleaners[pipeline]
	if !ok {
		return nil, fmt.Errorf("unknown pipeline %q", pipeline)
	}
	return c, nil
}

// remote returns the gateway, creating the client on first use.
func (a *app) remote() (*tractionrec.Gateway, error) {
	if a.gateway != nil {
		return a.gateway, nil
	}
	client, err := tractionrec.NewClient(&a.cfg.TractionRec)
	if err != nil {
		return nil, fmt.Errorf("create TractionRec client: %w", err)
	}
	a.gateway = tractionrec.NewGateway(client)
	return a.gateway, nil
}

// fetcher builds a fetcher for one run; the working directory is named
// after its creation time.
func (a *app) fetcher(pipeline string, pub fetch.Publisher) (*fetch.Fetcher, error) {
	p, ok := a.cfg.Pipeline(pipeline)
	if !ok {
		return nil, fmt.Errorf("unknown pipeline %q", pipeline)
	}
	gw, err := a.remote()
	if err != nil {
		return nil, err
	}
	return fetch.New(fetch.ConfigFromPipeline(pipeline, p, a.cfg.Membership), gw, a.mapping, pub), nil
}

// worker dispatches queue messages to this app's importers and cleaners.
func (a *app) worker() *queue.Worker {
	host, err := os.Hostname()
	if err != nil {
		host = "tractionsync"
	}
	w := queue.NewWorker(a.queue, fmt.Sprintf("%s-%d", host, os.Getpid()), a.cfg.Queue.BatchSize)
	for name, imp := range a.importers {
		w.Handle(name, imp, a.cleaners[name])
	}
	return w
}

// directPublisher hands the fetch completed event straight to the queue.
// One-shot commands use it with the channel transport, where no router
// would be listening.
type directPublisher struct {
	handle func(ctx context.Context, ev *events.FetchCompleted) error
}

func (p directPublisher) PublishFetchCompleted(ctx context.Context, ev *events.FetchCompleted) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid fetch completed event: %w", err)
	}
	return p.handle(ctx, ev)
}

// oneShotPublisher picks the event path for commands outside serve: NATS
// when configured (a serve process consumes it), else straight to the queue.
func (a *app) oneShotPublisher() (fetch.Publisher, func(), error) {
	if a.cfg.Events.Transport != events.TransportNATS || a.cfg.Events.EmbeddedNATS {
		return directPublisher{handle: events.EnqueueOnFetchCompleted(a.queue)}, func() {}, nil
	}
	bus, err := events.NewBus(a.cfg.Events, logging.NewWatermillLogger())
	if err != nil {
		return nil, nil, err
	}
	return bus, func() {
		if err := bus.Close(); err != nil && !errors.Is(err, context.Canceled) {
			logging.Warn().Err(err).Msg("Error closing event bus")
		}
	}, nil
}
