// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/tractionsync/internal/api"
	"github.com/tomtom215/tractionsync/internal/config"
	"github.com/tomtom215/tractionsync/internal/events"
	tractionimport "github.com/tomtom215/tractionsync/internal/import"
	"github.com/tomtom215/tractionsync/internal/logging"
	"github.com/tomtom215/tractionsync/internal/middleware"
	"github.com/tomtom215/tractionsync/internal/scheduler"
	"github.com/tomtom215/tractionsync/internal/supervisor"
	"github.com/tomtom215/tractionsync/internal/supervisor/services"
)

// performanceWindow is how many recent requests the admin API keeps per
// endpoint for latency percentiles.
const performanceWindow = 1000

// serve runs the long-lived process until SIGINT or SIGTERM.
func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	if cfg.Events.EmbeddedNATS {
		ns, err := events.StartEmbeddedServer(cfg.Events.EmbeddedHost, cfg.Events.EmbeddedPort)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = ns.Shutdown(shutdownCtx)
		}()
		cfg.Events.Transport = events.TransportNATS
		cfg.Events.NATSURL = ns.ClientURL()
		tree.AddDataService(services.NewEmbeddedNATSService(ns, 0))
		logging.Info().Str("url", cfg.Events.NATSURL).Msg("Embedded NATS server started")
	}

	a, err := newApp(cfg, tractionimport.ExecWorker)
	if err != nil {
		return err
	}
	defer a.Close()

	bus, err := events.NewBus(cfg.Events, logging.NewWatermillLogger())
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing event bus")
		}
	}()

	tree.AddMessagingService(services.NewRouterService("fetch-completed-router", func() (*message.Router, error) {
		return bus.Router(events.DefaultRouterConfig(),
			bus.FetchCompletedHandler("enqueue-import", events.EnqueueOnFetchCompleted(a.queue)))
	}))

	sched, err := scheduler.New("scheduler", serveJobs(cfg, a, bus))
	if err != nil {
		return err
	}
	tree.AddSchedulingService(sched)

	if cfg.Server.Enabled {
		h := api.NewHandler(apiDeps(cfg, a, sched))
		srv := &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
			Handler:           api.NewRouter(h, cfg.Server),
			ReadHeaderTimeout: 10 * time.Second,
		}
		svc := services.NewHTTPServerService(srv, 0)
		svc.AwaitOnShutdown(h.Wait)
		tree.AddAPIService(svc)
		logging.Info().Str("addr", srv.Addr).Msg("Admin API enabled")
	}

	logging.Info().
		Str("version", version).
		Str("transport", cfg.Events.Transport).
		Strs("scheduled_jobs", sched.Scheduled()).
		Msg("Starting TractionSync")

	err = tree.Serve(ctx)
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
		}
	}
	if ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled)) {
		logging.Info().Msg("TractionSync stopped")
		return nil
	}
	return err
}

// serveJobs lists the cron jobs of serve mode. Fetch jobs exist for every
// pipeline with fetching switched on so the admin API can trigger them even
// when their schedule is empty.
func serveJobs(cfg *config.Config, a *app, bus *events.Bus) []scheduler.Job {
	var jobs []scheduler.Job
	for _, name := range cfg.PipelineNames() {
		p, _ := cfg.Pipeline(name)
		if p.FetchStatus {
			jobs = append(jobs, scheduler.FetchJob(name, p.FetchSchedule, func(ctx context.Context) (string, error) {
				f, err := a.fetcher(name, bus)
				if err != nil {
					return "", err
				}
				return f.Fetch(ctx)
			}))
		}
		if p.Enabled && p.BackupJSON {
			jobs = append(jobs, scheduler.CleanupJob(name, p.CleanupSchedule, a.queue))
		}
	}
	return append(jobs,
		scheduler.DrainJob(cfg.Queue.DrainSchedule, a.worker()),
		scheduler.StateGCJob(cfg.State.GCSchedule, a.state.RunGC),
	)
}

func apiDeps(cfg *config.Config, a *app, jobs api.JobTrigger) api.Deps {
	pipelines := make(map[string]api.Pipeline, len(a.importers))
	for _, name := range cfg.PipelineNames() {
		p, _ := cfg.Pipeline(name)
		pipelines[name] = api.Pipeline{FetchEnabled: p.FetchStatus, Importer: a.importers[name]}
	}
	return api.Deps{
		Pipelines: pipelines,
		Queue:     a.queue,
		Jobs:      jobs,
		Checks: map[string]func(ctx context.Context) error{
			"store": a.store.Ping,
			"queue": func(ctx context.Context) error {
				_, err := a.queue.Stats(ctx)
				return err
			},
		},
		Performance: middleware.NewPerformanceMonitor(performanceWindow, middleware.DefaultSlowThreshold),
	}
}
