// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

/*
Package supervisor runs the long-lived parts of serve mode under suture v4.

	RootSupervisor ("tractionsync")
	├── DataSupervisor ("data-layer")
	│   └── EmbeddedNATSService (if events.embedded_nats)
	├── MessagingSupervisor ("messaging-layer")
	│   └── RouterService (fetch completed -> import queue)
	├── SchedulingSupervisor ("scheduling-layer")
	│   └── scheduler.Service (fetch, drain, cleanup, state GC)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (if server.enabled)

Crashed services restart with suture's backoff; each layer counts its own
failures. Lifecycle events are logged through sutureslog into the zerolog
backed slog logger.

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(services.NewRouterService("events-router", build))
	tree.AddSchedulingService(sched)
	tree.AddAPIService(services.NewHTTPServerService(srv, 10*time.Second))
	err = tree.Serve(ctx)

After Serve returns, UnstoppedServiceReport names services that ignored
the shutdown timeout.
*/
package supervisor
