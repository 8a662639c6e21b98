// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

// Package scheduler runs the periodic pipeline jobs under supervision.
//
// A Service owns one cron runner (robfig/cron with a seconds field). Every
// job is wrapped so that a run still in progress makes the next tick a no-op
// and a panic is recovered and logged. Each run gets a fresh run id in its
// context and is recorded in the scheduled job metrics.
//
//	svc, err := scheduler.New("pipelines",
//		scheduler.Job{Name: "sessions-fetch", Schedule: "0 */15 * * * *", Run: fetch},
//		scheduler.Job{Name: "sessions-drain", Schedule: "*/30 * * * * *", Run: drain},
//	)
//	tree.AddSchedulingService(svc)
//
// Jobs with an empty schedule are kept so Trigger can still run them on
// demand, but they are never put on the cron runner.
package scheduler
