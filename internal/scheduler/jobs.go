// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package scheduler

import (
	"context"
	"fmt"

	"github.com/tomtom215/tractionsync/internal/logging"
	"github.com/tomtom215/tractionsync/internal/queue"
)

// Drainer processes claimable queue entries.
type Drainer interface {
	Drain(ctx context.Context) (queue.DrainStats, error)
}

// Enqueuer adds messages to the import queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg queue.Message) (string, error)
}

// JobName builds the conventional "<pipeline>-<kind>" job name.
func JobName(pipeline, kind string) string {
	return pipeline + "-" + kind
}

// FetchJob runs fetch for a pipeline. fetch is expected to build a new
// fetcher each call since the working directory is named after the start
// time.
func FetchJob(pipeline, schedule string, fetch func(ctx context.Context) (string, error)) Job {
	return Job{
		Name:     JobName(pipeline, "fetch"),
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			ctx = logging.ContextWithPipeline(ctx, pipeline)
			dir, err := fetch(ctx)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", pipeline, err)
			}
			logging.Ctx(ctx).Info().Str("directory", dir).Msg("Scheduled fetch done")
			return nil
		},
	}
}

// DrainJob drains the queue worker. One drain covers every pipeline since
// the worker dispatches by message.
func DrainJob(schedule string, d Drainer) Job {
	return Job{
		Name:     "queue-drain",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			stats, err := d.Drain(ctx)
			if err != nil {
				return fmt.Errorf("drain queue: %w", err)
			}
			if stats.Processed+stats.Retried+stats.Dead+stats.Dropped > 0 {
				logging.Ctx(ctx).Info().
					Int("processed", stats.Processed).
					Int("retried", stats.Retried).
					Int("dead", stats.Dead).
					Int("dropped", stats.Dropped).
					Msg("Queue drained")
			}
			return nil
		},
	}
}

// CleanupJob queues a backup cleanup for a pipeline. Cleanups go through
// the queue so they never run alongside an import of the same worker.
func CleanupJob(pipeline, schedule string, q Enqueuer) Job {
	return Job{
		Name:     JobName(pipeline, "cleanup"),
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			id, err := q.Enqueue(ctx, queue.Message{Type: queue.TypeCleanup, Pipeline: pipeline})
			if err != nil {
				return fmt.Errorf("enqueue %s cleanup: %w", pipeline, err)
			}
			logging.Ctx(ctx).Debug().Str("pipeline", pipeline).Str("entry_id", id).Msg("Cleanup queued")
			return nil
		},
	}
}

// StateGCJob runs value log garbage collection.
func StateGCJob(schedule string, gc func() error) Job {
	return Job{
		Name:     "state-gc",
		Schedule: schedule,
		Run: func(_ context.Context) error {
			if err := gc(); err != nil {
				return fmt.Errorf("state gc: %w", err)
			}
			return nil
		},
	}
}
