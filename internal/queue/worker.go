// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	tractionimport "github.com/tomtom215/tractionsync/internal/import"
	"github.com/tomtom215/tractionsync/internal/logging"
	"github.com/tomtom215/tractionsync/internal/metrics"
)

// Importer imports one working directory of a pipeline.
type Importer interface {
	ImportOne(ctx context.Context, dir string, opts tractionimport.Options) (tractionimport.Outcome, *tractionimport.RunStats, error)
}

// Cleaner rotates a pipeline's archived directories.
type Cleaner interface {
	CleanBackupFiles(ctx context.Context) (int, error)
}

// RetryableError means the message should be delivered again later, for
// example because another import holds the lock.
type RetryableError struct {
	Outcome tractionimport.Outcome
	Err     error
}

func (e *RetryableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("import %s: %v", e.Outcome, e.Err)
	}
	return "import " + string(e.Outcome)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// Blocked reports whether the import never started because another run
// holds the pipeline. Blocked messages are deferred, not failed.
func (e *RetryableError) Blocked() bool {
	return e.Err == nil && (e.Outcome == tractionimport.OutcomeLocked || e.Outcome == tractionimport.OutcomeNotIdle)
}

// DrainStats counts what one Drain did.
type DrainStats struct {
	Processed int `json:"processed"`
	Retried   int `json:"retried"`
	Deferred  int `json:"deferred"`
	Dead      int `json:"dead"`
	Dropped   int `json:"dropped"`
}

// Worker claims queued messages and hands them to the pipeline importers.
type Worker struct {
	queue     *Queue
	holder    string
	batchSize int

	mu        sync.RWMutex
	importers map[string]Importer
	cleaners  map[string]Cleaner
}

// NewWorker creates a worker claiming from q as holder. batchSize caps the
// messages handled per Drain; zero means until the queue is empty.
func NewWorker(q *Queue, holder string, batchSize int) *Worker {
	return &Worker{
		queue:     q,
		holder:    holder,
		batchSize: batchSize,
		importers: make(map[string]Importer),
		cleaners:  make(map[string]Cleaner),
	}
}

// Handle routes a pipeline's messages to imp and c. Either may be nil.
func (w *Worker) Handle(pipeline string, imp Importer, c Cleaner) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if imp != nil {
		w.importers[pipeline] = imp
	}
	if c != nil {
		w.cleaners[pipeline] = c
	}
}

// ProcessItem handles one message. A nil error means the message is done;
// a *RetryableError asks for redelivery; an *InvalidMessageError can never
// succeed.
func (w *Worker) ProcessItem(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	log := logging.Ctx(ctx).With().Str("type", msg.Type).Str("pipeline", msg.Pipeline).Logger()

	w.mu.RLock()
	imp := w.importers[msg.Pipeline]
	cleaner := w.cleaners[msg.Pipeline]
	w.mu.RUnlock()

	if !msg.IsImport() {
		if cleaner == nil {
			return fmt.Errorf("no cleaner for pipeline %s", msg.Pipeline)
		}
		n, err := cleaner.CleanBackupFiles(ctx)
		if err != nil {
			return err
		}
		log.Info().Int("removed", n).Msg("Queue: backup cleanup done")
		return nil
	}

	if imp == nil {
		return fmt.Errorf("no importer for pipeline %s", msg.Pipeline)
	}
	opts := tractionimport.Options{Sync: msg.IsSync(), Update: msg.Options.Update}
	outcome, _, err := imp.ImportOne(ctx, msg.Directory, opts)
	switch {
	case errors.Is(err, tractionimport.ErrForeignDirectory):
		return &InvalidMessageError{Fields: map[string]string{"Directory": "workdir"}}
	case err != nil:
		return &RetryableError{Outcome: outcome, Err: err}
	case outcome == tractionimport.OutcomeLocked,
		outcome == tractionimport.OutcomeNotIdle,
		outcome == tractionimport.OutcomeFailed:
		return &RetryableError{Outcome: outcome}
	}
	log.Info().Str("directory", msg.Directory).Str("outcome", string(outcome)).Msg("Queue: import message handled")
	return nil
}

// Drain processes claimable messages until the queue is empty, the batch
// size is reached or ctx is done.
func (w *Worker) Drain(ctx context.Context) (DrainStats, error) {
	var stats DrainStats
	for w.batchSize <= 0 || stats.Processed+stats.Retried+stats.Deferred+stats.Dropped < w.batchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		entry, err := w.queue.Claim(ctx, w.holder)
		if err != nil {
			return stats, fmt.Errorf("claim: %w", err)
		}
		if entry == nil {
			break
		}
		if err := w.settle(ctx, entry, &stats); err != nil {
			return stats, err
		}
	}

	if _, err := w.queue.Stats(ctx); err != nil {
		logging.Warn().Err(err).Msg("Queue: failed to refresh depth")
	}
	return stats, nil
}

func (w *Worker) settle(ctx context.Context, entry *Entry, stats *DrainStats) error {
	ctx = logging.ContextWithNewRunID(ctx)
	log := logging.Ctx(ctx).With().Str("entry_id", entry.ID).Int("attempt", entry.Attempts+1).Logger()

	err := w.ProcessItem(ctx, entry.Message)
	var (
		invalid *InvalidMessageError
		retry   *RetryableError
	)
	switch {
	case err == nil:
		stats.Processed++
		metrics.RecordQueueResult(entry.Message.Type, "success")
		return w.queue.Ack(ctx, entry.ID)

	case errors.As(err, &invalid):
		stats.Dropped++
		log.Error().Err(err).Msg("Queue: dropping invalid message")
		metrics.RecordQueueResult(entry.Message.Type, "invalid")
		return w.queue.Ack(ctx, entry.ID)

	case errors.As(err, &retry) && retry.Blocked():
		if err := w.queue.Defer(ctx, entry.ID, err); err != nil {
			return fmt.Errorf("defer %s: %w", entry.ID, err)
		}
		stats.Deferred++
		log.Info().Str("reason", string(retry.Outcome)).Int("deferrals", entry.Deferrals+1).Msg("Queue: message deferred")
		metrics.RecordQueueResult(entry.Message.Type, "deferred")
		return nil

	default:
		dead, nackErr := w.queue.Nack(ctx, entry.ID, err)
		if nackErr != nil {
			return fmt.Errorf("nack %s: %w", entry.ID, nackErr)
		}
		if dead {
			stats.Dead++
			log.Error().Err(err).Msg("Queue: message exhausted its attempts")
			metrics.RecordQueueResult(entry.Message.Type, "dead")
			return nil
		}
		stats.Retried++
		log.Warn().Err(err).Msg("Queue: message will be retried")
		metrics.RecordQueueResult(entry.Message.Type, "retry")
		return nil
	}
}
