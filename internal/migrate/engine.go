// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package migrate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/tractionsync/internal/logging"
	"github.com/tomtom215/tractionsync/internal/metrics"
)

// Migration statuses.
const (
	StatusIdle        = "idle"
	StatusImporting   = "importing"
	StatusRollingBack = "rolling_back"
	StatusStopping    = "stopping"
	StatusDisabled    = "disabled"
)

// Options are passed through from the import command.
type Options struct {
	// Sync removes destination rows whose source record is no longer present.
	Sync bool
	// Update re-saves rows even when their content is unchanged.
	Update bool
}

// Result counts what one migration run did.
type Result struct {
	Total     int      `json:"total"`
	Imported  int      `json:"imported"`
	Updated   int      `json:"updated"`
	Unchanged int      `json:"unchanged"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Deleted   int      `json:"deleted"`
	Errors    []string `json:"errors,omitempty"`
}

// Add accumulates other into r.
func (r *Result) Add(other Result) {
	r.Total += other.Total
	r.Imported += other.Imported
	r.Updated += other.Updated
	r.Unchanged += other.Unchanged
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	r.Deleted += other.Deleted
	r.Errors = append(r.Errors, other.Errors...)
}

// Migration maps one staged JSON file into destination content.
type Migration interface {
	ID() string
	// Source is the staged file name the migration reads, e.g. sessions.json.
	Source() string
	Import(ctx context.Context, dir string, opts Options) (Result, error)
	// Rollback deletes everything the migration created and returns the count.
	Rollback(ctx context.Context) (int, error)
}

// StatusStore persists migration statuses.
type StatusStore interface {
	Status(ctx context.Context, migration, def string) (string, error)
	SetStatus(ctx context.Context, migration, status string) error
}

// Engine keeps the registered migrations, their groups and their statuses.
type Engine struct {
	statuses StatusStore

	mu         sync.RWMutex
	migrations map[string]Migration
	groups     map[string][]string
}

// NewEngine creates an empty engine.
func NewEngine(statuses StatusStore) *Engine {
	return &Engine{
		statuses:   statuses,
		migrations: make(map[string]Migration),
		groups:     make(map[string][]string),
	}
}

// Register adds m to the engine and appends it to group. Group order is
// the run order.
func (e *Engine) Register(group string, m Migration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.migrations[m.ID()]; !exists && group != "" {
		e.groups[group] = append(e.groups[group], m.ID())
	}
	e.migrations[m.ID()] = m
}

// Get returns a migration by id.
func (e *Engine) Get(id string) (Migration, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.migrations[id]
	return m, ok
}

// Group returns the migrations tagged with name, in registration order.
func (e *Engine) Group(name string) []Migration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := e.groups[name]
	out := make([]Migration, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.migrations[id])
	}
	return out
}

// Resolve returns the listed migrations, failing on unknown ids.
func (e *Engine) Resolve(ids []string) ([]Migration, error) {
	out := make([]Migration, 0, len(ids))
	for _, id := range ids {
		m, ok := e.Get(id)
		if !ok {
			return nil, fmt.Errorf("unknown migration %q", id)
		}
		out = append(out, m)
	}
	return out, nil
}

// Status returns a migration's status; unknown migrations are idle.
func (e *Engine) Status(ctx context.Context, id string) (string, error) {
	return e.statuses.Status(ctx, id, StatusIdle)
}

// SetStatus records a migration status.
func (e *Engine) SetStatus(ctx context.Context, id, status string) error {
	return e.statuses.SetStatus(ctx, id, status)
}

// ResetStatus forces a stuck migration back to idle.
func (e *Engine) ResetStatus(ctx context.Context, id string) error {
	if err := e.statuses.SetStatus(ctx, id, StatusIdle); err != nil {
		return err
	}
	logging.Ctx(ctx).Info().Str("migration", id).Msg("Migration status reset to idle")
	return nil
}

// Run executes one migration against dir. The status is importing while it
// runs and idle afterwards, whether or not it fails.
func (e *Engine) Run(ctx context.Context, m Migration, dir string, opts Options) (Result, error) {
	log := logging.Ctx(ctx)
	if err := e.statuses.SetStatus(ctx, m.ID(), StatusImporting); err != nil {
		return Result{}, err
	}
	defer e.restoreIdle(m.ID())

	start := time.Now()
	res, err := m.Import(ctx, dir, opts)
	metrics.RecordRows(m.ID(), "imported", res.Imported)
	metrics.RecordRows(m.ID(), "updated", res.Updated)
	metrics.RecordRows(m.ID(), "unchanged", res.Unchanged)
	metrics.RecordRows(m.ID(), "skipped", res.Skipped)
	metrics.RecordRows(m.ID(), "failed", res.Failed)
	metrics.RecordRows(m.ID(), "deleted", res.Deleted)
	if err != nil {
		log.Error().Err(err).Str("migration", m.ID()).Msg("Migration failed")
		return res, fmt.Errorf("migration %s: %w", m.ID(), err)
	}

	log.Info().
		Str("migration", m.ID()).
		Int("total", res.Total).
		Int("imported", res.Imported).
		Int("updated", res.Updated).
		Int("unchanged", res.Unchanged).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Int("deleted", res.Deleted).
		Dur("duration", time.Since(start)).
		Msg("Migration finished")
	return res, nil
}

// Rollback deletes a migration's content under the rolling_back status.
func (e *Engine) Rollback(ctx context.Context, m Migration) (int, error) {
	if err := e.statuses.SetStatus(ctx, m.ID(), StatusRollingBack); err != nil {
		return 0, err
	}
	defer e.restoreIdle(m.ID())

	n, err := m.Rollback(ctx)
	if err != nil {
		return n, fmt.Errorf("rollback %s: %w", m.ID(), err)
	}
	logging.Ctx(ctx).Info().Str("migration", m.ID()).Int("deleted", n).Msg("Migration rolled back")
	return n, nil
}

// restoreIdle uses its own context so a cancelled run still leaves the
// migration idle.
func (e *Engine) restoreIdle(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.statuses.SetStatus(ctx, id, StatusIdle); err != nil {
		logging.Error().Err(err).Str("migration", id).Msg("Failed to reset migration status")
	}
}
