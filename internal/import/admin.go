// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package tractionimport

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/tomtom215/tractionsync/internal/logging"
	"github.com/tomtom215/tractionsync/internal/migrate"
	"github.com/tomtom215/tractionsync/internal/tractionrec"
	"github.com/tomtom215/tractionsync/internal/transform"
)

// capacityChunk bounds the source ids resolved per store query.
const capacityChunk = 50

// ContentStore is the part of the destination store the capacity refresh
// writes through.
type ContentStore interface {
	DestIDs(ctx context.Context, migration string, sourceIDs []string) (map[string]int64, error)
	UpdateNodeFields(ctx context.Context, id int64, fields map[string]any) error
}

// Rollback removes everything the pipeline's migrations imported, last
// migration first. It takes the pipeline lock.
func (i *Importer) Rollback(ctx context.Context) (int, error) {
	ok, err := i.AcquireLock(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.New(OutcomeLocked.Notice(i.cfg.Pipeline))
	}
	defer func() {
		if err := i.ReleaseLock(context.WithoutCancel(ctx)); err != nil {
			logging.Ctx(ctx).Error().Err(err).Msg("Failed to release import lock")
		}
	}()

	ms, err := i.Migrations()
	if err != nil {
		return 0, err
	}
	removed := 0
	for idx := len(ms) - 1; idx >= 0; idx-- {
		n, err := i.engine.Rollback(ctx, ms[idx])
		removed += n
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// ResetLock frees the pipeline lock whoever holds it.
func (i *Importer) ResetLock(ctx context.Context) error {
	if err := i.locker.ForceRelease(ctx, i.cfg.LockName); err != nil {
		return fmt.Errorf("reset lock %s: %w", i.cfg.LockName, err)
	}
	logging.Ctx(ctx).Info().Str("lock", i.cfg.LockName).Msg("Import lock released")
	return nil
}

// ResetStatus sets every migration of the pipeline back to idle.
func (i *Importer) ResetStatus(ctx context.Context) error {
	ms, err := i.Migrations()
	if err != nil {
		return err
	}
	for _, m := range ms {
		if err := i.engine.ResetStatus(ctx, m.ID()); err != nil {
			return err
		}
	}
	return nil
}

// LastRun returns the stats of the last finished run, or nil.
func (i *Importer) LastRun(ctx context.Context) (*RunStats, error) {
	return i.state.Load(ctx, i.cfg.Pipeline)
}

// UpdateTotalAvailable writes the availability fields of a capacity snapshot
// onto the imported sessions. Options that were never imported are ignored.
// It returns how many sessions were updated.
func (i *Importer) UpdateTotalAvailable(ctx context.Context, snapshot map[string]tractionrec.Capacity) (int, error) {
	if i.content == nil {
		return 0, errors.New("capacity refresh needs a content store")
	}
	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	updated := 0
	for start := 0; start < len(ids); start += capacityChunk {
		end := min(start+capacityChunk, len(ids))
		dest, err := i.content.DestIDs(ctx, migrate.IDSessions, ids[start:end])
		if err != nil {
			return updated, fmt.Errorf("map session ids: %w", err)
		}
		for _, src := range ids[start:end] {
			nid, ok := dest[src]
			if !ok {
				continue
			}
			c := snapshot[src]
			waitlist := 0
			if c.WaitlistTotal != nil {
				waitlist = int(*c.WaitlistTotal)
			}
			err := i.content.UpdateNodeFields(ctx, nid, map[string]any{
				"availability":       transform.Availability(c.UnlimitedCapacity, c.TotalCapacityAvailable),
				"waitlist_unlimited": c.UnlimitedWaitlist,
				"waitlist_capacity":  waitlist,
			})
			if err != nil {
				return updated, fmt.Errorf("update session %d: %w", nid, err)
			}
			updated++
		}
	}

	logging.Ctx(ctx).Info().Int("updated", updated).Int("snapshot", len(snapshot)).Msg("Total available updated")
	return updated, nil
}
