// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// MapEntry links a remote record to the node a migration created for it.
type MapEntry struct {
	SourceID string
	DestID   int64
	Hash     string
}

// LookupDest returns the map entry for one source id.
func (s *Store) LookupDest(ctx context.Context, migration, sourceID string) (_ MapEntry, _ bool, err error) {
	defer observe("lookup", "migrate_map", time.Now(), &err)
	e := MapEntry{SourceID: sourceID}
	err = s.conn.QueryRowContext(ctx,
		`SELECT dest_id, hash FROM migrate_map WHERE migration = ? AND source_id = ?`, migration, sourceID,
	).Scan(&e.DestID, &e.Hash)
	if errors.Is(err, sql.ErrNoRows) {
		return MapEntry{}, false, nil
	}
	if err != nil {
		return MapEntry{}, false, fmt.Errorf("lookup %s/%s: %w", migration, sourceID, err)
	}
	return e, true, nil
}

// SaveMapping records or replaces a map entry.
func (s *Store) SaveMapping(ctx context.Context, migration string, e MapEntry) (err error) {
	defer observe("save", "migrate_map", time.Now(), &err)
	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO migrate_map (migration, source_id, dest_id, hash, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (migration, source_id) DO UPDATE SET
			dest_id = excluded.dest_id, hash = excluded.hash, updated_at = excluded.updated_at`,
		migration, e.SourceID, e.DestID, e.Hash, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save mapping %s/%s: %w", migration, e.SourceID, err)
	}
	return nil
}

// DeleteMapping removes one map entry.
func (s *Store) DeleteMapping(ctx context.Context, migration, sourceID string) (err error) {
	defer observe("delete", "migrate_map", time.Now(), &err)
	if _, err := s.conn.ExecContext(ctx,
		`DELETE FROM migrate_map WHERE migration = ? AND source_id = ?`, migration, sourceID); err != nil {
		return fmt.Errorf("delete mapping %s/%s: %w", migration, sourceID, err)
	}
	return nil
}

// MappedSources lists every map entry of a migration ordered by source id.
func (s *Store) MappedSources(ctx context.Context, migration string) (_ []MapEntry, err error) {
	defer observe("list", "migrate_map", time.Now(), &err)
	rows, err := s.conn.QueryContext(ctx,
		`SELECT source_id, dest_id, hash FROM migrate_map WHERE migration = ? ORDER BY source_id`, migration)
	if err != nil {
		return nil, fmt.Errorf("list mappings %s: %w", migration, err)
	}
	defer rows.Close()

	var out []MapEntry
	for rows.Next() {
		var e MapEntry
		if err := rows.Scan(&e.SourceID, &e.DestID, &e.Hash); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DestIDs resolves source ids to node ids; unmapped ids are absent from the
// result.
func (s *Store) DestIDs(ctx context.Context, migration string, sourceIDs []string) (_ map[string]int64, err error) {
	defer observe("resolve", "migrate_map", time.Now(), &err)
	out := make(map[string]int64, len(sourceIDs))
	if len(sourceIDs) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(sourceIDs)+1)
	args = append(args, migration)
	for _, id := range sourceIDs {
		args = append(args, id)
	}
	rows, err := s.conn.QueryContext(ctx,
		fmt.Sprintf(`SELECT source_id, dest_id FROM migrate_map WHERE migration = ? AND source_id IN (%s)`,
			placeholders(len(sourceIDs))), args...)
	if err != nil {
		return nil, fmt.Errorf("resolve %s ids: %w", migration, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			src  string
			dest int64
		)
		if err := rows.Scan(&src, &dest); err != nil {
			return nil, err
		}
		out[src] = dest
	}
	return out, rows.Err()
}

// Status returns a migration's status, or def when none is recorded.
func (s *Store) Status(ctx context.Context, migration, def string) (_ string, err error) {
	defer observe("get", "migrate_status", time.Now(), &err)
	var status string
	err = s.conn.QueryRowContext(ctx,
		`SELECT status FROM migrate_status WHERE migration = ?`, migration).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return "", fmt.Errorf("status %s: %w", migration, err)
	}
	return status, nil
}

// SetStatus records a migration's status.
func (s *Store) SetStatus(ctx context.Context, migration, status string) (err error) {
	defer observe("set", "migrate_status", time.Now(), &err)
	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO migrate_status (migration, status, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (migration) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		migration, status, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set status %s: %w", migration, err)
	}
	return nil
}
