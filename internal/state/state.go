// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/tomtom215/tractionsync/internal/config"
	"github.com/tomtom215/tractionsync/internal/logging"
)

const (
	closeTimeout = 30 * time.Second
	gcRatio      = 0.5
)

// DB is the BadgerDB instance shared by the import queue, the badger lock
// backend and run statistics. Each user keeps to its own key prefix.
type DB struct {
	*badger.DB
	path string
}

// Open opens (or creates) the state database at cfg.Path.
func Open(cfg config.StateConfig) (*DB, error) {
	if cfg.Path == "" {
		return nil, errors.New("state path is required")
	}
	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.MemTableSize = 16 << 20
	opts.ValueLogFileSize = 64 << 20
	opts.NumCompactors = 2
	opts.Compression = options.Snappy
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}
	logging.Info().Str("path", cfg.Path).Bool("sync_writes", cfg.SyncWrites).Msg("State database opened")
	return &DB{DB: db, path: cfg.Path}, nil
}

// OpenInMemory opens a throwaway in-memory database for tests and one-off
// commands that need no durable state.
func OpenInMemory() (*DB, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory BadgerDB: %w", err)
	}
	return &DB{DB: db}, nil
}

// RunGC rewrites value log files until badger reports nothing to reclaim.
func (d *DB) RunGC() error {
	if d.path == "" {
		return nil
	}
	for {
		err := d.RunValueLogGC(gcRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close closes the database, giving up after a timeout so a wedged
// compaction cannot block shutdown forever.
func (d *DB) Close() error {
	done := make(chan error, 1)
	go func() {
		done <- d.DB.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		return nil
	case <-time.After(closeTimeout):
		logging.Warn().Dur("timeout", closeTimeout).Msg("BadgerDB close timed out")
		return fmt.Errorf("badgerdb close timeout after %v", closeTimeout)
	}
}
