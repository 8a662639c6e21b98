// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package tractionimport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// RunState keeps the stats of each pipeline's last import run.
type RunState interface {
	Save(ctx context.Context, stats *RunStats) error
	// Load returns nil, nil when the pipeline has never run.
	Load(ctx context.Context, pipeline string) (*RunStats, error)
	Clear(ctx context.Context, pipeline string) error
}

func runKey(pipeline string) []byte {
	return []byte("import:" + pipeline + ":last_run")
}

// BadgerRunState persists run stats in the state database.
type BadgerRunState struct {
	db *badger.DB
}

// NewBadgerRunState creates a RunState over db.
func NewBadgerRunState(db *badger.DB) *BadgerRunState {
	return &BadgerRunState{db: db}
}

// Save implements RunState.
func (s *BadgerRunState) Save(_ context.Context, stats *RunStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(stats.Pipeline), data)
	})
}

// Load implements RunState.
func (s *BadgerRunState) Load(_ context.Context, pipeline string) (*RunStats, error) {
	var (
		stats RunStats
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(pipeline))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stats)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load run state: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &stats, nil
}

// Clear implements RunState.
func (s *BadgerRunState) Clear(_ context.Context, pipeline string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(runKey(pipeline))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// InMemoryRunState keeps run stats in memory.
type InMemoryRunState struct {
	mu    sync.Mutex
	stats map[string]RunStats
}

// NewInMemoryRunState creates an empty in-memory RunState.
func NewInMemoryRunState() *InMemoryRunState {
	return &InMemoryRunState{stats: make(map[string]RunStats)}
}

// Save implements RunState.
func (s *InMemoryRunState) Save(_ context.Context, stats *RunStats) error {
	s.mu.Lock()
	s.stats[stats.Pipeline] = *stats
	s.mu.Unlock()
	return nil
}

// Load implements RunState.
func (s *InMemoryRunState) Load(_ context.Context, pipeline string) (*RunStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, ok := s.stats[pipeline]
	if !ok {
		return nil, nil
	}
	return &stats, nil
}

// Clear implements RunState.
func (s *InMemoryRunState) Clear(_ context.Context, pipeline string) error {
	s.mu.Lock()
	delete(s.stats, pipeline)
	s.mu.Unlock()
	return nil
}
