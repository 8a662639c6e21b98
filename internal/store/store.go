// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/tractionsync/internal/config"
	"github.com/tomtom215/tractionsync/internal/logging"
	"github.com/tomtom215/tractionsync/internal/metrics"
)

// Store is the destination content store backed by DuckDB.
type Store struct {
	conn *sql.DB
	path string
}

// Open opens (or creates) the DuckDB file at cfg.Path and ensures the schema.
// An empty path opens an in-memory database.
func Open(cfg config.StoreConfig) (*Store, error) {
	if cfg.Path != "" {
		if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create store directory %s: %w", dir, err)
			}
		}
	}

	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	params := url.Values{}
	params.Set("threads", strconv.Itoa(threads))
	if cfg.MaxMemory != "" {
		params.Set("max_memory", cfg.MaxMemory)
	}
	params.Set("autoinstall_known_extensions", "false")
	params.Set("autoload_known_extensions", "false")

	conn, err := sql.Open("duckdb", cfg.Path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	s := &Store{conn: conn, path: cfg.Path}
	if err := s.createTables(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Int("threads", threads).Msg("Content store opened")
	return s, nil
}

// Close checkpoints and closes the database.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if s.path != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if _, err := s.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
			logging.Warn().Err(err).Msg("Store checkpoint before close failed")
		}
		cancel()
	}
	return s.conn.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *Store) createTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	queries := []string{
		`CREATE SEQUENCE IF NOT EXISTS node_id_seq START 1`,
		`CREATE SEQUENCE IF NOT EXISTS paragraph_id_seq START 1`,
		`CREATE TABLE IF NOT EXISTS nodes (
			id BIGINT PRIMARY KEY DEFAULT nextval('node_id_seq'),
			type VARCHAR NOT NULL,
			title VARCHAR NOT NULL,
			status BOOLEAN NOT NULL DEFAULT TRUE,
			fields VARCHAR NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_type_title ON nodes(type, title)`,
		`CREATE TABLE IF NOT EXISTS paragraphs (
			id BIGINT PRIMARY KEY DEFAULT nextval('paragraph_id_seq'),
			parent_id BIGINT NOT NULL,
			type VARCHAR NOT NULL,
			data VARCHAR NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_paragraphs_parent ON paragraphs(parent_id)`,
		`CREATE TABLE IF NOT EXISTS migrate_map (
			migration VARCHAR NOT NULL,
			source_id VARCHAR NOT NULL,
			dest_id BIGINT NOT NULL,
			hash VARCHAR NOT NULL DEFAULT '',
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (migration, source_id)
		)`,
		`CREATE TABLE IF NOT EXISTS migrate_status (
			migration VARCHAR PRIMARY KEY,
			status VARCHAR NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	}
	for _, q := range queries {
		if _, err := s.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}

// withTx runs fn inside a transaction, rolling back when fn fails.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// observe records one store call in the query metrics. Deferred with a
// pointer to the caller's named error so failures are counted.
func observe(operation, table string, start time.Time, err *error) {
	metrics.RecordDBQuery(operation, table, time.Since(start), *err)
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}
