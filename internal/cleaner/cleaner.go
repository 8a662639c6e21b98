// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package cleaner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	tractionimport "github.com/tomtom215/tractionsync/internal/import"
	"github.com/tomtom215/tractionsync/internal/logging"
	"github.com/tomtom215/tractionsync/internal/metrics"
)

const (
	// DefaultDatabaseLimit caps the orphans removed by one CleanDatabase.
	DefaultDatabaseLimit = 5000
	deleteChunk          = 50
)

// OrphanCollector removes paragraphs whose parent node is gone.
type OrphanCollector interface {
	DeleteOrphanParagraphs(ctx context.Context, limit, chunk int) (int, error)
}

// Config is the backup policy of one pipeline.
type Config struct {
	Pipeline    string
	BackupJSON  bool
	BackupLimit int
	BackupDir   string
}

// ConfigFromImporter copies the backup policy of an importer.
func ConfigFromImporter(c tractionimport.Config) Config {
	return Config{
		Pipeline:    c.Pipeline,
		BackupJSON:  c.BackupJSON,
		BackupLimit: c.BackupLimit,
		BackupDir:   c.BackupDir,
	}
}

// Cleaner rotates archived working directories and collects orphaned
// session time paragraphs.
type Cleaner struct {
	cfg     Config
	exec    tractionimport.ExecContext
	orphans OrphanCollector
}

// New creates a cleaner. orphans may be nil if CleanDatabase is never used.
func New(cfg Config, exec tractionimport.ExecContext, orphans OrphanCollector) *Cleaner {
	return &Cleaner{cfg: cfg, exec: exec, orphans: orphans}
}

type backupEntry struct {
	name    string
	modTime time.Time
}

// CleanBackupFiles keeps the BackupLimit most recently modified entries of
// the backup directory and removes the rest. It does nothing when backups
// are off or outside the CLI and worker. A failed removal is logged and the
// others still run.
func (c *Cleaner) CleanBackupFiles(ctx context.Context) (int, error) {
	log := logging.Ctx(ctx).With().Str("pipeline", c.cfg.Pipeline).Logger()
	if !c.exec.AllowsFileOperations() {
		log.Warn().Str("exec", c.exec.String()).Msg("Backup cleanup refused outside the CLI and worker")
		return 0, nil
	}
	if !c.cfg.BackupJSON {
		return 0, nil
	}

	dirents, err := os.ReadDir(c.cfg.BackupDir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("list backups: %w", err)
	}

	entries := make([]backupEntry, 0, len(dirents))
	for _, d := range dirents {
		info, err := d.Info()
		if err != nil {
			continue
		}
		entries = append(entries, backupEntry{name: d.Name(), modTime: info.ModTime()})
	}
	// Newest first, like ls -t.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].modTime.Equal(entries[j].modTime) {
			return entries[i].name > entries[j].name
		}
		return entries[i].modTime.After(entries[j].modTime)
	})

	keep := max(c.cfg.BackupLimit, 0)
	if len(entries) <= keep {
		return 0, nil
	}

	var (
		removed int
		errs    []error
	)
	for _, e := range entries[keep:] {
		if err := os.RemoveAll(filepath.Join(c.cfg.BackupDir, e.name)); err != nil {
			log.Warn().Err(err).Str("entry", e.name).Msg("Impossible to remove JSON backup")
			errs = append(errs, err)
			continue
		}
		removed++
	}

	metrics.RecordCleanup(c.cfg.Pipeline, "backup", removed)
	if removed > 0 {
		log.Info().Int("removed", removed).Int("kept", keep).Msg("Old JSON backups removed")
	}
	return removed, errors.Join(errs...)
}

// CleanDatabase deletes up to limit orphaned paragraphs, 50 per delete.
func (c *Cleaner) CleanDatabase(ctx context.Context, limit int) (int, error) {
	if c.orphans == nil {
		return 0, errors.New("database cleanup needs a content store")
	}
	if limit <= 0 {
		limit = DefaultDatabaseLimit
	}
	n, err := c.orphans.DeleteOrphanParagraphs(ctx, limit, deleteChunk)
	metrics.RecordCleanup(c.cfg.Pipeline, "database", n)
	if err != nil {
		return n, fmt.Errorf("delete orphan paragraphs: %w", err)
	}
	logging.Ctx(ctx).Info().Int("deleted", n).Msg("Orphaned session time paragraphs removed")
	return n, nil
}
