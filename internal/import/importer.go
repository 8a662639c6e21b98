// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package tractionimport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/tractionsync/internal/config"
	"github.com/tomtom215/tractionsync/internal/lock"
	"github.com/tomtom215/tractionsync/internal/logging"
	"github.com/tomtom215/tractionsync/internal/metrics"
	"github.com/tomtom215/tractionsync/internal/migrate"
)

// DefaultLockTTL bounds how long a crashed run can block imports.
const DefaultLockTTL = 1200 * time.Second

// ErrForeignDirectory is returned for a directory that is not a direct
// child of the pipeline's source dir. Such a directory is never touched.
var ErrForeignDirectory = errors.New("not a working directory of this pipeline")

// Config is one pipeline's importer configuration.
type Config struct {
	Pipeline       string
	Enabled        bool
	BackupJSON     bool
	BackupLimit    int
	SourceDir      string
	TargetDir      string
	BackupDir      string
	LockName       string
	LockTTL        time.Duration
	MigrationGroup string
	// Migrations, when set, replaces the group lookup.
	Migrations []string
}

// ConfigFromPipeline derives an importer Config from pipeline settings.
func ConfigFromPipeline(name string, p config.PipelineConfig, lockTTL time.Duration) Config {
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return Config{
		Pipeline:       name,
		Enabled:        p.Enabled,
		BackupJSON:     p.BackupJSON,
		BackupLimit:    p.BackupLimit,
		SourceDir:      p.SourceDir(),
		TargetDir:      p.TargetDir(),
		BackupDir:      p.BackupDir(),
		LockName:       p.LockName,
		LockTTL:        lockTTL,
		MigrationGroup: p.MigrationGroup,
		Migrations:     p.Migrations,
	}
}

// Importer moves fetched working directories through the migrations of one
// pipeline.
type Importer struct {
	cfg     Config
	engine  *migrate.Engine
	locker  lock.Locker
	state   RunState
	content ContentStore
	exec    ExecContext
	onStart func()

	mu      sync.Mutex
	running *RunStats
}

// Deps are the importer's collaborators. State, Content and OnRunStart may
// be nil.
type Deps struct {
	Engine  *migrate.Engine
	Locker  lock.Locker
	State   RunState
	Content ContentStore
	// OnRunStart is called once the lock is held and before any directory
	// is imported. It drops per-run caches.
	OnRunStart func()
}

// New creates an importer for cfg running in exec.
func New(cfg Config, deps Deps, exec ExecContext) *Importer {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	state := deps.State
	if state == nil {
		state = NewInMemoryRunState()
	}
	return &Importer{
		cfg:     cfg,
		engine:  deps.Engine,
		locker:  deps.Locker,
		state:   state,
		content: deps.Content,
		exec:    exec,
		onStart: deps.OnRunStart,
	}
}

// Config returns the importer configuration.
func (i *Importer) Config() Config { return i.cfg }

// Pipeline returns the pipeline name.
func (i *Importer) Pipeline() string { return i.cfg.Pipeline }

// IsEnabled reports whether imports may run.
func (i *Importer) IsEnabled() bool { return i.cfg.Enabled }

// IsBackupEnabled reports whether imported directories are archived.
func (i *Importer) IsBackupEnabled() bool { return i.cfg.BackupJSON }

// BackupLimit is how many archived directories the cleaner keeps.
func (i *Importer) BackupLimit() int { return i.cfg.BackupLimit }

// AcquireLock takes the pipeline lock without waiting.
func (i *Importer) AcquireLock(ctx context.Context) (bool, error) {
	return i.locker.Acquire(ctx, i.cfg.LockName, i.cfg.LockTTL)
}

// ReleaseLock drops the pipeline lock. Releasing a free lock is a no-op.
func (i *Importer) ReleaseLock(ctx context.Context) error {
	return i.locker.Release(ctx, i.cfg.LockName)
}

// LockInfo reports who holds the pipeline lock.
func (i *Importer) LockInfo(ctx context.Context) (lock.Info, error) {
	return i.locker.Inspect(ctx, i.cfg.LockName)
}

// MigrationStatuses maps each of the pipeline's migrations to its status.
func (i *Importer) MigrationStatuses(ctx context.Context) (map[string]string, error) {
	ms, err := i.Migrations()
	if err != nil {
		return nil, err
	}
	statuses := make(map[string]string, len(ms))
	for _, m := range ms {
		status, err := i.engine.Status(ctx, m.ID())
		if err != nil {
			return nil, err
		}
		statuses[m.ID()] = status
	}
	return statuses, nil
}

// Migrations returns the pipeline's migrations in run order.
func (i *Importer) Migrations() ([]migrate.Migration, error) {
	if len(i.cfg.Migrations) > 0 {
		return i.engine.Resolve(i.cfg.Migrations)
	}
	ms := i.engine.Group(i.cfg.MigrationGroup)
	if len(ms) == 0 {
		return nil, fmt.Errorf("no migrations in group %q", i.cfg.MigrationGroup)
	}
	return ms, nil
}

// CheckMigrationsStatus reports false, logging the culprit, when any of the
// pipeline's migrations is not idle.
func (i *Importer) CheckMigrationsStatus(ctx context.Context) (bool, error) {
	ms, err := i.Migrations()
	if err != nil {
		return false, err
	}
	for _, m := range ms {
		status, err := i.engine.Status(ctx, m.ID())
		if err != nil {
			return false, err
		}
		if status != migrate.StatusIdle {
			logging.Ctx(ctx).Warn().
				Str("reason", "migration_not_idle").
				Str("migration", m.ID()).
				Str("status", status).
				Msg("Migration is not idle")
			return false, nil
		}
	}
	return true, nil
}

// JSONDirectories lists the working directories waiting in the source dir,
// oldest first. A missing source dir means nothing is waiting.
func (i *Importer) JSONDirectories() ([]string, error) {
	entries, err := os.ReadDir(i.cfg.SourceDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", i.cfg.SourceDir, err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(i.cfg.SourceDir, e.Name()))
		}
	}
	return dirs, nil
}

// DirectoryImport stages the JSON files of dir, runs every idle migration
// and then archives or deletes dir. A dir without JSON files, including one
// that no longer exists, is a no-op. On failure dir is left in place and the
// error is logged and returned; nothing already staged is rolled back.
func (i *Importer) DirectoryImport(ctx context.Context, dir string, opts Options) (migrate.Result, error) {
	var total migrate.Result
	if err := i.checkWorkDir(dir); err != nil {
		return total, err
	}
	log := logging.Ctx(ctx).With().Str("directory", dir).Logger()

	if !i.exec.AllowsFileOperations() {
		log.Warn().Str("exec", i.exec.String()).Msg("Directory import refused outside the CLI and worker")
		return total, nil
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return total, err
	}
	if len(files) == 0 {
		log.Debug().Msg("No JSON files in directory")
		return total, nil
	}
	sort.Strings(files)

	err = func() error {
		for _, f := range files {
			if err := copyReplace(f, filepath.Join(i.cfg.TargetDir, filepath.Base(f))); err != nil {
				return err
			}
		}

		ms, err := i.Migrations()
		if err != nil {
			return err
		}
		for _, m := range ms {
			status, err := i.engine.Status(ctx, m.ID())
			if err != nil {
				return err
			}
			if status != migrate.StatusIdle {
				log.Warn().Str("migration", m.ID()).Str("status", status).Msg("Skipping migration that is not idle")
				continue
			}
			res, err := i.engine.Run(ctx, m, i.cfg.TargetDir, opts)
			total.Add(res)
			if err != nil {
				return err
			}
		}

		if i.cfg.BackupJSON {
			return moveInto(dir, i.cfg.BackupDir)
		}
		return os.RemoveAll(dir)
	}()
	if err != nil {
		log.Error().Err(err).Msg("Directory import failed, leaving it for the next run")
		metrics.RecordDirectoryImport(i.cfg.Pipeline, "failed")
		return total, err
	}

	metrics.RecordDirectoryImport(i.cfg.Pipeline, "imported")
	log.Info().Bool("archived", i.cfg.BackupJSON).Msg("Directory imported")
	return total, nil
}

// Run imports every waiting directory under one lock. A failing directory
// is logged and the run moves on to the next one.
func (i *Importer) Run(ctx context.Context, opts Options) (Outcome, *RunStats, error) {
	ctx = logging.ContextWithPipeline(logging.ContextWithNewRunID(ctx), i.cfg.Pipeline)
	start := time.Now()

	outcome, stats, err := i.guarded(ctx, func(stats *RunStats) error {
		dirs, err := i.JSONDirectories()
		if err != nil {
			return err
		}
		if len(dirs) == 0 {
			stats.Outcome = OutcomeNothingToImport
			return nil
		}
		logging.Ctx(ctx).Info().Int("directories", len(dirs)).Msg("Starting TractionRec migration")
		stats.Outcome = OutcomeImported
		for _, dir := range dirs {
			i.importInto(ctx, stats, dir, opts)
		}
		return nil
	})
	metrics.RecordImportRun(i.cfg.Pipeline, string(outcome), time.Since(start))
	return outcome, stats, err
}

// ImportOne imports a single directory under the lock, the queue path.
func (i *Importer) ImportOne(ctx context.Context, dir string, opts Options) (Outcome, *RunStats, error) {
	ctx = logging.ContextWithPipeline(ctx, i.cfg.Pipeline)
	if err := i.checkWorkDir(dir); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Refusing to import directory")
		return OutcomeFailed, &RunStats{Pipeline: i.cfg.Pipeline, LastDirectory: dir, LastError: err.Error()}, err
	}
	start := time.Now()

	outcome, stats, err := i.guarded(ctx, func(stats *RunStats) error {
		if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
			stats.Outcome = OutcomeNothingToImport
			return nil
		}
		stats.Outcome = OutcomeImported
		i.importInto(ctx, stats, dir, opts)
		if stats.DirectoriesFailed > 0 {
			stats.Outcome = OutcomeFailed
		}
		return nil
	})
	metrics.RecordImportRun(i.cfg.Pipeline, string(outcome), time.Since(start))
	return outcome, stats, err
}

func (i *Importer) importInto(ctx context.Context, stats *RunStats, dir string, opts Options) {
	stats.Directories++
	stats.LastDirectory = dir
	res, err := i.DirectoryImport(ctx, dir, opts)
	stats.Rows.Add(res)
	if err != nil {
		stats.DirectoriesFailed++
		stats.LastError = err.Error()
		return
	}
	stats.DirectoriesImported++
}

// guarded runs body behind the enabled gate, the lock and the migration
// status preflight. The lock is held for the whole body.
func (i *Importer) guarded(ctx context.Context, body func(stats *RunStats) error) (Outcome, *RunStats, error) {
	log := logging.Ctx(ctx)
	stats := &RunStats{Pipeline: i.cfg.Pipeline, StartTime: time.Now()}

	if !i.IsEnabled() {
		log.Info().Str("reason", string(OutcomeDisabled)).Msg(OutcomeDisabled.Notice(i.cfg.Pipeline))
		return OutcomeDisabled, stats, nil
	}

	i.mu.Lock()
	if i.running != nil {
		i.mu.Unlock()
		log.Info().Str("reason", string(OutcomeLocked)).Msg("Import already in progress in this process")
		return OutcomeLocked, stats, nil
	}
	i.running = stats
	i.mu.Unlock()
	defer func() {
		i.mu.Lock()
		i.running = nil
		i.mu.Unlock()
	}()

	ok, err := i.AcquireLock(ctx)
	if err != nil {
		return OutcomeLocked, stats, fmt.Errorf("acquire lock %s: %w", i.cfg.LockName, err)
	}
	if !ok {
		log.Info().Str("reason", string(OutcomeLocked)).Msg(OutcomeLocked.Notice(i.cfg.Pipeline))
		return OutcomeLocked, stats, nil
	}
	defer func() {
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := i.ReleaseLock(relCtx); err != nil {
			log.Error().Err(err).Msg("Failed to release import lock")
		}
	}()

	idle, err := i.CheckMigrationsStatus(ctx)
	if err != nil {
		return OutcomeNotIdle, stats, err
	}
	if !idle {
		log.Info().Str("reason", string(OutcomeNotIdle)).Msg(OutcomeNotIdle.Notice(i.cfg.Pipeline))
		return OutcomeNotIdle, stats, nil
	}

	if i.onStart != nil {
		i.onStart()
	}
	err = body(stats)
	stats.EndTime = time.Now()
	if err != nil {
		stats.LastError = err.Error()
		return OutcomeFailed, stats, err
	}
	if stats.Outcome.Ran() {
		if err := i.state.Save(ctx, stats); err != nil {
			log.Warn().Err(err).Msg("Failed to save run stats")
		}
	}
	log.Info().
		Str("outcome", string(stats.Outcome)).
		Int("directories", stats.Directories).
		Int("failed", stats.DirectoriesFailed).
		Dur("duration", stats.Duration()).
		Msg(stats.Outcome.Notice(i.cfg.Pipeline))
	return stats.Outcome, stats, nil
}

// Status returns the running or last finished run.
func (i *Importer) Status(ctx context.Context) (*Summary, error) {
	i.mu.Lock()
	running := i.running
	i.mu.Unlock()
	if running != nil {
		return running.ToSummary(true), nil
	}
	last, err := i.state.Load(ctx, i.cfg.Pipeline)
	if err != nil || last == nil {
		return nil, err
	}
	return last.ToSummary(false), nil
}

// checkWorkDir rejects dir unless it sits directly under the source dir.
func (i *Importer) checkWorkDir(dir string) error {
	if dir == "" || filepath.Dir(absPath(dir)) != absPath(i.cfg.SourceDir) {
		return fmt.Errorf("%w: %s", ErrForeignDirectory, dir)
	}
	return nil
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// copyReplace copies src over dst through a temporary file so readers never
// see a partial file.
func copyReplace(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// moveInto moves dir under parent, replacing an archive of the same name.
func moveInto(dir, parent string) error {
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	dst := filepath.Join(parent, filepath.Base(dir))
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	if err := os.Rename(dir, dst); err != nil {
		return fmt.Errorf("archive %s: %w", dir, err)
	}
	return nil
}
