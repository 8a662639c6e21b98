// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"runtime"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tractionsync/internal/cleaner"
	"github.com/tomtom215/tractionsync/internal/config"
	tractionimport "github.com/tomtom215/tractionsync/internal/import"
	"github.com/tomtom215/tractionsync/internal/lock"
	"github.com/tomtom215/tractionsync/internal/logging"
	"github.com/tomtom215/tractionsync/internal/metrics"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// invocation is what a command body sees.
type invocation struct {
	app      *app
	pipeline string
	out      io.Writer
}

// command describes one subcommand. setup registers the command's own
// flags and returns the body bound to them.
type command struct {
	name    string
	summary string
	setup   func(fs *flag.FlagSet) func(ctx context.Context, inv *invocation) error
}

// loadConfig is swapped out in tests.
var loadConfig = config.Load

var commands = []command{
	{name: "serve", summary: "Run the scheduler, event router, queue worker and admin API"},
	{name: "fetch", summary: "Fetch TractionRec data into a new working directory", setup: fetchCommand},
	{name: "import", summary: "Import every waiting working directory", setup: importCommand},
	{name: "rollback", summary: "Remove everything the pipeline imported", setup: rollbackCommand},
	{name: "reset-lock", summary: "Free the pipeline import lock", setup: resetLockCommand},
	{name: "reset-status", summary: "Set the pipeline migrations back to idle", setup: resetStatusCommand},
	{name: "clean-up", summary: "Rotate JSON backups and optionally remove orphaned content", setup: cleanUpCommand},
	{name: "update-total-available", summary: "Refresh session capacity from TractionRec", setup: updateTotalAvailableCommand},
	{name: "drain", summary: "Process every ready queue message and exit", setup: drainCommand},
	{name: "status", summary: "Print the last import run and queue counters", setup: statusCommand},
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: tractionsync <command> [flags]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-24s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(w, "\nRun 'tractionsync <command> -h' for command flags.\n")
	fmt.Fprint(w, singleProcessNote)
}

// singleProcessNote warns that the state database and DuckDB store admit
// one process at a time.
const singleProcessNote = `
Commands other than serve open the state database and the content store,
which allow one process at a time. Stop serve before running them, or use
the admin API of the running process instead:
  GET  /api/v1/status
  POST /api/v1/pipelines/{pipeline}/import|cleanup|fetch
`

// run parses args, loads configuration and executes one command. It
// returns the process exit code.
func run(ctx context.Context, args []string, out io.Writer) int {
	if len(args) == 0 {
		usage(out)
		return exitUsage
	}
	switch args[0] {
	case "-h", "--help", "help":
		usage(out)
		return exitOK
	case "version", "--version":
		fmt.Fprintln(out, version)
		return exitOK
	}
	cmd, ok := lookup(args[0])
	if !ok {
		fmt.Fprintf(out, "unknown command %q\n\n", args[0])
		usage(out)
		return exitUsage
	}

	fs := flag.NewFlagSet(cmd.name, flag.ContinueOnError)
	fs.SetOutput(out)
	var pipeline string
	var body func(ctx context.Context, inv *invocation) error
	if cmd.setup != nil {
		fs.StringVar(&pipeline, "pipeline", config.PipelineSessions, "pipeline to act on: "+strings.Join(pipelineNames(), ", "))
		body = cmd.setup(fs)
	}
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(out, "load configuration: %v\n", err)
		return exitError
	}
	logging.Init(logging.FromConfig(cfg.Logging, cmd.name, version))
	metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)

	if cmd.name == "serve" {
		if err := serve(ctx, cfg); err != nil {
			logging.Error().Err(err).Msg("Server stopped with an error")
			return exitError
		}
		return exitOK
	}

	if _, ok := cfg.Pipeline(pipeline); !ok {
		fmt.Fprintf(out, "unknown pipeline %q\n", pipeline)
		return exitUsage
	}
	a, err := newApp(cfg, tractionimport.ExecCLI)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to initialise")
		return exitError
	}
	defer a.Close()

	ctx = logging.ContextWithPipeline(ctx, pipeline)
	if err := body(ctx, &invocation{app: a, pipeline: pipeline, out: out}); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Command failed")
		fmt.Fprintln(out, err)
		return exitError
	}
	return exitOK
}

func pipelineNames() []string {
	return []string{config.PipelineSessions, config.PipelineMemberships}
}

func fetchCommand(_ *flag.FlagSet) func(ctx context.Context, inv *invocation) error {
	return func(ctx context.Context, inv *invocation) error {
		if p, _ := inv.app.cfg.Pipeline(inv.pipeline); !p.FetchStatus {
			fmt.Fprintf(inv.out, "The %s fetch is not enabled. Enable it in the configuration.\n", inv.pipeline)
			return nil
		}
		pub, closePub, err := inv.app.oneShotPublisher()
		if err != nil {
			return err
		}
		defer closePub()
		f, err := inv.app.fetcher(inv.pipeline, pub)
		if err != nil {
			return err
		}
		dir, err := f.Fetch(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(inv.out, "TractionRec data fetched into %s\n", dir)
		return nil
	}
}

func importCommand(fs *flag.FlagSet) func(ctx context.Context, inv *invocation) error {
	var opts tractionimport.Options
	var dir string
	fs.BoolVar(&opts.Sync, "sync", false, "remove destination content missing from the data")
	fs.BoolVar(&opts.Update, "update", false, "re-import rows whose source data is unchanged")
	fs.StringVar(&dir, "dir", "", "import only this working directory")
	return func(ctx context.Context, inv *invocation) error {
		imp, err := inv.app.importer(inv.pipeline)
		if err != nil {
			return err
		}
		var (
			outcome tractionimport.Outcome
			stats   *tractionimport.RunStats
		)
		if dir != "" {
			outcome, stats, err = imp.ImportOne(ctx, dir, opts)
		} else {
			outcome, stats, err = imp.Run(ctx, opts)
		}
		if err != nil {
			return err
		}
		if stats != nil && outcome.Ran() {
			fmt.Fprintf(inv.out, "Directories: %d imported, %d failed. Rows: %d imported, %d updated, %d unchanged, %d skipped, %d failed, %d deleted.\n",
				stats.DirectoriesImported, stats.DirectoriesFailed,
				stats.Rows.Imported, stats.Rows.Updated, stats.Rows.Unchanged, stats.Rows.Skipped, stats.Rows.Failed, stats.Rows.Deleted)
		}
		if outcome == tractionimport.OutcomeFailed {
			return errors.New(outcome.Notice(inv.pipeline))
		}
		fmt.Fprintln(inv.out, outcome.Notice(inv.pipeline))
		return nil
	}
}

func rollbackCommand(_ *flag.FlagSet) func(ctx context.Context, inv *invocation) error {
	return func(ctx context.Context, inv *invocation) error {
		imp, err := inv.app.importer(inv.pipeline)
		if err != nil {
			return err
		}
		n, err := imp.Rollback(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(inv.out, "Rolled back %d imported items.\n", n)
		return nil
	}
}

func resetLockCommand(_ *flag.FlagSet) func(ctx context.Context, inv *invocation) error {
	return func(ctx context.Context, inv *invocation) error {
		imp, err := inv.app.importer(inv.pipeline)
		if err != nil {
			return err
		}
		if err := imp.ResetLock(ctx); err != nil {
			return err
		}
		fmt.Fprintln(inv.out, "Import lock released.")
		return nil
	}
}

func resetStatusCommand(_ *flag.FlagSet) func(ctx context.Context, inv *invocation) error {
	return func(ctx context.Context, inv *invocation) error {
		imp, err := inv.app.importer(inv.pipeline)
		if err != nil {
			return err
		}
		if err := imp.ResetStatus(ctx); err != nil {
			return err
		}
		fmt.Fprintln(inv.out, "Migration statuses reset to idle.")
		return nil
	}
}

func cleanUpCommand(fs *flag.FlagSet) func(ctx context.Context, inv *invocation) error {
	var database bool
	var limit int
	fs.BoolVar(&database, "database", false, "also remove orphaned paragraphs")
	fs.IntVar(&limit, "limit", cleaner.DefaultDatabaseLimit, "maximum orphans removed with -database")
	return func(ctx context.Context, inv *invocation) error {
		c, err := inv.app.cleaner(inv.pipeline)
		if err != nil {
			return err
		}
		n, err := c.CleanBackupFiles(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(inv.out, "Removed %d old backup directories.\n", n)
		if !database {
			return nil
		}
		n, err = c.CleanDatabase(ctx, limit)
		if err != nil {
			return err
		}
		fmt.Fprintf(inv.out, "Removed %d orphaned paragraphs.\n", n)
		return nil
	}
}

func updateTotalAvailableCommand(_ *flag.FlagSet) func(ctx context.Context, inv *invocation) error {
	return func(ctx context.Context, inv *invocation) error {
		imp, err := inv.app.importer(inv.pipeline)
		if err != nil {
			return err
		}
		f, err := inv.app.fetcher(inv.pipeline, nil)
		if err != nil {
			return err
		}
		snapshot, err := f.FetchTotalAvailable(ctx)
		if err != nil {
			return err
		}
		n, err := imp.UpdateTotalAvailable(ctx, snapshot)
		if err != nil {
			return err
		}
		fmt.Fprintf(inv.out, "Updated capacity of %d sessions.\n", n)
		return nil
	}
}

func drainCommand(_ *flag.FlagSet) func(ctx context.Context, inv *invocation) error {
	return func(ctx context.Context, inv *invocation) error {
		stats, err := inv.app.worker().Drain(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(inv.out, "Queue drained: %d processed, %d retried, %d dead, %d dropped.\n",
			stats.Processed, stats.Retried, stats.Dead, stats.Dropped)
		return nil
	}
}

// statusReport is printed by the status command.
type statusReport struct {
	Pipeline    string                  `json:"pipeline"`
	LastRun     *tractionimport.Summary `json:"last_run"`
	Lock        lock.Info               `json:"lock"`
	Migrations  map[string]string       `json:"migrations"`
	Directories []string                `json:"waiting_directories"`
	Queue       map[string]int          `json:"queue"`
}

func statusCommand(_ *flag.FlagSet) func(ctx context.Context, inv *invocation) error {
	return func(ctx context.Context, inv *invocation) error {
		imp, err := inv.app.importer(inv.pipeline)
		if err != nil {
			return err
		}
		summary, err := imp.Status(ctx)
		if err != nil {
			return err
		}
		held, err := imp.LockInfo(ctx)
		if err != nil {
			return err
		}
		statuses, err := imp.MigrationStatuses(ctx)
		if err != nil {
			return err
		}
		dirs, err := imp.JSONDirectories()
		if err != nil {
			return err
		}
		sort.Strings(dirs)
		qs, err := inv.app.queue.Stats(ctx)
		if err != nil {
			return err
		}
		report := statusReport{
			Pipeline:    inv.pipeline,
			LastRun:     summary,
			Lock:        held,
			Migrations:  statuses,
			Directories: dirs,
			Queue:       map[string]int{"pending": qs.Pending, "leased": qs.Leased, "dead": qs.Dead},
		}
		enc := json.NewEncoder(inv.out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
}
