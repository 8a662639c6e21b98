// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/tomtom215/tractionsync/internal/config"
	"github.com/tomtom215/tractionsync/internal/events"
	"github.com/tomtom215/tractionsync/internal/fetch"
	tractionimport "github.com/tomtom215/tractionsync/internal/import"
	"github.com/tomtom215/tractionsync/internal/logging"
	"github.com/tomtom215/tractionsync/internal/migrate"
	"github.com/tomtom215/tractionsync/internal/scheduler"
	"github.com/tomtom215/tractionsync/internal/store"
	"github.com/tomtom215/tractionsync/internal/tractionrec"
)

// setupEnv points every storage path at a temp dir and returns its root.
// Tests calling it cannot run in parallel.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.ConfigPathEnvVar, filepath.Join(dir, "absent.yaml"))
	t.Setenv(config.DotenvPathEnvVar, filepath.Join(dir, "absent.env"))
	t.Setenv("STATE_PATH", filepath.Join(dir, "state"))
	t.Setenv("DUCKDB_PATH", filepath.Join(dir, "content.duckdb"))
	t.Setenv("DUCKDB_THREADS", "1")
	t.Setenv("SESSIONS_ROOT", filepath.Join(dir, "sessions"))
	t.Setenv("SESSIONS_ENABLED", "true")
	t.Setenv("SESSIONS_BACKUP_JSON", "false")
	t.Setenv("MEMBERSHIPS_ROOT", filepath.Join(dir, "memberships"))
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func runCommand(t *testing.T, args ...string) (int, string) {
	t.Helper()
	var out bytes.Buffer
	code := run(context.Background(), args, &out)
	return code, out.String()
}

func TestRunUsage(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
	}{
		{"no args", nil, exitUsage, "Usage: tractionsync"},
		{"help", []string{"help"}, exitOK, "update-total-available"},
		{"help names the single process limit", []string{"help"}, exitOK, "Stop serve before running them"},
		{"version", []string{"version"}, exitOK, version},
		{"unknown command", []string{"explode"}, exitUsage, `unknown command "explode"`},
		{"bad flag", []string{"import", "--nope"}, exitUsage, "flag provided but not defined"},
		{"command help", []string{"clean-up", "-h"}, exitOK, "-database"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out := runCommand(t, tt.args...)
			if code != tt.wantCode {
				t.Errorf("got exit code %d, want %d", code, tt.wantCode)
			}
			if !strings.Contains(out, tt.wantOut) {
				t.Errorf("output %q does not contain %q", out, tt.wantOut)
			}
		})
	}
}

func TestRunCommands(t *testing.T) {
	setupEnv(t)

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
	}{
		{"nothing to import", []string{"import"}, exitOK, "No TractionRec data to import."},
		{"disabled pipeline", []string{"import", "--pipeline", "memberships"}, exitOK, "is not enabled"},
		{"unknown pipeline", []string{"import", "--pipeline", "camps"}, exitUsage, `unknown pipeline "camps"`},
		{"reset lock", []string{"reset-lock"}, exitOK, "Import lock released."},
		{"reset status", []string{"reset-status"}, exitOK, "Migration statuses reset to idle."},
		{"clean up", []string{"clean-up"}, exitOK, "Removed 0 old backup directories."},
		{"clean up database", []string{"clean-up", "--database", "--limit", "10"}, exitOK, "orphaned paragraphs"},
		{"drain", []string{"drain"}, exitOK, "Queue drained: 0 processed"},
		{"status", []string{"status"}, exitOK, `"pipeline": "sessions"`},
		{"status lock", []string{"status"}, exitOK, `"held": false`},
		{"status migrations", []string{"status"}, exitOK, `"tr_sessions": "idle"`},
		{"rollback", []string{"rollback"}, exitOK, "Rolled back 0 imported items."},
		{"fetch disabled", []string{"fetch"}, exitOK, "The sessions fetch is not enabled."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out := runCommand(t, tt.args...)
			if code != tt.wantCode {
				t.Errorf("got exit code %d, want %d (output %q)", code, tt.wantCode, out)
			}
			if !strings.Contains(out, tt.wantOut) {
				t.Errorf("output %q does not contain %q", out, tt.wantOut)
			}
		})
	}
}

func TestRunInvalidConfig(t *testing.T) {
	setupEnv(t)
	t.Setenv("LOCK_BACKEND", "zookeeper")

	code, out := runCommand(t, "import")
	if code != exitError {
		t.Errorf("got exit code %d, want %d", code, exitError)
	}
	if !strings.Contains(out, "LOCK_BACKEND") {
		t.Errorf("output %q does not name the bad setting", out)
	}
}

// stubGateway serves one page of course options and nothing else.
type stubGateway struct {
	options []tractionrec.Record
}

func (g *stubGateway) empty() (*tractionrec.PageResult, error) {
	return &tractionrec.PageResult{Done: true}, nil
}

func (g *stubGateway) LoadProgramCategoryTags(context.Context) (*tractionrec.PageResult, error) {
	return g.empty()
}

func (g *stubGateway) LoadCourses(context.Context) (*tractionrec.PageResult, error) {
	return g.empty()
}

func (g *stubGateway) LoadCourseOptions(context.Context, []string) (*tractionrec.PageResult, error) {
	return &tractionrec.PageResult{Records: g.options, TotalSize: len(g.options), Done: true}, nil
}

func (g *stubGateway) LoadLocations(context.Context) (*tractionrec.PageResult, error) {
	return g.empty()
}

func (g *stubGateway) LoadMemberships(context.Context, string) (*tractionrec.PageResult, error) {
	return g.empty()
}

func (g *stubGateway) LoadTotalAvailable(context.Context, []string) (*tractionrec.PageResult, error) {
	return g.empty()
}

func (g *stubGateway) LoadNextPage(context.Context, string) (*tractionrec.PageResult, error) {
	return g.empty()
}

func courseOption(id string) tractionrec.Record {
	return tractionrec.Record{
		"Course_Option": map[string]any{
			"Id":                        id,
			"Name":                      "Swim " + id,
			"Available_Online":          true,
			"Start_Date":                "2024-06-03",
			"Start_Time":                "9:00 AM",
			"End_Date":                  "2024-08-26",
			"End_Time":                  "10:00 AM",
			"Day_of_Week":               "Monday;Wednesday",
			"Total_Capacity_Available":  4.0,
			"Register_Online_From_Date": "2024-05-01",
			"Register_Online_To_Date":   "2024-06-01",
			"Location":                  map[string]any{"Id": "a0L1", "Name": "Downtown YMCA"},
		},
		"Course_Session": map[string]any{
			"Id":     "cs1",
			"Course": map[string]any{"Id": "c1", "Name": "Swim"},
		},
	}
}

// A fetch publishes its event, the event lands in the queue, and a drain
// imports the directory and removes it.
func TestFetchToImport(t *testing.T) {
	setupEnv(t)
	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	a, err := newApp(cfg, tractionimport.ExecCLI)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	ctx := context.Background()

	if _, err := a.store.UpsertNode(ctx, &store.Node{Type: "branch", Title: "Downtown YMCA", Status: true}); err != nil {
		t.Fatal(err)
	}

	pub, closePub, err := a.oneShotPublisher()
	if err != nil {
		t.Fatal(err)
	}
	defer closePub()
	gw := &stubGateway{options: []tractionrec.Record{courseOption("opt1"), courseOption("opt2")}}
	f := fetch.New(fetch.ConfigFromPipeline(config.PipelineSessions, cfg.Sessions, cfg.Membership), gw, a.mapping, pub)

	dir, err := f.Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, fetch.FileSessions)); err != nil {
		t.Fatalf("sessions.json not written: %v", err)
	}
	qs, _ := a.queue.Stats(ctx)
	if qs.Pending != 1 {
		t.Fatalf("got %d pending queue entries, want 1", qs.Pending)
	}

	stats, err := a.worker().Drain(ctx)
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if stats.Processed != 1 {
		t.Errorf("got %+v, want 1 processed", stats)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("working directory still present after import: %v", err)
	}
	if n, _ := a.store.CountNodes(ctx, migrate.NodeSession); n != 2 {
		t.Errorf("got %d session nodes, want 2", n)
	}
	last, err := a.importers[config.PipelineSessions].LastRun(ctx)
	if err != nil || last == nil {
		t.Fatalf("LastRun() = %v, %v", last, err)
	}
	if last.Outcome != tractionimport.OutcomeImported {
		t.Errorf("got outcome %q, want imported", last.Outcome)
	}
	if qs, _ := a.queue.Stats(ctx); qs.Pending+qs.Leased+qs.Dead != 0 {
		t.Errorf("queue not empty after drain: %+v", qs)
	}
}

func TestServeJobs(t *testing.T) {
	setupEnv(t)
	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	cfg.Sessions.FetchStatus = true
	cfg.Sessions.BackupJSON = true
	cfg.Memberships.FetchStatus = true
	cfg.Memberships.FetchSchedule = ""

	a, err := newApp(cfg, tractionimport.ExecWorker)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	bus := events.NewChannelBus(cfg.Events.TopicPrefix, logging.NewWatermillLogger())
	defer bus.Close()

	sched, err := scheduler.New("scheduler", serveJobs(cfg, a, bus))
	if err != nil {
		t.Fatalf("scheduler.New() error = %v", err)
	}
	wantJobs := []string{"memberships-fetch", "queue-drain", "sessions-cleanup", "sessions-fetch", "state-gc"}
	if got := sched.Jobs(); !slices.Equal(got, wantJobs) {
		t.Errorf("got jobs %v, want %v", got, wantJobs)
	}
	if got := sched.Scheduled(); slices.Contains(got, "memberships-fetch") {
		t.Errorf("memberships-fetch has no schedule but is scheduled: %v", got)
	}

	deps := apiDeps(cfg, a, sched)
	if len(deps.Pipelines) != 2 || !deps.Pipelines[config.PipelineSessions].FetchEnabled {
		t.Errorf("got pipelines %+v", deps.Pipelines)
	}
	for name, check := range deps.Checks {
		if err := check(context.Background()); err != nil {
			t.Errorf("check %s failed: %v", name, err)
		}
	}
}
