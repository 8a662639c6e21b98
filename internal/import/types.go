// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package tractionimport

import (
	"time"

	"github.com/tomtom215/tractionsync/internal/migrate"
)

// Outcome is what an import attempt amounted to.
type Outcome string

// Import outcomes.
const (
	OutcomeImported        Outcome = "imported"
	OutcomeDisabled        Outcome = "disabled"
	OutcomeLocked          Outcome = "locked"
	OutcomeNotIdle         Outcome = "not_idle"
	OutcomeNothingToImport Outcome = "nothing_to_import"
	OutcomeFailed          Outcome = "failed"
)

// Ran reports whether the import got past its preflight checks.
func (o Outcome) Ran() bool {
	return o == OutcomeImported || o == OutcomeFailed
}

// Notice is the operator-facing message for an outcome.
func (o Outcome) Notice(pipeline string) string {
	switch o {
	case OutcomeDisabled:
		return "The " + pipeline + " import is not enabled. Enable it in the configuration."
	case OutcomeLocked:
		return "Can't run a new import, another import process is in progress. Try reset-lock if the process seems stuck."
	case OutcomeNotIdle:
		return "One or more migrations are still running or stuck. Run reset-status to reset them."
	case OutcomeNothingToImport:
		return "No TractionRec data to import."
	case OutcomeFailed:
		return "TractionRec import failed. Check the logs for more info."
	default:
		return "TractionRec migration done!"
	}
}

// ExecContext says who is driving the importer. Directory imports and
// cleanups only run from the CLI and the queue worker.
type ExecContext int

// Execution contexts.
const (
	ExecCLI ExecContext = iota
	ExecWorker
	ExecHTTP
)

func (e ExecContext) String() string {
	switch e {
	case ExecCLI:
		return "cli"
	case ExecWorker:
		return "worker"
	case ExecHTTP:
		return "http"
	default:
		return "unknown"
	}
}

// AllowsFileOperations reports whether directory imports may run.
func (e ExecContext) AllowsFileOperations() bool {
	return e == ExecCLI || e == ExecWorker
}

// Options are passed to every migration of a run.
type Options = migrate.Options

// RunStats describes one import run.
type RunStats struct {
	Pipeline            string         `json:"pipeline"`
	Outcome             Outcome        `json:"outcome"`
	Directories         int            `json:"directories"`
	DirectoriesImported int            `json:"directories_imported"`
	DirectoriesFailed   int            `json:"directories_failed"`
	Rows                migrate.Result `json:"rows"`
	LastDirectory       string         `json:"last_directory,omitempty"`
	LastError           string         `json:"last_error,omitempty"`
	StartTime           time.Time      `json:"start_time"`
	EndTime             time.Time      `json:"end_time"`
}

// Duration returns how long the run took, or has taken so far.
func (s *RunStats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary is the API view of a run.
type Summary struct {
	Status         string         `json:"status"`
	Pipeline       string         `json:"pipeline"`
	Outcome        Outcome        `json:"outcome,omitempty"`
	Directories    int            `json:"directories"`
	Failed         int            `json:"directories_failed"`
	Rows           migrate.Result `json:"rows"`
	ElapsedSeconds float64        `json:"elapsed_seconds"`
	StartTime      time.Time      `json:"start_time"`
	LastError      string         `json:"last_error,omitempty"`
}

// ToSummary converts stats for display.
func (s *RunStats) ToSummary(running bool) *Summary {
	summary := &Summary{
		Pipeline:       s.Pipeline,
		Outcome:        s.Outcome,
		Directories:    s.Directories,
		Failed:         s.DirectoriesFailed,
		Rows:           s.Rows,
		ElapsedSeconds: s.Duration().Seconds(),
		StartTime:      s.StartTime,
		LastError:      s.LastError,
	}
	switch {
	case running:
		summary.Status = "running"
	case s.EndTime.IsZero():
		summary.Status = "pending"
	default:
		summary.Status = "completed"
	}
	return summary
}
