// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package fetch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/tomtom215/tractionsync/internal/config"
	"github.com/tomtom215/tractionsync/internal/events"
	"github.com/tomtom215/tractionsync/internal/locations"
	"github.com/tomtom215/tractionsync/internal/logging"
	"github.com/tomtom215/tractionsync/internal/metrics"
	"github.com/tomtom215/tractionsync/internal/tractionrec"
)

// Fetch steps.
const (
	StepPrograms    = "programs"
	StepClasses     = "classes"
	StepSessions    = "sessions"
	StepLocations   = "locations"
	StepMemberships = "memberships"
)

// DirLayout names working directories by fetch minute.
const DirLayout = "200601021504"

// DefaultSteps is the sessions pipeline fetch.
var DefaultSteps = []string{StepPrograms, StepClasses, StepSessions, StepLocations}

// MembershipSteps is the memberships pipeline fetch.
var MembershipSteps = []string{StepMemberships}

// StepResult summarises one step in the fetch completed event.
type StepResult = events.StepResult

// Gateway is the part of tractionrec.Gateway the fetcher uses.
type Gateway interface {
	LoadProgramCategoryTags(ctx context.Context) (*tractionrec.PageResult, error)
	LoadCourses(ctx context.Context) (*tractionrec.PageResult, error)
	LoadCourseOptions(ctx context.Context, locationIDs []string) (*tractionrec.PageResult, error)
	LoadLocations(ctx context.Context) (*tractionrec.PageResult, error)
	LoadMemberships(ctx context.Context, locationID string) (*tractionrec.PageResult, error)
	LoadTotalAvailable(ctx context.Context, locationIDs []string) (*tractionrec.PageResult, error)
	LoadNextPage(ctx context.Context, nextURL string) (*tractionrec.PageResult, error)
}

// Publisher delivers the fetch completed event.
type Publisher interface {
	PublishFetchCompleted(ctx context.Context, ev *events.FetchCompleted) error
}

// Config configures one pipeline's fetcher.
type Config struct {
	Pipeline string
	Enabled  bool
	// SourceDir receives one working directory per fetch.
	SourceDir string
	Steps     []string

	MembershipExclude    []string
	MembershipLocationID string
}

// ConfigFromPipeline derives a fetcher Config. The memberships pipeline
// fetches only memberships.
func ConfigFromPipeline(name string, p config.PipelineConfig, m config.MembershipConfig) Config {
	cfg := Config{
		Pipeline:  name,
		Enabled:   p.FetchStatus,
		SourceDir: p.SourceDir(),
		Steps:     DefaultSteps,
	}
	if name == config.PipelineMemberships {
		cfg.Steps = MembershipSteps
		cfg.MembershipExclude = m.Exclude
		cfg.MembershipLocationID = m.LocationID
	}
	return cfg
}

// Fetcher pulls one snapshot of TractionRec data into a working directory.
// The directory is fixed when the Fetcher is created, so a Fetcher is used
// for a single fetch.
type Fetcher struct {
	cfg     Config
	gw      Gateway
	mapping *locations.Mapping
	pub     Publisher
	dir     string
	steps   map[string]stepFunc
}

// stepFunc runs one step and reports its summary and record count.
type stepFunc func(ctx context.Context) (StepResult, int, error)

func pageStep(fn func(ctx context.Context) (*tractionrec.PageResult, error)) stepFunc {
	return func(ctx context.Context) (StepResult, int, error) {
		page, err := fn(ctx)
		if err != nil {
			return StepResult{}, 0, err
		}
		if page == nil {
			return StepResult{}, 0, nil
		}
		return StepResult{TotalSize: page.TotalSize, Done: page.Done}, len(page.Records), nil
	}
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithTime names the working directory after t instead of now.
func WithTime(t time.Time) Option {
	return func(f *Fetcher) {
		f.dir = filepath.Join(f.cfg.SourceDir, t.Format(DirLayout))
	}
}

// New creates a fetcher. pub may be nil when nothing consumes the event.
func New(cfg Config, gw Gateway, mapping *locations.Mapping, pub Publisher, opts ...Option) *Fetcher {
	if len(cfg.Steps) == 0 {
		cfg.Steps = DefaultSteps
	}
	if mapping == nil {
		mapping = locations.Parse("")
	}
	f := &Fetcher{
		cfg:     cfg,
		gw:      gw,
		mapping: mapping,
		pub:     pub,
		dir:     filepath.Join(cfg.SourceDir, time.Now().Format(DirLayout)),
	}
	f.steps = map[string]stepFunc{
		StepPrograms:    pageStep(f.FetchProgramAndCategories),
		StepClasses:     pageStep(f.FetchClasses),
		StepSessions:    pageStep(f.FetchSessions),
		StepLocations:   pageStep(f.FetchLocations),
		StepMemberships: f.membershipStep,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Dir returns the working directory of this fetch.
func (f *Fetcher) Dir() string { return f.dir }

// IsEnabled reports whether fetching is switched on.
func (f *Fetcher) IsEnabled() bool { return f.cfg.Enabled }

// Fetch runs every step, then publishes the fetch completed event. A failing
// step is recorded in the event and the remaining steps still run. The
// returned error is only about publishing.
func (f *Fetcher) Fetch(ctx context.Context) (string, error) {
	ctx = logging.ContextWithPipeline(logging.ContextWithNewRunID(ctx), f.cfg.Pipeline)
	log := logging.Ctx(ctx)
	start := time.Now()
	results := make(map[string]StepResult, len(f.cfg.Steps))

	for _, step := range f.cfg.Steps {
		run, ok := f.steps[step]
		if !ok {
			err := fmt.Errorf("unknown fetch step %q", step)
			log.Error().Err(err).Msg("Something went wrong with the fetch steps")
			results[step] = StepResult{Error: err.Error()}
			continue
		}

		res, records, err := run(ctx)
		metrics.RecordFetchStep(f.cfg.Pipeline, step, records, err)
		if err != nil {
			log.Error().Err(err).Str("step", step).Msg("Fetch step failed")
			results[step] = StepResult{Error: err.Error()}
			continue
		}
		log.Debug().Str("step", step).Int("records", records).Msg("Fetch step done")
		results[step] = res
	}

	metrics.RecordFetch(f.cfg.Pipeline, time.Since(start))
	log.Info().Str("directory", f.dir).Dur("duration", time.Since(start)).Msg("TractionRec fetch done")

	if f.pub == nil {
		return f.dir, nil
	}
	if err := f.pub.PublishFetchCompleted(ctx, events.NewFetchCompleted(f.cfg.Pipeline, f.dir, results)); err != nil {
		return f.dir, fmt.Errorf("publish fetch completed: %w", err)
	}
	return f.dir, nil
}

func (f *Fetcher) path(name string) string {
	return filepath.Join(f.dir, name)
}
