// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tomtom215/tractionsync/internal/logging"
	"github.com/tomtom215/tractionsync/internal/metrics"
)

// DefaultStopTimeout bounds how long Serve waits for running jobs on shutdown.
const DefaultStopTimeout = 30 * time.Second

// ErrUnknownJob is returned by Trigger for a name no job carries.
var ErrUnknownJob = errors.New("unknown job")

var parser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Job is one named unit of periodic work.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Service runs jobs on their schedules. It implements suture.Service.
type Service struct {
	name        string
	jobs        map[string]Job
	stopTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithStopTimeout overrides DefaultStopTimeout.
func WithStopTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.stopTimeout = d
		}
	}
}

// New validates every schedule up front so a typo fails at startup rather
// than silently never running.
func New(name string, jobs []Job, opts ...Option) (*Service, error) {
	s := &Service{
		name:        name,
		jobs:        make(map[string]Job, len(jobs)),
		stopTimeout: DefaultStopTimeout,
	}
	for _, j := range jobs {
		if j.Name == "" || j.Run == nil {
			return nil, fmt.Errorf("scheduler %s: job needs a name and a run function", name)
		}
		if _, dup := s.jobs[j.Name]; dup {
			return nil, fmt.Errorf("scheduler %s: duplicate job %q", name, j.Name)
		}
		if j.Schedule != "" {
			if _, err := parser.Parse(j.Schedule); err != nil {
				return nil, fmt.Errorf("scheduler %s: job %q: invalid schedule %q: %w", name, j.Name, j.Schedule, err)
			}
		}
		s.jobs[j.Name] = j
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Jobs returns the job names in sorted order.
func (s *Service) Jobs() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Scheduled returns the names of jobs that have a schedule.
func (s *Service) Scheduled() []string {
	var names []string
	for _, name := range s.Jobs() {
		if s.jobs[name].Schedule != "" {
			names = append(names, name)
		}
	}
	return names
}

// Trigger runs the named job now, in the caller's goroutine.
func (s *Service) Trigger(ctx context.Context, name string) error {
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, j)
}

func (s *Service) run(ctx context.Context, j Job) error {
	ctx = logging.ContextWithNewRunID(ctx)
	start := time.Now()
	err := j.Run(ctx)
	metrics.RecordScheduledJob(j.Name, time.Since(start), err)
	log := logging.Ctx(ctx)
	if err != nil {
		log.Error().Err(err).Str("job", j.Name).Msg("Scheduled job failed")
		return err
	}
	log.Debug().Str("job", j.Name).Dur("duration", time.Since(start)).Msg("Scheduled job done")
	return nil
}

// Serve starts the cron runner and blocks until ctx is canceled, then waits
// up to the stop timeout for running jobs.
func (s *Service) Serve(ctx context.Context) error {
	logger := logging.NewCronLogger()
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(logger),
		cron.WithChain(
			cron.SkipIfStillRunning(logger),
			cron.Recover(logger),
		),
	)

	for _, name := range s.Scheduled() {
		j := s.jobs[name]
		if _, err := c.AddFunc(j.Schedule, func() {
			_ = s.run(ctx, j) //nolint:errcheck // logged and recorded in run
		}); err != nil {
			return fmt.Errorf("schedule job %q: %w", j.Name, err)
		}
	}

	c.Start()
	logging.Info().Str("scheduler", s.name).Strs("jobs", s.Scheduled()).Msg("Scheduler started")

	<-ctx.Done()

	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(s.stopTimeout):
		logging.Warn().Str("scheduler", s.name).Dur("timeout", s.stopTimeout).Msg("Scheduled jobs still running at shutdown")
	}
	return ctx.Err()
}

// String implements fmt.Stringer for suture logging.
func (s *Service) String() string {
	return s.name
}
