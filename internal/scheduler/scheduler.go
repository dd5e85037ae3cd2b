// Package scheduler drives the ingestion pipeline at fixed hours of the day.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/elonfeng/vidpulse/internal/ingest"
)

// DefaultHours are the run hours used when none are configured.
var DefaultHours = []int{9, 12, 18}

// Runner executes one ingestion pass as of at.
type Runner interface {
	Run(ctx context.Context, at time.Time) (*ingest.RunSummary, error)
}

// Options configures a Scheduler.
type Options struct {
	Hours      []int
	Location   *time.Location
	RunOnStart bool
	Logger     *slog.Logger
}

// Scheduler runs the pipeline at each configured hour.
type Scheduler struct {
	runner     Runner
	hours      []int
	loc        *time.Location
	runOnStart bool
	log        *slog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// New creates a new scheduler.
func New(r Runner, opts Options) *Scheduler {
	hours := slices.Clone(opts.Hours)
	if len(hours) == 0 {
		hours = slices.Clone(DefaultHours)
	}
	slices.Sort(hours)
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		runner:     r,
		hours:      slices.Compact(hours),
		loc:        opts.Location,
		runOnStart: opts.RunOnStart,
		log:        opts.Logger,
		now:        time.Now,
		after:      time.After,
	}
}

// NextRun returns the earliest configured hour strictly after now, in
// now's location. When every hour today has passed it is the first hour
// of the next day.
func NextRun(now time.Time, hours []int) time.Time {
	if len(hours) == 0 {
		hours = DefaultHours
	}
	y, m, d := now.Date()
	var next time.Time
	for _, h := range hours {
		t := time.Date(y, m, d, h, 0, 0, 0, now.Location())
		if !t.After(now) {
			t = time.Date(y, m, d+1, h, 0, 0, 0, now.Location())
		}
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	return next
}

// Run blocks until ctx is cancelled, running the pipeline at every
// scheduled instant. A failed run is logged and the loop continues.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.runOnStart {
		s.log.Info("scheduler: initial run")
		s.runOnce(ctx, s.now())
	}

	for {
		if err := ctx.Err(); err != nil {
			s.log.Info("scheduler: stopped")
			return err
		}

		next := NextRun(s.now().In(s.loc), s.hours)
		wait := next.Sub(s.now())
		s.log.Info("scheduler: waiting", "next_run", next.Format(time.RFC3339), "in", wait.Round(time.Second).String())

		select {
		case <-ctx.Done():
			s.log.Info("scheduler: stopped")
			return ctx.Err()
		case <-s.after(wait):
			s.runOnce(ctx, next)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, at time.Time) {
	sum, err := s.runner.Run(ctx, at)
	switch {
	case errors.Is(err, ingest.ErrRunInProgress):
		s.log.Warn("scheduler: run skipped, another run is active", "at", at)
	case err != nil:
		s.log.Error("scheduler: run failed", "at", at, "err", err)
	default:
		s.log.Info("scheduler: run finished",
			"run_id", sum.RunID,
			"succeeded", sum.Succeeded,
			"failed", sum.Failed,
			"alerts", len(sum.Alerts),
		)
	}
}
