// Package scheduler runs the server's periodic jobs on a clock.Clock, one
// goroutine per job. A job never overlaps with itself: a tick that arrives
// while the previous run is still going is dropped.
package scheduler

import (
	"context"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/clock"
	"github.com/dmitrijs2005/subkeeper/internal/logging"
	"github.com/dmitrijs2005/subkeeper/internal/server/services"
	"golang.org/x/sync/errgroup"
)

type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Lifecycle is the part of services.LifecycleService the jobs call.
type Lifecycle interface {
	RunSweep(ctx context.Context) (*services.SweepReport, error)
	RunOtpCleanup(ctx context.Context) (int64, error)
}

// LifecycleJobs returns the renewal sweep and the OTP cleanup jobs.
func LifecycleJobs(l Lifecycle, sweepEvery, otpCleanupEvery time.Duration) []Job {
	return []Job{
		{
			Name:     "sweep",
			Interval: sweepEvery,
			Run: func(ctx context.Context) error {
				_, err := l.RunSweep(ctx)
				return err
			},
		},
		{
			Name:     "otp_cleanup",
			Interval: otpCleanupEvery,
			Run: func(ctx context.Context) error {
				_, err := l.RunOtpCleanup(ctx)
				return err
			},
		},
	}
}

type Scheduler struct {
	clock clock.Clock
	log   logging.Logger
	jobs  []Job
}

func New(clk clock.Clock, log logging.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{
		clock: clk,
		log:   log.With("module", "scheduler"),
		jobs:  jobs,
	}
}

// Run blocks until ctx is done. Job errors are logged and the job keeps
// its schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, j := range s.jobs {
		g.Go(func() error {
			s.loop(ctx, j)
			return nil
		})
	}
	s.log.Info(ctx, "scheduler started", "jobs", len(s.jobs))
	err := g.Wait()
	s.log.Info(context.WithoutCancel(ctx), "scheduler stopped")
	return err
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	t := s.clock.NewTicker(j.Interval)
	defer t.Stop()

	log := s.log.With("job", j.Name)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := j.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error(ctx, "job failed", "error", err)
			}
		}
	}
}
