package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/relivv-escrow/pkg/logger"
	"github.com/angelmondragon/relivv-escrow/pkg/metrics"
)

const defaultInterval = 5 * time.Minute

// ErrUnknownJob is returned by RunJob for a name the registry does not hold.
var ErrUnknownJob = errors.New("unknown cron job")

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// JobTimeout caps a single job run. Zero means no cap beyond ctx.
	JobTimeout time.Duration
}

// Service runs the registered jobs once per interval on whichever replica
// wins the lock.
type Service struct {
	logg       *logger.Logger
	jobs       *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

// Report describes one cycle.
type Report struct {
	// Skipped is set when another replica held the lock.
	Skipped bool
	Ran     []string
	// Failures joins every job error of the cycle.
	Failures error
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Logger == nil || p.Lock == nil {
		return nil, errors.New("cron service needs a logger and a lock")
	}
	s := &Service{
		logg:       p.Logger,
		jobs:       p.Registry,
		lock:       p.Lock,
		metrics:    p.Metrics,
		interval:   p.Interval,
		jobTimeout: p.JobTimeout,
	}
	if s.jobs == nil {
		s.jobs = &Registry{byName: map[string]Job{}}
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	return s, nil
}

// Run starts a cycle right away and again on every tick until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs every job under the lock. Job failures land in the report;
// the returned error covers lock trouble and cancellation.
func (s *Service) RunOnce(ctx context.Context) (Report, error) {
	var report Report
	err := s.locked(ctx, &report, func() error {
		for _, job := range s.jobs.Jobs() {
			if err := ctx.Err(); err != nil {
				return err
			}
			report.Ran = append(report.Ran, job.Name())
			report.Failures = multierr.Append(report.Failures, s.runJob(ctx, job))
		}
		return nil
	})
	return report, err
}

// RunJob runs the named job alone under the lock.
func (s *Service) RunJob(ctx context.Context, name string) (Report, error) {
	job, ok := s.jobs.Lookup(name)
	if !ok {
		return Report{}, fmt.Errorf("%w %q (have %v)", ErrUnknownJob, name, s.jobs.Names())
	}
	var report Report
	err := s.locked(ctx, &report, func() error {
		report.Ran = []string{name}
		report.Failures = s.runJob(ctx, job)
		return nil
	})
	return report, err
}

func (s *Service) locked(ctx context.Context, report *Report, fn func() error) error {
	release, err := s.lock.TryAcquire(ctx)
	if err != nil {
		return err
	}
	if release == nil {
		report.Skipped = true
		s.logg.Info(ctx, "cron lock held by another replica, skipping")
		return nil
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "cron lock release failed", err)
		}
	}()
	return fn()
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	ctx = s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
	}

	started := time.Now()
	err := job.Run(ctx)
	took := time.Since(started)
	s.metrics.ObserveRun(job.Name(), took, err)

	ctx = s.logg.WithField(ctx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "cron job failed", err)
		return fmt.Errorf("%s: %w", job.Name(), err)
	}
	s.logg.Info(ctx, "cron job done")
	return nil
}
