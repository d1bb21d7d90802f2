package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
	"github.com/angelmondragon/partsreserve-backend/pkg/metrics"
)

const (
	defaultInterval   = time.Minute
	defaultJobTimeout = 3 * time.Minute
)

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	// Interval is how often the worker wakes to look for due jobs.
	Interval time.Duration
	// JobTimeout bounds a single job run. Keep it below the lock TTL.
	JobTimeout time.Duration
}

// Service wakes once per interval and, while holding the lock, runs the
// jobs whose cadence has elapsed.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
	now        func() time.Time

	mu      sync.Mutex
	lastRun map[string]time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Service{
		logg:       params.Logger,
		registry:   registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   positive(params.Interval, defaultInterval),
		jobTimeout: positive(params.JobTimeout, defaultJobTimeout),
		now:        time.Now,
		lastRun:    map[string]time.Time{},
	}, nil
}

func positive(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// Run checks for due jobs immediately and then once per interval until ctx
// is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "scheduled run failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs every due job. A failing job does not stop the others and
// the returned error combines all failures. Failed jobs are retried on the
// next cycle rather than after their full cadence.
func (s *Service) RunOnce(ctx context.Context) error {
	due := s.due()
	if len(due) == 0 {
		return nil
	}
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.metrics.ObserveSkip(metrics.SkipLockHeld)
		s.logg.Info(ctx, "another cron instance holds the lock; skipping cycle")
		return nil
	}
	defer func() {
		err := s.lock.Release(context.WithoutCancel(ctx))
		switch {
		case errors.Is(err, ErrLeaseLost):
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "cron lease expired mid-cycle; raise the lock ttl")
		case err != nil:
			s.logg.Error(ctx, "release cron lock", err)
		}
	}()

	var errs error
	for _, schedule := range due {
		started := s.now()
		if err := s.runJob(ctx, schedule.Job); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", schedule.Job.Name(), err))
			continue
		}
		s.mu.Lock()
		s.lastRun[schedule.Job.Name()] = started
		s.mu.Unlock()
	}
	return errs
}

func (s *Service) due() []Schedule {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []Schedule
	for _, schedule := range s.registry.Schedules() {
		last, ran := s.lastRun[schedule.Job.Name()]
		if !ran || schedule.Every == 0 || now.Sub(last) >= schedule.Every {
			due = append(due, schedule)
		}
	}
	return due
}

func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	jobCtx, cancel := context.WithTimeout(s.logg.WithField(ctx, "job", job.Name()), s.jobTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
		elapsed := time.Since(start)
		s.metrics.ObserveRun(job.Name(), elapsed, err)
		logCtx := s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
		if err != nil {
			s.logg.Error(logCtx, "job failed", err)
			return
		}
		s.logg.Info(logCtx, "job completed")
	}()
	return job.Run(jobCtx)
}
