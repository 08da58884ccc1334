package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/hopl-labs/hopl-backend/pkg/logger"
	"github.com/hopl-labs/hopl-backend/pkg/metrics"
)

const (
	defaultInterval   = time.Hour
	defaultJobTimeout = 10 * time.Minute
)

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.WorkerMetrics
	Interval time.Duration
	// JobTimeout bounds each job run; zero means defaultJobTimeout.
	JobTimeout time.Duration
}

// Service runs the registered maintenance jobs on a fixed cadence. Only one
// instance per environment runs a cycle at a time.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.WorkerMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

// cycleReport summarizes one pass over the registry.
type cycleReport struct {
	skipped bool
	ran     int
	failed  []string
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	svc := &Service{
		logg:       params.Logger,
		registry:   params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
	}
	if svc.registry == nil {
		svc.registry = &Registry{}
	}
	if svc.interval <= 0 {
		svc.interval = defaultInterval
	}
	if svc.jobTimeout <= 0 {
		svc.jobTimeout = defaultJobTimeout
	}
	return svc, nil
}

// Run executes a cycle immediately and then once per interval until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		report, err := s.runCycle(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "maintenance cycle failed", err)
		case !report.skipped:
			s.logg.Info(s.logg.WithFields(ctx, map[string]any{
				"jobs_run":    report.ran,
				"jobs_failed": report.failed,
			}), "maintenance cycle complete")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) runCycle(ctx context.Context) (cycleReport, error) {
	var report cycleReport
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return report, fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "maintenance cycle held by another instance")
		report.skipped = true
		return report, nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "failed to release cron lock", err)
		}
	}()

	for _, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			break
		}
		report.ran++
		if err := s.runJob(ctx, job); err != nil {
			report.failed = append(report.failed, job.Name())
		}
	}
	return report, nil
}

// runJob runs one job under its own deadline. A panic counts as a failure
// and does not stop the cycle.
func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})
	jobCtx, cancel := context.WithTimeout(jobCtx, s.jobTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job panicked: %v", rec)
		}
		elapsed := time.Since(start)
		s.metrics.ObserveBatch(name, elapsed)
		logCtx := s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
		if err != nil {
			s.metrics.IncFailure(name)
			s.logg.Error(logCtx, "job failed", err)
			return
		}
		s.metrics.AddSuccess(name, 1)
		s.logg.Debug(logCtx, "job completed")
	}()

	return job.Run(jobCtx)
}
