package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/hopl-labs/hopl-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultOutboxAttempts  = 10
	// Dead rows stay around longer than published ones so a failed event can
	// still be inspected next to its DLQ copy.
	deadRowRetentionFactor = 3
)

type OutboxRetentionJobParams struct {
	Logger      *logger.Logger
	Repository  outboxPruner
	Retention   time.Duration
	MaxAttempts int
}

type outboxPruner interface {
	DeleteExpired(ctx context.Context, publishedBefore, deadBefore time.Time, maxAttempts int) (int64, error)
}

// NewOutboxRetentionJob prunes delivered and dead outbox rows.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:        params.Logger,
		repo:        params.Repository,
		retention:   params.Retention,
		maxAttempts: params.MaxAttempts,
		now:         time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.maxAttempts <= 0 {
		job.maxAttempts = defaultOutboxAttempts
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	repo        outboxPruner
	retention   time.Duration
	maxAttempts int
	now         func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	publishedBefore := now.Add(-j.retention)
	deadBefore := now.Add(-j.retention * deadRowRetentionFactor)

	deleted, err := j.repo.DeleteExpired(ctx, publishedBefore, deadBefore, j.maxAttempts)
	if err != nil {
		return fmt.Errorf("prune outbox: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"published_before": publishedBefore,
		"dead_before":      deadBefore,
		"rows_deleted":     deleted,
	}), "outbox pruned")
	return nil
}
