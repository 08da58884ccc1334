package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hopl-labs/hopl-backend/pkg/config"
	"github.com/hopl-labs/hopl-backend/pkg/db/models"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
	"github.com/hopl-labs/hopl-backend/pkg/metrics"
	"github.com/hopl-labs/hopl-backend/pkg/outbox/registry"
)

const (
	workerName = "outbox-publisher"

	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxIdleBackoff        = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pingable interface {
	Ping(context.Context) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	DeadLetterTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Config        config.OutboxConfig
	Logger        *logger.Logger
	DB            dbClient
	Broker        pingable
	Repository    outboxRepository
	DLQRepository dlqRepository
	Registry      registryResolver
	Publishers    publisherSource
	Metrics       *metrics.WorkerMetrics
}

// Service drains outbox_events to Pub/Sub. Each batch runs in one transaction so row
// locks are held until every event in it is marked.
type Service struct {
	logg       *logger.Logger
	db         dbClient
	broker     pingable
	repo       outboxRepository
	dlq        dlqRepository
	registry   registryResolver
	publishers publisherSource
	metrics    *metrics.WorkerMetrics

	batchSize    int
	maxAttempts  int
	pollInterval time.Duration

	now      func() time.Time
	jitterMu sync.Mutex
	jitter   *rand.Rand
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Broker == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.Publishers == nil:
		return nil, errors.New("publisher source is required")
	}

	batch := params.Config.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	poll := time.Duration(params.Config.PollIntervalMS) * time.Millisecond
	if poll <= 0 {
		poll = defaultPollInterval
	}
	maxAttempts := params.Config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		broker:       params.Broker,
		repo:         params.Repository,
		dlq:          params.DLQRepository,
		registry:     params.Registry,
		publishers:   params.Publishers,
		metrics:      params.Metrics,
		batchSize:    batch,
		maxAttempts:  maxAttempts,
		pollInterval: poll,
		now:          func() time.Time { return time.Now().UTC() },
		jitter:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Run polls until ctx is canceled. A full batch is followed immediately by another poll;
// an empty one waits for the poll interval, and a failed one backs off exponentially.
func (s *Service) Run(ctx context.Context) error {
	if err := s.checkDependencies(ctx); err != nil {
		return err
	}

	backoff := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		stats, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			backoff = nextBackoff(backoff, s.pollInterval, maxIdleBackoff)
			if err := s.sleep(ctx, s.withJitter(backoff)); err != nil {
				return err
			}
		case stats.fetched >= s.batchSize:
			backoff = s.pollInterval
		default:
			backoff = s.pollInterval
			if err := s.sleep(ctx, s.withJitter(s.pollInterval)); err != nil {
				return err
			}
		}
	}
}

func (s *Service) checkDependencies(ctx context.Context) error {
	for _, dep := range []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", s.db.Ping},
		{"pubsub", s.broker.Ping},
	} {
		if err := dep.ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", dep.name), err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}
	return nil
}

type batchStats struct {
	fetched      int
	published    int
	retried      int
	deadLettered int
}

func (s *Service) processBatch(ctx context.Context) (batchStats, error) {
	var stats batchStats
	started := time.Now()

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		stats.fetched = len(events)

		for _, event := range events {
			result, err := s.dispatch(ctx, tx, event)
			if err != nil {
				return err
			}
			switch result {
			case outcomePublished:
				stats.published++
			case outcomeRetry:
				stats.retried++
			case outcomeDeadLettered:
				stats.deadLettered++
			}
		}
		return nil
	})

	if stats.fetched > 0 {
		s.metrics.ObserveBatch(workerName, time.Since(started))
	}
	if err != nil {
		s.metrics.IncFailure(workerName)
		return batchStats{}, err
	}
	// Marks only count once the transaction committed.
	s.metrics.AddSuccess(workerName, stats.published)
	for i := 0; i < stats.retried+stats.deadLettered; i++ {
		s.metrics.IncFailure(workerName)
	}
	return stats, nil
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Service) withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	s.jitterMu.Lock()
	defer s.jitterMu.Unlock()
	return d + time.Duration(s.jitter.Int63n(int64(jitterWindow)))
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}
