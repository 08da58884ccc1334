package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/hopl-labs/hopl-backend/internal/analytics/router"
	"github.com/hopl-labs/hopl-backend/internal/analytics/worker"
	"github.com/hopl-labs/hopl-backend/internal/analytics/writer"
	"github.com/hopl-labs/hopl-backend/pkg/bigquery"
	"github.com/hopl-labs/hopl-backend/pkg/config"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
	"github.com/hopl-labs/hopl-backend/pkg/outbox/idempotency"
	"github.com/hopl-labs/hopl-backend/pkg/pubsub"
	"github.com/hopl-labs/hopl-backend/pkg/redis"
)

const (
	serviceName  = "analytics-worker"
	flushTimeout = 10 * time.Second
)

func main() {
	_ = godotenv.Load()

	logg := logger.New(logger.Options{ServiceName: serviceName})
	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "analytics.config_failed", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName
	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "service_kind": serviceName})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "analytics.worker_failed", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "analytics.worker_stopped")
}

// run owns every client so deferred closes happen before main exits.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	ps, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, ps.Close()) }()

	if err := ps.EnsureSubscription(ctx, cfg.PubSub.AnalyticsSubscription); err != nil {
		return err
	}
	subscription := ps.AnalyticsSubscription()
	if subscription == nil {
		return errors.New("analytics subscription not configured")
	}

	bq, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		return fmt.Errorf("bigquery: %w", err)
	}
	defer func() { err = multierr.Append(err, bq.Close()) }()

	marks, err := idempotency.NewManager(redisClient, worker.ConsumerName, cfg.Eventing.IdempotencyTTL)
	if err != nil {
		return err
	}
	facts, err := writer.New(bq, writer.Config{
		ScanFactsTable:   cfg.BigQuery.ScanFactsTable,
		GenerationTable:  cfg.BigQuery.GenerationTable,
		CreditFactsTable: cfg.BigQuery.CreditFactsTable,
	})
	if err != nil {
		return err
	}
	routes, err := router.NewRouter(facts, logg, nil)
	if err != nil {
		return err
	}
	svc, err := worker.NewService(subscription, routes, marks, logg)
	if err != nil {
		return err
	}

	logg.Info(ctx, "analytics.worker_ready")
	runErr := svc.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	// ctx is already canceled here; buffered rows get their own deadline.
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	return multierr.Append(runErr, facts.Flush(flushCtx))
}
