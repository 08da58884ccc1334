package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/hopl-labs/hopl-backend/pkg/config"
	"github.com/hopl-labs/hopl-backend/pkg/db"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
	"github.com/hopl-labs/hopl-backend/pkg/metrics"
	"github.com/hopl-labs/hopl-backend/pkg/migrate"
	"github.com/hopl-labs/hopl-backend/pkg/outbox"
	"github.com/hopl-labs/hopl-backend/pkg/outbox/registry"
	"github.com/hopl-labs/hopl-backend/pkg/pubsub"
)

func main() {
	_ = godotenv.Load()

	logg := logger.New(logger.Options{ServiceName: workerName})
	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "outbox.config_failed", err)
		os.Exit(1)
	}
	cfg.Service.Kind = workerName
	logg = logger.New(logger.Options{
		ServiceName: workerName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "service_kind": workerName})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "outbox.publisher_failed", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "outbox.publisher_stopped")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	ps, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, ps.Close()) }()

	events, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return err
	}

	// Stop flushes pending publishes, so it must run before the client closes.
	publishers := newTopicPublishers(ps)
	defer publishers.Stop()

	repo := outbox.NewRepository(dbClient.DB())
	svc, err := NewService(ServiceParams{
		Config:        cfg.Outbox,
		Logger:        logg,
		DB:            dbClient,
		Broker:        ps,
		Repository:    repo,
		DLQRepository: repo,
		Registry:      events,
		Publishers:    publishers,
		Metrics:       metrics.NewWorkerMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return err
	}

	logg.Info(ctx, "outbox.publisher_ready")
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
