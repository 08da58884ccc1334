package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hopl-labs/hopl-backend/internal/cron"
	"github.com/hopl-labs/hopl-backend/internal/documents"
	"github.com/hopl-labs/hopl-backend/internal/ledger"
	"github.com/hopl-labs/hopl-backend/internal/payments"
	"github.com/hopl-labs/hopl-backend/internal/rules"
	"github.com/hopl-labs/hopl-backend/internal/scanner"
	"github.com/hopl-labs/hopl-backend/internal/scans"
	"github.com/hopl-labs/hopl-backend/pkg/config"
	"github.com/hopl-labs/hopl-backend/pkg/db"
	"github.com/hopl-labs/hopl-backend/pkg/instance"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
	"github.com/hopl-labs/hopl-backend/pkg/metrics"
	"github.com/hopl-labs/hopl-backend/pkg/migrate"
	"github.com/hopl-labs/hopl-backend/pkg/outbox"
	"github.com/hopl-labs/hopl-backend/pkg/redis"
)

const lockName = "cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	metricsCollector := metrics.NewWorkerMetrics(prometheus.DefaultRegisterer)
	// The lock outlives one interval so a slow cycle is never overlapped.
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName, cfg.App.Env), 2*cfg.Cron.Interval)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	documentService, err := newDocumentService(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create document service", err)
		os.Exit(1)
	}

	outboxJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		Repository:  outbox.NewRepository(dbClient.DB()),
		Retention:   time.Duration(cfg.Cron.OutboxRetentionDays) * 24 * time.Hour,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}
	paymentJob, err := cron.NewPaymentExpiryJob(cron.PaymentExpiryJobParams{
		Logger:     logg,
		Repository: payments.NewRepository(dbClient.DB()),
		TTL:        cfg.Cron.PendingPaymentTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment expiry job", err)
		os.Exit(1)
	}
	recoveryJob, err := cron.NewGenerationRecoveryJob(cron.GenerationRecoveryJobParams{
		Logger:    logg,
		Recoverer: documentService,
		After:     cfg.Cron.StalledGenerationAfter,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create generation recovery job", err)
		os.Exit(1)
	}

	registry, err := cron.NewRegistry(recoveryJob, paymentJob, outboxJob)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// newDocumentService wires the document service with the same collaborators the
// API uses; the worker only calls RecoverStalled on it.
func newDocumentService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*documents.Service, error) {
	events := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	generationMetrics := metrics.NewGenerationMetrics(prometheus.DefaultRegisterer)

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		DB:            dbClient,
		Repo:          ledger.NewRepository(dbClient.DB()),
		Outbox:        events,
		Logger:        logg,
		Metrics:       generationMetrics,
		Config:        cfg.Ledger,
		EventsEnabled: cfg.FeatureFlags.EventsEnabled,
	})
	if err != nil {
		return nil, err
	}
	scanService, err := scans.NewService(scans.ServiceParams{
		DB:            dbClient,
		Repo:          scans.NewRepository(dbClient.DB()),
		Scanner:       scanner.New(rules.Default(), scanner.NewHTTPFetcher(cfg.Scanner), logg),
		Cache:         redisClient,
		Outbox:        events,
		Logger:        logg,
		Config:        cfg.Scanner,
		EventsEnabled: cfg.FeatureFlags.EventsEnabled,
	})
	if err != nil {
		return nil, err
	}
	templates, err := documents.DefaultStore()
	if err != nil {
		return nil, err
	}
	generator, err := documents.NewGenerator(cfg.OpenAI)
	if err != nil {
		return nil, err
	}
	return documents.NewService(documents.ServiceParams{
		DB:            dbClient,
		Repo:          documents.NewRepository(dbClient.DB()),
		Templates:     templates,
		Generator:     generator,
		Ledger:        ledgerService,
		Scans:         scanService,
		Outbox:        events,
		Logger:        logg,
		Metrics:       generationMetrics,
		Config:        cfg.Generation,
		EventsEnabled: cfg.FeatureFlags.EventsEnabled,
	})
}
