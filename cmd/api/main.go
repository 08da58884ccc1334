package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hopl-labs/hopl-backend/api/routes"
	"github.com/hopl-labs/hopl-backend/internal/auth"
	"github.com/hopl-labs/hopl-backend/internal/documents"
	"github.com/hopl-labs/hopl-backend/internal/ledger"
	"github.com/hopl-labs/hopl-backend/internal/payments"
	"github.com/hopl-labs/hopl-backend/internal/rules"
	"github.com/hopl-labs/hopl-backend/internal/scanner"
	"github.com/hopl-labs/hopl-backend/internal/scans"
	"github.com/hopl-labs/hopl-backend/internal/users"
	stripewebhook "github.com/hopl-labs/hopl-backend/internal/webhooks/stripe"
	"github.com/hopl-labs/hopl-backend/pkg/auth/session"
	"github.com/hopl-labs/hopl-backend/pkg/config"
	"github.com/hopl-labs/hopl-backend/pkg/db"
	"github.com/hopl-labs/hopl-backend/pkg/instance"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
	"github.com/hopl-labs/hopl-backend/pkg/metrics"
	"github.com/hopl-labs/hopl-backend/pkg/migrate"
	"github.com/hopl-labs/hopl-backend/pkg/outbox"
	"github.com/hopl-labs/hopl-backend/pkg/redis"
	pkgstripe "github.com/hopl-labs/hopl-backend/pkg/stripe"
)

const (
	serviceName     = "api"
	shutdownTimeout = 15 * time.Second
	webhookScope    = "stripe-webhook"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
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

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	userRepo := users.NewRepository(dbClient.DB())
	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	eventsEnabled := cfg.FeatureFlags.EventsEnabled
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	scanMetrics := metrics.NewScanMetrics(prometheus.DefaultRegisterer)
	generationMetrics := metrics.NewGenerationMetrics(prometheus.DefaultRegisterer)

	siteScanner := scanner.New(rules.Default(), scanner.NewHTTPFetcher(cfg.Scanner), logg)
	scanService, err := scans.NewService(scans.ServiceParams{
		DB:            dbClient,
		Repo:          scans.NewRepository(dbClient.DB()),
		Scanner:       siteScanner,
		Cache:         redisClient,
		Outbox:        outboxService,
		Logger:        logg,
		Metrics:       scanMetrics,
		Config:        cfg.Scanner,
		EventsEnabled: eventsEnabled,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create scan service", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		DB:            dbClient,
		Repo:          ledger.NewRepository(dbClient.DB()),
		Outbox:        outboxService,
		Logger:        logg,
		Metrics:       generationMetrics,
		Config:        cfg.Ledger,
		EventsEnabled: eventsEnabled,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger", err)
		os.Exit(1)
	}

	templates, err := documents.DefaultStore()
	if err != nil {
		logg.Error(context.Background(), "failed to load document templates", err)
		os.Exit(1)
	}
	generator, err := documents.NewGenerator(cfg.OpenAI)
	if err != nil {
		logg.Error(context.Background(), "failed to create document generator", err)
		os.Exit(1)
	}
	documentService, err := documents.NewService(documents.ServiceParams{
		DB:            dbClient,
		Repo:          documents.NewRepository(dbClient.DB()),
		Templates:     templates,
		Generator:     generator,
		Ledger:        ledgerService,
		Scans:         scanService,
		Outbox:        outboxService,
		Logger:        logg,
		Metrics:       generationMetrics,
		Config:        cfg.Generation,
		EventsEnabled: eventsEnabled,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create document service", err)
		os.Exit(1)
	}

	paymentRepo := payments.NewRepository(dbClient.DB())
	paymentParams := payments.ServiceParams{
		Repo:   paymentRepo,
		Logger: logg,
		Config: cfg.Payments,
	}
	deps := routes.Dependencies{
		Config:    cfg,
		Logger:    logg,
		DB:        dbClient,
		Redis:     redisClient,
		Sessions:  sessionManager,
		Auth:      authService,
		Users:     users.NewService(userRepo),
		Scans:     scanService,
		Documents: documentService,
		Credits:   ledgerService,
		Renderer:  documents.PDFRenderer{FontPath: cfg.Generation.PDFFontPath},
		Metrics:   promhttp.Handler(),
	}

	// Without Stripe credentials the catalog stays readable and checkout
	// reports the provider as unavailable.
	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Warn(logg.WithField(context.Background(), "error", err.Error()), "stripe disabled")
	} else {
		paymentParams.Stripe = stripeClient
		webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
			DB:       dbClient,
			Payments: paymentRepo,
			Ledger:   ledgerService,
			Logger:   logg,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create stripe webhook service", err)
			os.Exit(1)
		}
		guard, err := stripewebhook.NewIdempotencyGuard(redisClient, stripewebhook.DefaultGuardTTL, webhookScope)
		if err != nil {
			logg.Error(context.Background(), "failed to create stripe webhook guard", err)
			os.Exit(1)
		}
		deps.StripeWebhook = webhookService
		deps.StripeVerifier = stripeClient
		deps.StripeWebhookGuard = guard
	}

	paymentService, err := payments.NewService(paymentParams)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}
	deps.Payments = paymentService

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
		"events":   eventsEnabled,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shutting down gracefully")
	}
}
