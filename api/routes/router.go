package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hopl-labs/hopl-backend/api/controllers"
	webhookcontrollers "github.com/hopl-labs/hopl-backend/api/controllers/webhooks"
	"github.com/hopl-labs/hopl-backend/api/middleware"
	"github.com/hopl-labs/hopl-backend/internal/auth"
	"github.com/hopl-labs/hopl-backend/internal/documents"
	"github.com/hopl-labs/hopl-backend/pkg/auth/session"
	"github.com/hopl-labs/hopl-backend/pkg/config"
	"github.com/hopl-labs/hopl-backend/pkg/db"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
	"github.com/hopl-labs/hopl-backend/pkg/redis"
)

// RedisStore is the Redis surface the HTTP layer needs: readiness, auth rate
// limits and Idempotency-Key replay.
type RedisStore interface {
	redis.Pinger
	redis.IdempotencyStore
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Dependencies bundles everything the router mounts.
type Dependencies struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    RedisStore
	Sessions session.AccessSessionChecker

	Auth      auth.Service
	Users     controllers.UserService
	Scans     controllers.ScanService
	Documents controllers.DocumentService
	Renderer  documents.Renderer
	Payments  controllers.PaymentService
	Credits   controllers.CreditService

	StripeWebhook      webhookcontrollers.StripeWebhookService
	StripeVerifier     webhookcontrollers.EventVerifier
	StripeWebhookGuard webhookcontrollers.StripeWebhookGuard

	// Metrics serves /metrics; nil leaves the route unmounted.
	Metrics http.Handler
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Recoverer(logg),
		middleware.CORS(cfg.App.AllowedOrigins),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	requireAuth := middleware.Auth(cfg.JWT, deps.Sessions, logg)
	idempotent := middleware.Idempotency(deps.Redis, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhook, deps.StripeVerifier, deps.StripeWebhookGuard, logg))

		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.AuthRateLimit(registerPolicy, deps.Redis, logg)).Post("/register", controllers.AuthRegister(deps.Auth, logg))
			r.With(middleware.AuthRateLimit(loginPolicy, deps.Redis, logg)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
			r.Post("/logout", controllers.AuthLogout(deps.Auth, logg))
			r.Post("/refresh", controllers.AuthRefresh(deps.Auth, logg))
		})

		r.Route("/scan", func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, deps.Sessions, logg))
			r.Post("/", controllers.ScanCreate(deps.Scans, cfg.FeatureFlags.AnonymousScans, logg))
			r.Get("/{scanId}", controllers.ScanGet(deps.Scans, logg))
		})

		r.Route("/documents", func(r chi.Router) {
			r.Get("/types", controllers.DocumentTypes(deps.Documents, logg))
			r.Group(func(r chi.Router) {
				r.Use(requireAuth, idempotent)
				r.Post("/generate", controllers.DocumentGenerate(deps.Documents, logg))
				r.Get("/", controllers.DocumentList(deps.Documents, logg))
				r.Get("/{documentId}", controllers.DocumentGet(deps.Documents, logg))
				r.Get("/{documentId}/pdf", controllers.DocumentDownload(deps.Documents, deps.Renderer, logg))
			})
		})

		r.Route("/payments", func(r chi.Router) {
			r.Get("/plans", controllers.PaymentPlans(deps.Payments, logg))
			r.With(requireAuth, idempotent).Post("/checkout", controllers.PaymentCheckout(deps.Payments, logg))
		})

		r.Route("/credits", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", controllers.CreditsBalance(deps.Credits, logg))
			r.Get("/history", controllers.CreditsHistory(deps.Credits, logg))
		})

		r.With(requireAuth).Get("/user/me", controllers.UserMe(deps.Users, logg))
	})

	return r
}
