package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/hopl-labs/hopl-backend/api/responses"
	"github.com/hopl-labs/hopl-backend/pkg/config"
	"github.com/hopl-labs/hopl-backend/pkg/db"
	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
	"github.com/hopl-labs/hopl-backend/pkg/redis"
)

const readinessTimeout = 2 * time.Second

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Hopl-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when both the database and Redis answer.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Hopl-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{"database": "ok", "redis": "ok"}
		var failed *pkgerrors.Error
		if dbP == nil {
			checks["database"] = "unconfigured"
			failed = pkgerrors.New(pkgerrors.CodeDependency, "database unavailable")
		} else if err := dbP.Ping(ctx); err != nil {
			checks["database"] = "down"
			failed = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unavailable")
		}
		if redisP == nil {
			checks["redis"] = "unconfigured"
			if failed == nil {
				failed = pkgerrors.New(pkgerrors.CodeDependency, "redis unavailable")
			}
		} else if err := redisP.Ping(ctx); err != nil {
			checks["redis"] = "down"
			if failed == nil {
				failed = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unavailable")
			}
		}

		if failed != nil {
			responses.WriteError(r.Context(), logg, w, failed.WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
