package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/hopl-labs/hopl-backend/api/responses"
	pkgAuth "github.com/hopl-labs/hopl-backend/pkg/auth"
	"github.com/hopl-labs/hopl-backend/pkg/auth/session"
	"github.com/hopl-labs/hopl-backend/pkg/config"
	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
)

// Auth validates a bearer token, checks its session is still live and seeds
// the request context with the user id.
func Auth(cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			ctx, err := authenticate(r.Context(), cfg, verifier, logg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth authenticates the request when a bearer token is present and
// lets anonymous requests through. A token that is present but invalid is
// still rejected.
func OptionalAuth(cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx, err := authenticate(r.Context(), cfg, verifier, logg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return raw
}

func authenticate(ctx context.Context, cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger, token string) (context.Context, error) {
	claims, err := pkgAuth.ParseAccessToken(cfg, token)
	if err != nil {
		return ctx, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if claims.ID == "" {
		return ctx, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}

	if verifier != nil {
		ok, err := verifier.HasSession(ctx, claims.ID)
		if err != nil {
			return ctx, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session")
		}
		if !ok {
			return ctx, pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable")
		}
	}

	userID := claims.UserID.String()
	ctx = WithUserID(ctx, userID)
	if logg != nil {
		ctx = logg.WithUserID(ctx, userID)
	}
	return ctx, nil
}
