package controllers

import (
	"net/http"
	"strings"

	"github.com/hopl-labs/hopl-backend/api/middleware"
	"github.com/hopl-labs/hopl-backend/api/responses"
	"github.com/hopl-labs/hopl-backend/api/validators"
	"github.com/hopl-labs/hopl-backend/internal/auth"
	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
)

const (
	accessTokenHeader  = "X-Hopl-Token"
	refreshTokenHeader = "X-Refresh-Token"
)

// AuthRegister creates an account and signs it in.
func AuthRegister(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var body auth.RegisterRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Register(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set(accessTokenHeader, result.AccessToken)
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// AuthLogin wires the login endpoint into the HTTP layer.
func AuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var body auth.LoginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Login(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set(accessTokenHeader, result.AccessToken)
		responses.WriteSuccess(w, result)
	}
}

// AuthLogout revokes the session behind the presented access token.
func AuthLogout(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		token := middleware.BearerToken(r)
		if token == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}
		if err := svc.Logout(r.Context(), token); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"logged_out": true})
	}
}

// AuthRefresh exchanges a refresh token for a new pair. The access token may
// already be expired. The refresh token comes from X-Refresh-Token or the body.
func AuthRefresh(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		token := middleware.BearerToken(r)
		if token == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}
		refresh := strings.TrimSpace(r.Header.Get(refreshTokenHeader))
		if refresh == "" && r.ContentLength != 0 {
			var body auth.RefreshRequest
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			refresh = strings.TrimSpace(body.RefreshToken)
		}
		if refresh == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing refresh token"))
			return
		}

		result, err := svc.Refresh(r.Context(), token, refresh)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set(accessTokenHeader, result.AccessToken)
		responses.WriteSuccess(w, result)
	}
}
