package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hopl-labs/hopl-backend/api/middleware"
	"github.com/hopl-labs/hopl-backend/api/responses"
	"github.com/hopl-labs/hopl-backend/api/validators"
	"github.com/hopl-labs/hopl-backend/internal/scans"
	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
)

const maxScanURLLength = 2048

type ScanService interface {
	Scan(ctx context.Context, rawURL string, userID *uuid.UUID) (*scans.ResultDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*scans.ResultDTO, error)
}

type scanRequest struct {
	URL string `json:"url" validate:"required"`
}

// ScanCreate runs a compliance scan. Signed-in callers own the result;
// anonymous callers are accepted only when allowAnonymous is set.
func ScanCreate(svc ScanService, allowAnonymous bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "scan service unavailable"))
			return
		}

		var owner *uuid.UUID
		if id, ok := middleware.AccountIDFromContext(r.Context()); ok {
			owner = &id
		} else if !allowAnonymous {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var body scanRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target := validators.SanitizeString(body.URL, maxScanURLLength)

		result, err := svc.Scan(r.Context(), target, owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func ScanGet(svc ScanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "scan service unavailable"))
			return
		}

		id, err := pathUUID(r, "scanId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid id").
			WithDetails(map[string]any{"field": param})
	}
	return id, nil
}

func requireAccount(r *http.Request) (uuid.UUID, error) {
	id, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return id, nil
}
