package controllers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/hopl-labs/hopl-backend/api/responses"
	"github.com/hopl-labs/hopl-backend/api/validators"
	"github.com/hopl-labs/hopl-backend/internal/documents"
	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
	"github.com/hopl-labs/hopl-backend/pkg/pagination"
)

type DocumentService interface {
	Types() []documents.TypeOption
	Generate(ctx context.Context, accountID uuid.UUID, req documents.GenerateRequest) (*documents.DocumentDTO, error)
	Get(ctx context.Context, accountID, id uuid.UUID) (*documents.DocumentDTO, error)
	List(ctx context.Context, params documents.ListParams) (*documents.ListResult, error)
}

func DocumentTypes(svc DocumentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "document service unavailable"))
			return
		}
		responses.WriteSuccess(w, svc.Types())
	}
}

// DocumentGenerate charges one credit and returns the generated document.
func DocumentGenerate(svc DocumentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "document service unavailable"))
			return
		}
		accountID, err := requireAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body documents.GenerateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		doc, err := svc.Generate(r.Context(), accountID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, doc)
	}
}

func DocumentList(svc DocumentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "document service unavailable"))
			return
		}
		accountID, err := requireAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), documents.ListParams{
			UserID: accountID,
			Params: pagination.Params{
				Limit:  limit,
				Cursor: validators.QueryString(r, "cursor"),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func DocumentGet(svc DocumentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := loadOwnedDocument(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, doc)
	}
}

// DocumentDownload streams the rendered document as an attachment.
func DocumentDownload(svc DocumentService, renderer documents.Renderer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if renderer == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "document renderer unavailable"))
			return
		}
		doc, err := loadOwnedDocument(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		body, err := renderer.Render(r.Context(), doc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render document"))
			return
		}

		w.Header().Set("Content-Type", renderer.ContentType())
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, doc.ID))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(body); err != nil && logg != nil {
			logg.Warn(logg.WithField(r.Context(), "document_id", doc.ID.String()), "document download interrupted")
		}
	}
}

func loadOwnedDocument(r *http.Request, svc DocumentService) (*documents.DocumentDTO, error) {
	if svc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "document service unavailable")
	}
	accountID, err := requireAccount(r)
	if err != nil {
		return nil, err
	}
	id, err := pathUUID(r, "documentId")
	if err != nil {
		return nil, err
	}
	return svc.Get(r.Context(), accountID, id)
}
