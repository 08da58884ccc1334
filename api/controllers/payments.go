package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/hopl-labs/hopl-backend/api/responses"
	"github.com/hopl-labs/hopl-backend/api/validators"
	"github.com/hopl-labs/hopl-backend/internal/payments"
	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
)

type PaymentService interface {
	Plans() []payments.PlanDTO
	Checkout(ctx context.Context, userID uuid.UUID, req payments.CheckoutRequest) (*payments.CheckoutResult, error)
}

func PaymentPlans(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		responses.WriteSuccess(w, svc.Plans())
	}
}

// PaymentCheckout opens a hosted checkout session for the signed-in account.
func PaymentCheckout(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		accountID, err := requireAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body payments.CheckoutRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Checkout(r.Context(), accountID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
