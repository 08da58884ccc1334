package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/hopl-labs/hopl-backend/api/responses"
	"github.com/hopl-labs/hopl-backend/internal/ledger"
	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
)

type CreditService interface {
	Balance(ctx context.Context, accountID uuid.UUID) (ledger.Balance, error)
	History(ctx context.Context, accountID uuid.UUID) ([]ledger.EventDTO, error)
}

// CreditsBalance returns the signed-in account's plan and spendable credits.
func CreditsBalance(svc CreditService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credit service unavailable"))
			return
		}
		accountID, err := requireAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		balance, err := svc.Balance(r.Context(), accountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}

// CreditsHistory lists the latest ledger entries of the signed-in account.
func CreditsHistory(svc CreditService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credit service unavailable"))
			return
		}
		accountID, err := requireAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		events, err := svc.History(r.Context(), accountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, events)
	}
}
