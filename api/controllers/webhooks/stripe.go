package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	"github.com/hopl-labs/hopl-backend/api/responses"
	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
)

// maxPayloadBytes bounds webhook bodies; provider events are well under this.
const maxPayloadBytes = 1 << 16

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type StripeWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type EventVerifier interface {
	VerifyEvent(payload []byte, signatureHeader string) (stripe.Event, error)
}

// StripeWebhook verifies, dedupes and applies checkout events.
func StripeWebhook(svc StripeWebhookService, verifier EventVerifier, guard StripeWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || verifier == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook handling unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := verifier.VerifyEvent(payload, sigHeader)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe signature"))
			return
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, map[string]any{"received": true, "duplicate": true})
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			_ = guard.Delete(ctx, event.ID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithFields(ctx, map[string]any{
				"event_id":   event.ID,
				"event_type": event.Type,
			}), "stripe event processed")
		}
		responses.WriteSuccess(w, map[string]any{"received": true})
	}
}
