package router

import (
	"context"
	"fmt"

	"github.com/hopl-labs/hopl-backend/internal/analytics/types"
	"github.com/hopl-labs/hopl-backend/internal/analytics/writer"
	"github.com/hopl-labs/hopl-backend/pkg/outbox/payloads"
)

const (
	creditKindPurchase = "purchase"
	creditKindRefund   = "refund"
)

type creditsPurchasedHandler struct {
	writer Writer
}

func (h *creditsPurchasedHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.CreditsPurchasedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T for credits_purchased", payload)
	}
	raw, err := writer.EncodeJSON(envelope.Payload)
	if err != nil {
		return err
	}
	return h.writer.InsertCreditFact(ctx, types.CreditFactRow{
		EventID:      envelope.EventID,
		OccurredAt:   occurredAt(envelope),
		UserID:       event.UserID.String(),
		Kind:         creditKindPurchase,
		PlanType:     stringPtr(string(event.PlanType)),
		Reference:    event.ProviderSessionID,
		Delta:        int64(event.CreditsGranted),
		BalanceAfter: int64(event.Balance),
		Payload:      raw,
	})
}

type creditsRefundedHandler struct {
	writer Writer
}

func (h *creditsRefundedHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.CreditsRefundedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T for credits_refunded", payload)
	}
	raw, err := writer.EncodeJSON(envelope.Payload)
	if err != nil {
		return err
	}
	return h.writer.InsertCreditFact(ctx, types.CreditFactRow{
		EventID:      envelope.EventID,
		OccurredAt:   occurredAt(envelope),
		UserID:       event.UserID.String(),
		Kind:         creditKindRefund,
		Reference:    event.Reference,
		Delta:        int64(event.Amount),
		BalanceAfter: int64(event.BalanceAfter),
		Payload:      raw,
	})
}
