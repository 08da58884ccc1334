package router

import (
	"context"
	"fmt"

	"github.com/hopl-labs/hopl-backend/internal/analytics/types"
	"github.com/hopl-labs/hopl-backend/internal/analytics/writer"
	"github.com/hopl-labs/hopl-backend/pkg/outbox/payloads"
)

const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
)

type documentGeneratedHandler struct {
	writer Writer
}

func (h *documentGeneratedHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.DocumentGeneratedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T for document_generated", payload)
	}
	raw, err := writer.EncodeJSON(envelope.Payload)
	if err != nil {
		return err
	}

	documentID := event.DocumentID.String()
	row := types.GenerationFactRow{
		EventID:      envelope.EventID,
		OccurredAt:   occurredAt(envelope),
		AttemptID:    event.AttemptID.String(),
		DocumentID:   &documentID,
		UserID:       event.UserID.String(),
		DocumentType: string(event.DocumentType),
		Jurisdiction: stringPtr(string(event.Jurisdiction)),
		Language:     stringPtr(event.Language),
		Generator:    stringPtr(event.Generator),
		Outcome:      outcomeSucceeded,
		Charged:      event.Charged,
		ScanID:       uuidPtrString(event.ScanID),
		DurationMS:   event.DurationMS,
		Payload:      raw,
	}
	return h.writer.InsertGenerationFact(ctx, row)
}

type generationFailedHandler struct {
	writer Writer
}

func (h *generationFailedHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.GenerationFailedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T for generation_failed", payload)
	}
	raw, err := writer.EncodeJSON(envelope.Payload)
	if err != nil {
		return err
	}

	row := types.GenerationFactRow{
		EventID:      envelope.EventID,
		OccurredAt:   occurredAt(envelope),
		AttemptID:    event.AttemptID.String(),
		UserID:       event.UserID.String(),
		DocumentType: string(event.DocumentType),
		Outcome:      outcomeFailed,
		FailureCode:  stringPtr(event.FailureCode),
		Refunded:     event.Refunded,
		DurationMS:   event.DurationMS,
		Payload:      raw,
	}
	return h.writer.InsertGenerationFact(ctx, row)
}
