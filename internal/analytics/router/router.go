package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/hopl-labs/hopl-backend/internal/analytics/types"
	"github.com/hopl-labs/hopl-backend/pkg/enums"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
	"github.com/hopl-labs/hopl-backend/pkg/outbox/payloads"
	"github.com/hopl-labs/hopl-backend/pkg/outbox/registry"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer delivers BigQuery rows produced by analytics handlers.
type Writer interface {
	InsertScanFact(ctx context.Context, row types.ScanFactRow) error
	InsertGenerationFact(ctx context.Context, row types.GenerationFactRow) error
	InsertCreditFact(ctx context.Context, row types.CreditFactRow) error
}

// Handler receives an envelope plus a decoded event payload.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope, payload any) error
}

// HandlerFunc adapts functions to the Handler interface.
type HandlerFunc func(ctx context.Context, envelope types.Envelope, payload any) error

// Handle calls fn.
func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	return fn(ctx, envelope, payload)
}

// Router dispatches analytics envelopes to the configured handler per event type.
type Router struct {
	decoders *registry.Decoders
	handlers map[enums.OutboxEventType]Handler
	logg     *logger.Logger
}

// NewRouter wires the default handlers and allows overrides for specific events.
func NewRouter(writer Writer, logg *logger.Logger, overrides map[enums.OutboxEventType]Handler) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	handlers := map[enums.OutboxEventType]Handler{
		enums.EventScanCompleted:     &scanCompletedHandler{writer: writer},
		enums.EventDocumentGenerated: &documentGeneratedHandler{writer: writer},
		enums.EventGenerationFailed:  &generationFailedHandler{writer: writer},
		enums.EventCreditsPurchased:  &creditsPurchasedHandler{writer: writer},
		enums.EventCreditsRefunded:   &creditsRefundedHandler{writer: writer},
	}
	for event, custom := range overrides {
		if _, ok := handlers[event]; !ok || custom == nil {
			continue
		}
		handlers[event] = custom
	}

	return &Router{
		decoders: defaultDecoders(),
		handlers: handlers,
		logg:     logg,
	}, nil
}

func defaultDecoders() *registry.Decoders {
	d := registry.NewDecoders()
	registry.RegisterDecoder[payloads.ScanCompletedEvent](d, enums.EventScanCompleted, 1)
	registry.RegisterDecoder[payloads.DocumentGeneratedEvent](d, enums.EventDocumentGenerated, 1)
	registry.RegisterDecoder[payloads.GenerationFailedEvent](d, enums.EventGenerationFailed, 1)
	registry.RegisterDecoder[payloads.CreditsPurchasedEvent](d, enums.EventCreditsPurchased, 1)
	registry.RegisterDecoder[payloads.CreditsRefundedEvent](d, enums.EventCreditsRefunded, 1)
	return d
}

// Handle dispatches the incoming envelope to the configured handler.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	handler, ok := r.handlers[envelope.EventType]
	if !ok || !r.decoders.Handles(envelope.EventType) {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	payload, err := r.decoders.Decode(envelope.EventType, envelope.Version, envelope.Payload)
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
	}
	return handler.Handle(ctx, envelope, payload)
}
