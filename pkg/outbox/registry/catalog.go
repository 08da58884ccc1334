package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hopl-labs/hopl-backend/pkg/config"
	"github.com/hopl-labs/hopl-backend/pkg/db/models"
	"github.com/hopl-labs/hopl-backend/pkg/enums"
	"github.com/hopl-labs/hopl-backend/pkg/outbox"
	"github.com/hopl-labs/hopl-backend/pkg/outbox/payloads"
)

// EventDescriptor is where an event type is published and which aggregate owns it.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is an outbox row that passed validation, with its payload decoded.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as one retrying cannot fix; the row goes straight to the DLQ.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err (or anything it wraps) came from Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// owners lists every event the publisher ships and the aggregate each belongs to.
var owners = map[enums.OutboxEventType]enums.OutboxAggregateType{
	enums.EventScanCompleted:     enums.AggregateScan,
	enums.EventDocumentGenerated: enums.AggregateDocument,
	enums.EventGenerationFailed:  enums.AggregateGeneration,
	enums.EventCreditsPurchased:  enums.AggregateAccount,
	enums.EventCreditsRefunded:   enums.AggregateAccount,
}

// EventRegistry validates outbox rows before they are published.
type EventRegistry struct {
	topic    string
	decoders *Decoders
}

// NewEventRegistry routes every event to the single compliance events topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.EventsTopic)
	if topic == "" {
		return nil, errors.New("events topic is required")
	}
	d := NewDecoders()
	RegisterDecoder[payloads.ScanCompletedEvent](d, enums.EventScanCompleted, 1)
	RegisterDecoder[payloads.DocumentGeneratedEvent](d, enums.EventDocumentGenerated, 1)
	RegisterDecoder[payloads.GenerationFailedEvent](d, enums.EventGenerationFailed, 1)
	RegisterDecoder[payloads.CreditsPurchasedEvent](d, enums.EventCreditsPurchased, 1)
	RegisterDecoder[payloads.CreditsRefundedEvent](d, enums.EventCreditsRefunded, 1)
	return &EventRegistry{topic: topic, decoders: d}, nil
}

// Resolve fails with a Permanent error for anything a retry would see again:
// unknown types, aggregate mismatches, or undecodable payloads.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	owner, ok := owners[event.EventType]
	switch {
	case !ok:
		return nil, Permanent(fmt.Errorf("unsupported event type %s", event.EventType))
	case owner != event.AggregateType:
		return nil, Permanent(fmt.Errorf("%s belongs to %s aggregates, row says %s", event.EventType, owner, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, Permanent(errors.New("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, Permanent(fmt.Errorf("decode envelope: %w", err))
	}
	payload, err := r.decoders.Decode(event.EventType, envelope.Version, envelope.Data)
	if err != nil {
		return nil, Permanent(err)
	}

	return &ResolvedEvent{
		Descriptor: EventDescriptor{EventType: event.EventType, AggregateType: owner, Topic: r.topic},
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}
