package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/hopl-labs/hopl-backend/internal/analytics/router"
	"github.com/hopl-labs/hopl-backend/internal/analytics/types"
	"github.com/hopl-labs/hopl-backend/pkg/enums"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
	"github.com/hopl-labs/hopl-backend/pkg/outbox"
)

// ConsumerName scopes the analytics worker's idempotency keys.
const ConsumerName = "analytics"

// Handler processes one decoded analytics envelope.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

type HandlerFunc func(ctx context.Context, envelope types.Envelope) error

func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, envelope)
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// Service acks or nacks every delivered message exactly once. Redelivery is
// requested only for failures a retry can fix.
type Service struct {
	source  receiver
	handler Handler
	marks   idempotencyChecker
	logg    *logger.Logger
}

func NewService(source receiver, handler Handler, marks idempotencyChecker, logg *logger.Logger) (*Service, error) {
	switch {
	case source == nil:
		return nil, errors.New("analytics subscription is required")
	case handler == nil:
		return nil, errors.New("analytics handler is required")
	case marks == nil:
		return nil, errors.New("idempotency manager is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{source: source, handler: handler, marks: marks, logg: logg}, nil
}

type disposition int

const (
	ack disposition = iota
	nack
)

// Run blocks receiving messages until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	return s.source.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		if s.process(msgCtx, msg) == nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) disposition {
	ctx = s.logg.WithField(ctx, "message_id", msg.ID)

	env, err := decodeEnvelope(msg)
	if err != nil {
		// poison messages are dropped; redelivery cannot fix them
		s.logg.Warn(s.logg.WithField(ctx, "reason", err.Error()), "analytics.envelope_invalid")
		return ack
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":       env.EventID,
		"event_type":     env.EventType,
		"aggregate_type": env.AggregateType,
		"aggregate_id":   env.AggregateID,
	})

	seen, err := s.marks.CheckAndMarkProcessed(ctx, env.EventID)
	switch {
	case err != nil:
		s.logg.Error(ctx, "analytics.idempotency_failed", err)
		return nack
	case seen:
		s.logg.Debug(ctx, "analytics.duplicate_skipped")
		return ack
	}

	err = s.handler.Handle(ctx, env)
	switch {
	case err == nil:
		s.logg.Info(ctx, "analytics.event_handled")
		return ack
	case errors.Is(err, router.ErrUnsupportedEventType):
		s.logg.Debug(ctx, "analytics.event_ignored")
		return ack
	}

	s.logg.Error(ctx, "analytics.handler_failed", err)
	if relErr := s.marks.Delete(ctx, env.EventID); relErr != nil {
		s.logg.Warn(s.logg.WithField(ctx, "reason", relErr.Error()), "analytics.idempotency_release_failed")
	}
	return nack
}

// decodeEnvelope prefers values from the JSON body and falls back to message
// attributes for event_id and occurred_at.
func decodeEnvelope(msg *gcppubsub.Message) (types.Envelope, error) {
	var body outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &body); err != nil {
		return types.Envelope{}, fmt.Errorf("decode payload envelope: %w", err)
	}
	attr := func(key string) string { return strings.TrimSpace(msg.Attributes[key]) }

	eventType, err := enums.ParseOutboxEventType(attr("event_type"))
	if err != nil {
		return types.Envelope{}, fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attr("aggregate_type"))
	if err != nil {
		return types.Envelope{}, fmt.Errorf("aggregate_type: %w", err)
	}

	env := types.Envelope{
		EventID:       strings.TrimSpace(body.EventID),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   attr("aggregate_id"),
		Version:       body.Version,
		OccurredAt:    body.OccurredAt,
		Payload:       body.Data,
	}
	if env.AggregateID == "" {
		return types.Envelope{}, errors.New("aggregate_id missing")
	}
	if env.EventID == "" {
		env.EventID = attr("event_id")
	}
	if env.EventID == "" {
		return types.Envelope{}, errors.New("event_id missing")
	}
	if env.OccurredAt.IsZero() {
		if ts, err := time.Parse(time.RFC3339Nano, attr("occurred_at")); err == nil {
			env.OccurredAt = ts
		}
	}
	env.OccurredAt = env.OccurredAt.UTC()
	return env, nil
}
