package main

import (
	"context"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/hopl-labs/hopl-backend/pkg/db/models"
	"github.com/hopl-labs/hopl-backend/pkg/enums"
	"github.com/hopl-labs/hopl-backend/pkg/outbox/registry"
)

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLettered
)

// dispatch publishes one row and records the result inside tx. Only bookkeeping failures
// are returned; publish failures become a retry or a dead letter.
func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (outcome, error) {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return outcomeDeadLettered, s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, fields)
	}
	fields["event_id"] = resolved.Envelope.EventID
	fields["topic"] = resolved.Descriptor.Topic

	err = s.publish(ctx, event, resolved)
	if err == nil {
		if markErr := s.repo.MarkPublishedTx(tx, event.ID); markErr != nil {
			return outcomePublished, fmt.Errorf("mark published %s: %w", event.ID, markErr)
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event published")
		return outcomePublished, nil
	}

	if registry.IsPermanent(err) {
		return outcomeDeadLettered, s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, fields)
	}

	attempt := event.AttemptCount + 1
	fields["attempt_count"] = attempt
	if attempt >= s.maxAttempts {
		err = fmt.Errorf("max publish attempts reached: %w", err)
		return outcomeDeadLettered, s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, err, fields)
	}

	logCtx := s.logg.WithField(s.logg.WithFields(ctx, fields), "error", err.Error())
	s.logg.Warn(logCtx, "outbox publish failed, will retry")
	if markErr := s.repo.MarkFailedTx(tx, event.ID, err); markErr != nil {
		return outcomeRetry, fmt.Errorf("mark failure %s: %w", event.ID, markErr)
	}
	return outcomeRetry, nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason
	logCtx := s.logg.WithField(s.logg.WithFields(ctx, fields), "error", cause.Error())
	s.logg.Warn(logCtx, "outbox event moved to dead letter queue")

	entry := models.DeadLetterFrom(event, reason, cause.Error(), s.now())
	if err := s.dlq.DeadLetterTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publishers.For(topic)
	if pub == nil {
		return registry.Permanent(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	msg := &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.Permanent(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}
