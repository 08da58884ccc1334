package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hopl-labs/hopl-backend/pkg/db/models"
	"github.com/hopl-labs/hopl-backend/pkg/enums"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
)

const currentEnvelopeVersion = 1

// DomainEvent is what services hand to Emit. Data is marshalled into the
// envelope's data field; Version and OccurredAt default when zero.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

func (e DomainEvent) validate() error {
	switch {
	case !e.EventType.IsValid():
		return fmt.Errorf("outbox: unknown event type %q", e.EventType)
	case !e.AggregateType.IsValid():
		return fmt.Errorf("outbox: unknown aggregate type %q", e.AggregateType)
	case e.AggregateID == uuid.Nil:
		return errors.New("outbox: aggregate id required")
	}
	return nil
}

// Service writes domain events inside the caller's transaction.
type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: func() time.Time { return time.Now().UTC() }}
}

// Emit stores event in tx so it commits or rolls back with the state change it
// describes. The row id doubles as the envelope's event id, which consumers
// use for deduplication.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errNoTx
	}
	if err := event.validate(); err != nil {
		return err
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("outbox: encode %s data: %w", event.EventType, err)
	}
	id := uuid.New()
	envelope := PayloadEnvelope{
		Version:    orDefault(event.Version, currentEnvelopeVersion),
		EventID:    id.String(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	}
	if envelope.OccurredAt.IsZero() {
		envelope.OccurredAt = s.now()
	}
	stored, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("outbox: encode envelope: %w", err)
	}

	if err := s.repo.Insert(tx, models.OutboxEvent{
		ID:            id,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       stored,
	}); err != nil {
		return err
	}

	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":     envelope.EventID,
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID.String(),
		}), "outbox.event_queued")
	}
	return nil
}

func orDefault(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
