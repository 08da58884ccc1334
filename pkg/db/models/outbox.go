package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hopl-labs/hopl-backend/pkg/enums"
)

// OutboxEvent is a domain event written in the same transaction as the state change it describes.
// Rows stay pending until the publisher sets PublishedAt.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:event_type_enum;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:aggregate_type_enum;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string                   `gorm:"column:last_error"`
	PublishedAt   *time.Time                `gorm:"column:published_at"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
}

// IsPublished reports whether the publisher has delivered the event.
func (e OutboxEvent) IsPublished() bool {
	return e.PublishedAt != nil
}

// OutboxDLQ keeps a copy of an event the publisher gave up on.
type OutboxDLQ struct {
	ID            uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	EventID       uuid.UUID                  `gorm:"column:event_id;type:uuid;not null"`
	EventType     enums.OutboxEventType      `gorm:"column:event_type;type:event_type_enum;not null"`
	AggregateType enums.OutboxAggregateType  `gorm:"column:aggregate_type;type:aggregate_type_enum;not null"`
	AggregateID   uuid.UUID                  `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       json.RawMessage            `gorm:"column:payload_json;type:jsonb;not null"`
	ErrorReason   enums.OutboxDLQErrorReason `gorm:"column:error_reason;type:outbox_dlq_error_reason_enum;not null"`
	ErrorMessage  *string                    `gorm:"column:error_message"`
	AttemptCount  int                        `gorm:"column:attempt_count;not null;default:0"`
	FailedAt      time.Time                  `gorm:"column:failed_at"`
	CreatedAt     time.Time                  `gorm:"column:created_at;autoCreateTime"`
}

// DeadLetterFrom copies the identifying columns of an outbox row into a DLQ entry.
func DeadLetterFrom(event OutboxEvent, reason enums.OutboxDLQErrorReason, message string, failedAt time.Time) OutboxDLQ {
	entry := OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		AttemptCount:  event.AttemptCount,
		FailedAt:      failedAt,
	}
	if message != "" {
		entry.ErrorMessage = &message
	}
	return entry
}

// TableName pins the singular table name used by the migrations.
func (OutboxDLQ) TableName() string {
	return "outbox_dlq"
}
