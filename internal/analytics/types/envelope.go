package types

import (
	"encoding/json"
	"time"

	"github.com/hopl-labs/hopl-backend/pkg/enums"
)

// Envelope is a published outbox event as seen by the analytics consumer.
type Envelope struct {
	EventID       string                    `json:"event_id"`
	EventType     enums.OutboxEventType     `json:"event_type"`
	AggregateType enums.OutboxAggregateType `json:"aggregate_type"`
	AggregateID   string                    `json:"aggregate_id"`
	Version       int                       `json:"version"`
	OccurredAt    time.Time                 `json:"occurred_at"`
	Payload       json.RawMessage           `json:"payload"`
}
