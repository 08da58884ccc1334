package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies who produced the event. Anonymous scans carry no user.
type ActorRef struct {
	UserID *uuid.UUID `json:"userId,omitempty"`
	Source string     `json:"source,omitempty"`
}

// UserActor builds an ActorRef for an authenticated account.
func UserActor(userID uuid.UUID) *ActorRef {
	if userID == uuid.Nil {
		return &ActorRef{Source: "anonymous"}
	}
	id := userID
	return &ActorRef{UserID: &id, Source: "api"}
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
