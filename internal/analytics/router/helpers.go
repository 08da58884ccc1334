package router

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hopl-labs/hopl-backend/internal/analytics/types"
)

func stringPtr(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func uuidPtrString(id *uuid.UUID) *string {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	value := id.String()
	return &value
}

// occurredAt prefers the envelope timestamp, then the first non-zero fallback,
// then now.
func occurredAt(envelope types.Envelope, fallbacks ...time.Time) time.Time {
	if !envelope.OccurredAt.IsZero() {
		return envelope.OccurredAt.UTC()
	}
	for _, ts := range fallbacks {
		if !ts.IsZero() {
			return ts.UTC()
		}
	}
	return time.Now().UTC()
}
