package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hopl-labs/hopl-backend/pkg/redis"
)

// Manager tracks event IDs a single consumer has processed, using Redis SETNX with a TTL.
// Keys follow the `hopl:idempotency:evt:processed:<consumer>:<event_id>` pattern.
type Manager struct {
	store    redis.IdempotencyStore
	consumer string
	ttl      time.Duration
}

// NewManager builds a guard for consumer that remembers events for ttl.
func NewManager(store redis.IdempotencyStore, consumer string, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if strings.TrimSpace(consumer) == "" {
		return nil, errors.New("consumer name is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{
		store:    store,
		consumer: consumer,
		ttl:      ttl,
	}, nil
}

// CheckAndMarkProcessed returns true if the event has already been processed and
// otherwise marks it as processed with the configured TTL.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, eventID string) (bool, error) {
	key, err := m.processedKey(eventID)
	if err != nil {
		return false, err
	}
	set, err := m.store.SetNX(ctx, key, "1", m.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Delete forgets the event so a redelivery is processed again.
func (m *Manager) Delete(ctx context.Context, eventID string) error {
	key, err := m.processedKey(eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) processedKey(eventID string) (string, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	scope := fmt.Sprintf("evt:processed:%s", m.consumer)
	return m.store.IdempotencyKey(scope, eventID), nil
}
