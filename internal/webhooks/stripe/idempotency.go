package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hopl-labs/hopl-backend/pkg/redis"
)

// DefaultGuardTTL covers the provider's retry horizon for undelivered events.
const DefaultGuardTTL = 72 * time.Hour

// IdempotencyGuard marks provider event ids in Redis so replays are acknowledged
// without reapplying side effects.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if ttl == 0 {
		ttl = DefaultGuardTTL
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope}, nil
}

// CheckAndMark reports whether eventID was already seen, marking it otherwise.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	key, err := g.key(eventID)
	if err != nil {
		return false, err
	}
	set, err := g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, fmt.Errorf("mark event %s: %w", eventID, err)
	}
	return !set, nil
}

// Delete releases the mark so a failed event is processed again on redelivery.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *IdempotencyGuard) key(eventID string) (string, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey(g.scope, eventID), nil
}
