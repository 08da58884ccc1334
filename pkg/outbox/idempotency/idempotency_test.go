package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/hopl-labs/hopl-backend/pkg/redis"
)

type fakeStore struct {
	setNXResult bool
	setNXError  error
	lastKey     string
	lastTTL     time.Duration
	lastDeleted string
}

func (f *fakeStore) Get(context.Context, string) (string, error) {
	return "", nil
}

func (f *fakeStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.lastKey = key
	f.lastTTL = ttl
	return f.setNXResult, f.setNXError
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "hopl:idempotency:" + scope + ":" + id
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	if len(keys) > 0 {
		f.lastDeleted = keys[0]
	}
	return nil
}

func TestCheckAndMarkProcessed_FirstTime(t *testing.T) {
	store := &fakeStore{setNXResult: true}
	manager, err := NewManager(store, "analytics-worker", 24*time.Hour)
	require.NoError(t, err)

	eventID := uuid.NewString()
	already, err := manager.CheckAndMarkProcessed(context.Background(), eventID)
	require.NoError(t, err)
	require.False(t, already)

	require.Equal(t, "hopl:idempotency:evt:processed:analytics-worker:"+eventID, store.lastKey)
	require.Equal(t, 24*time.Hour, store.lastTTL)
}

func TestCheckAndMarkProcessed_Error(t *testing.T) {
	store := &fakeStore{setNXError: errors.New("boom")}
	manager, err := NewManager(store, "analytics-worker", time.Hour)
	require.NoError(t, err)

	_, err = manager.CheckAndMarkProcessed(context.Background(), uuid.NewString())
	require.Error(t, err)

	_, err = manager.CheckAndMarkProcessed(context.Background(), "  ")
	require.Error(t, err)
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(nil, "c", time.Hour)
	require.Error(t, err)
	_, err = NewManager(&fakeStore{}, "", time.Hour)
	require.Error(t, err)
	_, err = NewManager(&fakeStore{}, "c", -time.Second)
	require.Error(t, err)
}

func TestManagerAgainstRedis(t *testing.T) {
	srv := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = raw.Close() })

	manager, err := NewManager(redis.Wrap(raw), "analytics-worker", time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	already, err := manager.CheckAndMarkProcessed(ctx, "evt-1")
	require.NoError(t, err)
	require.False(t, already)

	already, err = manager.CheckAndMarkProcessed(ctx, "evt-1")
	require.NoError(t, err)
	require.True(t, already)

	require.NoError(t, manager.Delete(ctx, "evt-1"))
	already, err = manager.CheckAndMarkProcessed(ctx, "evt-1")
	require.NoError(t, err)
	require.False(t, already, "deleted marker should allow redelivery")

	srv.FastForward(2 * time.Hour)
	already, err = manager.CheckAndMarkProcessed(ctx, "evt-1")
	require.NoError(t, err)
	require.False(t, already, "marker should expire with ttl")
}
