package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hopl-labs/hopl-backend/pkg/config"
	redisclient "github.com/hopl-labs/hopl-backend/pkg/redis"
)

func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis, *redisclient.Client) {
	t.Helper()
	srv := miniredis.RunT(t)
	raw := redislib.NewClient(&redislib.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	client := redisclient.Wrap(raw)
	return &Manager{store: client, ttl: time.Hour, now: time.Now}, srv, client
}

func storedRecord(t *testing.T, srv *miniredis.Miniredis, client *redisclient.Client, accessID string) Record {
	t.Helper()
	raw, err := srv.Get(client.AccessSessionKey(accessID))
	require.NoError(t, err, "expected session for %s", accessID)
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	return rec
}

func TestGenerateStoresDigestOnly(t *testing.T) {
	m, srv, client := newTestManager(t)
	userID := uuid.New()

	token, err := m.Generate(context.Background(), userID, "jti-1")
	require.NoError(t, err)

	rec := storedRecord(t, srv, client, "jti-1")
	assert.Equal(t, userID, rec.UserID)
	assert.Equal(t, digest(token), rec.TokenHash)
	assert.NotContains(t, srv.Dump(), token)
	assert.Equal(t, time.Hour, srv.TTL(client.AccessSessionKey("jti-1")))
}

func TestRotateIssuesNewPairAndConsumesOld(t *testing.T) {
	m, srv, client := newTestManager(t)
	ctx := context.Background()
	userID := uuid.New()
	token, err := m.Generate(ctx, userID, "jti-1")
	require.NoError(t, err)

	gotUser, newID, newToken, err := m.Rotate(ctx, "jti-1", token)
	require.NoError(t, err)
	assert.Equal(t, userID, gotUser)
	assert.NotEqual(t, "jti-1", newID)
	assert.NotEqual(t, token, newToken)
	assert.False(t, srv.Exists(client.AccessSessionKey("jti-1")))
	assert.Equal(t, digest(newToken), storedRecord(t, srv, client, newID).TokenHash)

	_, _, _, err = m.Rotate(ctx, "jti-1", token)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRotateWithWrongTokenBurnsSession(t *testing.T) {
	m, srv, client := newTestManager(t)
	ctx := context.Background()
	token, err := m.Generate(ctx, uuid.New(), "jti-1")
	require.NoError(t, err)

	_, _, _, err = m.Rotate(ctx, "jti-1", "guess")
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
	assert.False(t, srv.Exists(client.AccessSessionKey("jti-1")))

	_, _, _, err = m.Rotate(ctx, "jti-1", token)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRotateRejectsCorruptRecordAndBlankInput(t *testing.T) {
	m, srv, client := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, srv.Set(client.AccessSessionKey("legacy"), "plain-token"))

	_, _, _, err := m.Rotate(ctx, "legacy", "plain-token")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	_, _, _, err = m.Rotate(ctx, " ", "x")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRotateSurfacesStoreFailures(t *testing.T) {
	raw, mock := redismock.NewClientMock()
	client := redisclient.Wrap(raw)
	m := &Manager{store: client, ttl: time.Hour, now: time.Now}
	mock.ExpectGetDel(client.AccessSessionKey("jti-1")).SetErr(errors.New("conn reset"))

	_, _, _, err := m.Rotate(context.Background(), "jti-1", "token")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestHasSessionFollowsTTLAndRevoke(t *testing.T) {
	m, srv, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Generate(ctx, uuid.New(), "jti-1")
	require.NoError(t, err)
	ok, err := m.HasSession(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, ok)

	srv.FastForward(2 * time.Hour)
	ok, err = m.HasSession(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, ok, "session should expire with the refresh ttl")

	_, err = m.Generate(ctx, uuid.New(), "jti-2")
	require.NoError(t, err)
	require.NoError(t, m.Revoke(ctx, "jti-2"))
	ok, err = m.HasSession(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = m.HasSession(ctx, "")
	assert.Error(t, err)
}

func TestGenerateValidatesInput(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.Generate(context.Background(), uuid.New(), " ")
	assert.Error(t, err)
	_, err = m.Generate(context.Background(), uuid.Nil, "x")
	assert.Error(t, err)
}

func TestNewManagerValidatesTTLs(t *testing.T) {
	client := redisclient.Wrap(redislib.NewClient(&redislib.Options{Addr: "127.0.0.1:0"}))

	_, err := NewManager(nil, config.JWTConfig{})
	assert.Error(t, err)
	_, err = NewManager(client, config.JWTConfig{ExpirationMinutes: 60, RefreshTokenTTLMinutes: 30})
	assert.Error(t, err)
	m, err := NewManager(client, config.JWTConfig{ExpirationMinutes: 15, RefreshTokenTTLMinutes: 60})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, m.ttl)
}
