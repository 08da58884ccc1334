package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hopl-labs/hopl-backend/pkg/config"
	redisclient "github.com/hopl-labs/hopl-backend/pkg/redis"
)

const refreshTokenBytes = 32

var (
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	errAccessIDRequired    = errors.New("access id is required")
)

type store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	GetDel(ctx context.Context, key string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, keys ...string) error
	AccessSessionKey(accessID string) string
}

// Record is stored under the access token's jti. Only a digest of the refresh
// token is kept.
type Record struct {
	UserID    uuid.UUID `json:"user_id"`
	TokenHash string    `json:"token_sha256"`
	IssuedAt  time.Time `json:"issued_at"`
}

// AccessSessionChecker is the read-only view the auth middleware needs.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

// Manager pairs each access token id with one refresh token. Refresh tokens
// are single use: Rotate consumes the session whether or not the token matches.
type Manager struct {
	store store
	ttl   time.Duration
	now   func() time.Time
}

func NewManager(client *redisclient.Client, cfg config.JWTConfig) (*Manager, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	ttl := cfg.RefreshTokenTTL()
	accessTTL := time.Duration(cfg.ExpirationMinutes) * time.Minute
	switch {
	case ttl <= 0:
		return nil, errors.New("refresh token ttl must be positive")
	case ttl <= accessTTL:
		return nil, fmt.Errorf("refresh token ttl (%s) must exceed access token ttl (%s)", ttl, accessTTL)
	}
	return &Manager{store: client, ttl: ttl, now: time.Now}, nil
}

// NewAccessID returns a fresh jti for an access token.
func NewAccessID() string {
	return uuid.NewString()
}

// Generate opens a session for accessID and returns its refresh token.
func (m *Manager) Generate(ctx context.Context, userID uuid.UUID, accessID string) (string, error) {
	if strings.TrimSpace(accessID) == "" {
		return "", errAccessIDRequired
	}
	if userID == uuid.Nil {
		return "", errors.New("user id is required")
	}
	token, err := newRefreshToken()
	if err != nil {
		return "", err
	}
	rec := Record{UserID: userID, TokenHash: digest(token), IssuedAt: m.now().UTC()}
	if err := m.save(ctx, accessID, rec); err != nil {
		return "", err
	}
	return token, nil
}

// Rotate swaps the session behind oldAccessID for a new one and returns the
// owner, the new access id and the new refresh token. The old session is gone
// afterwards even when provided does not match, so a leaked token cannot be
// retried.
func (m *Manager) Rotate(ctx context.Context, oldAccessID, provided string) (uuid.UUID, string, string, error) {
	if strings.TrimSpace(oldAccessID) == "" || strings.TrimSpace(provided) == "" {
		return uuid.Nil, "", "", ErrInvalidRefreshToken
	}

	raw, err := m.store.GetDel(ctx, m.store.AccessSessionKey(oldAccessID))
	if err != nil {
		if redisclient.IsMiss(err) {
			return uuid.Nil, "", "", ErrInvalidRefreshToken
		}
		return uuid.Nil, "", "", fmt.Errorf("load session: %w", err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.UserID == uuid.Nil {
		return uuid.Nil, "", "", ErrInvalidRefreshToken
	}
	if subtle.ConstantTimeCompare([]byte(rec.TokenHash), []byte(digest(provided))) != 1 {
		return uuid.Nil, "", "", ErrInvalidRefreshToken
	}

	accessID := NewAccessID()
	token, err := m.Generate(ctx, rec.UserID, accessID)
	if err != nil {
		return uuid.Nil, "", "", err
	}
	return rec.UserID, accessID, token, nil
}

// Revoke ends the session; revoking an unknown id is not an error.
func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return errAccessIDRequired
	}
	return m.store.Del(ctx, m.store.AccessSessionKey(accessID))
}

func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	if strings.TrimSpace(accessID) == "" {
		return false, errAccessIDRequired
	}
	return m.store.Exists(ctx, m.store.AccessSessionKey(accessID))
}

func (m *Manager) save(ctx context.Context, accessID string, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return m.store.Set(ctx, m.store.AccessSessionKey(accessID), string(raw), m.ttl)
}

func newRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
