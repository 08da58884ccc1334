package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hopl-labs/hopl-backend/pkg/auth"
	"github.com/hopl-labs/hopl-backend/pkg/auth/session"
	"github.com/hopl-labs/hopl-backend/pkg/config"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}

func okHandler(captured *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			*captured = UserIDFromContext(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, authorization string) int {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp.Code
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testJWT, stubSessionVerifier{ok: true}, nil)(okHandler(nil))
	if code := serve(handler, ""); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	handler := Auth(testJWT, stubSessionVerifier{ok: true}, nil)(okHandler(nil))
	if code := serve(handler, "Bearer invalid"); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", code)
	}
}

func TestAuthAllowsValidToken(t *testing.T) {
	userID := uuid.New()
	token := mintTestToken(t, testJWT, userID)

	var captured string
	handler := Auth(testJWT, stubSessionVerifier{ok: true}, nil)(okHandler(&captured))
	if code := serve(handler, "Bearer "+token); code != http.StatusOK {
		t.Fatalf("expected 200 got %d", code)
	}
	if captured != userID.String() {
		t.Fatalf("expected user %s in context, got %q", userID, captured)
	}
}

func TestAuthRejectsRevokedSession(t *testing.T) {
	token := mintTestToken(t, testJWT, uuid.New())
	handler := Auth(testJWT, stubSessionVerifier{ok: false}, nil)(okHandler(nil))
	if code := serve(handler, "Bearer "+token); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for revoked session, got %d", code)
	}

	handler = Auth(testJWT, stubSessionVerifier{err: errors.New("redis down")}, nil)(okHandler(nil))
	if code := serve(handler, "Bearer "+token); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when sessions cannot be checked, got %d", code)
	}
}

func TestOptionalAuth(t *testing.T) {
	var captured string
	handler := OptionalAuth(testJWT, stubSessionVerifier{ok: true}, nil)(okHandler(&captured))

	if code := serve(handler, ""); code != http.StatusOK || captured != "" {
		t.Fatalf("expected anonymous pass-through, code=%d user=%q", code, captured)
	}

	userID := uuid.New()
	if code := serve(handler, "Bearer "+mintTestToken(t, testJWT, userID)); code != http.StatusOK || captured != userID.String() {
		t.Fatalf("expected authenticated request, code=%d user=%q", code, captured)
	}

	if code := serve(handler, "Bearer nope"); code != http.StatusUnauthorized {
		t.Fatalf("expected invalid token rejected, got %d", code)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  xyz ": "xyz",
		"raw-token":    "raw-token",
		"":             "",
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		if got := BearerToken(req); got != want {
			t.Fatalf("BearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestAccountIDFromContext(t *testing.T) {
	if _, ok := AccountIDFromContext(context.Background()); ok {
		t.Fatal("expected anonymous context")
	}
	if _, ok := AccountIDFromContext(WithUserID(context.Background(), "not-a-uuid")); ok {
		t.Fatal("expected malformed id rejected")
	}
	id := uuid.New()
	got, ok := AccountIDFromContext(WithUserID(context.Background(), id.String()))
	if !ok || got != id {
		t.Fatalf("expected %s, got %s", id, got)
	}
}

func mintTestToken(t *testing.T, cfg config.JWTConfig, userID uuid.UUID) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg, time.Now(), auth.AccessTokenPayload{
		UserID: userID,
		Email:  "user@example.com",
		JTI:    session.NewAccessID(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

type stubSessionVerifier struct {
	ok  bool
	err error
}

func (s stubSessionVerifier) HasSession(ctx context.Context, accessID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.ok, nil
}
