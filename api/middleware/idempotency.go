package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hopl-labs/hopl-backend/api/responses"
	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
	pkgredis "github.com/hopl-labs/hopl-backend/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	// inFlightTTL bounds how long a crashed request can block its key.
	inFlightTTL = 2 * time.Minute

	maxReplayBody = 1 << 20
)

// ReplayStore is the Redis surface the Idempotency middleware writes to.
type ReplayStore interface {
	pkgredis.IdempotencyStore
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// replayTTL lists the routes that demand an Idempotency-Key, keyed by
// "METHOD pattern".
var replayTTL = map[string]time.Duration{
	http.MethodPost + " /api/v1/documents/generate": defaultIdempotencyTTL,
	http.MethodPost + " /api/v1/payments/checkout":  criticalIdempotencyTTL,
}

// storedResponse is what a key maps to in Redis. A record with Pending set
// marks a request that is still being served.
type storedResponse struct {
	Pending     bool   `json:"pending,omitempty"`
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency replays the first non-5xx response recorded for a
// (user, method, path, Idempotency-Key) tuple. Reusing a key with another
// body, or while the first request is still running, is a conflict.
func Idempotency(store ReplayStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			fail := func(err error) { responses.WriteError(ctx, logg, w, err) }

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if clientKey == "" {
				fail(pkgerrors.New(pkgerrors.CodeValidation, IdempotencyHeader+" header required"))
				return
			}
			body, err := io.ReadAll(io.LimitReader(r.Body, maxReplayBody))
			if err != nil {
				fail(pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := store.IdempotencyKey(replayScope(r), clientKey)
			hash := fingerprint(body)

			reserved, err := reserve(ctx, store, key, hash)
			if err != nil {
				fail(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replayOrReject(ctx, store, key, hash, w, fail)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			// Release on server faults so the client can retry with the same key.
			if capture.statusCode() >= http.StatusInternalServerError {
				if err := store.Del(context.WithoutCancel(ctx), key); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency key", err)
				}
				return
			}
			record := storedResponse{
				RequestHash: hash,
				Status:      capture.statusCode(),
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			}
			if err := persist(context.WithoutCancel(ctx), store, key, record, ttl); err != nil && logg != nil {
				logg.Error(ctx, "persist idempotency record", err)
			}
		})
	}
}

func reserve(ctx context.Context, store ReplayStore, key, hash string) (bool, error) {
	marker, err := json.Marshal(storedResponse{Pending: true, RequestHash: hash})
	if err != nil {
		return false, err
	}
	return store.SetNX(ctx, key, string(marker), inFlightTTL)
}

func persist(ctx context.Context, store ReplayStore, key string, record storedResponse, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, string(payload), ttl)
}

func replayOrReject(ctx context.Context, store ReplayStore, key, hash string, w http.ResponseWriter, fail func(error)) {
	raw, err := store.Get(ctx, key)
	if pkgredis.IsMiss(err) {
		// The holder released the key between our SETNX and GET.
		fail(pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is still in progress"))
		return
	}
	if err != nil {
		fail(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}
	var record storedResponse
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		fail(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case record.RequestHash != hash:
		fail(pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case record.Pending:
		fail(pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is still in progress"))
	default:
		if record.ContentType != "" {
			w.Header().Set("Content-Type", record.ContentType)
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(record.Status)
		_, _ = w.Write(record.Body)
	}
}

func replayScope(r *http.Request) string {
	return strings.Join([]string{UserIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

func fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func routeTTL(method, pattern string) (time.Duration, bool) {
	ttl, ok := replayTTL[method+" "+pattern]
	return ttl, ok
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
