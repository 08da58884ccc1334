package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/hopl-labs/hopl-backend/api/responses"
	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
)

type rateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// AuthRateLimitPolicy caps attempts per client IP and per submitted email
// within one fixed window. A zero limit disables that dimension.
type AuthRateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int
	emailLimit int
}

func NewAuthRateLimitPolicy(name string, window time.Duration, ipLimit, emailLimit int) AuthRateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "auth"
	}
	return AuthRateLimitPolicy{name: name, window: window, ipLimit: ipLimit, emailLimit: emailLimit}
}

func (p AuthRateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.emailLimit > 0)
}

// rateCheck is one counter consulted for a request.
type rateCheck struct {
	dimension string
	subject   string
	limit     int
}

func (p AuthRateLimitPolicy) scope(c rateCheck) string {
	return c.dimension + ":" + p.name + ":" + c.subject
}

// AuthRateLimit throttles credential endpoints before the handler runs.
// Emails are counted by SHA-256 so raw addresses never reach Redis or logs.
func AuthRateLimit(policy AuthRateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			checks, err := policy.checksFor(r)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			for _, c := range checks {
				allowed, count, err := store.FixedWindowAllow(ctx, policy.scope(c), int64(c.limit), policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if !allowed {
					policy.reject(ctx, logg, w, c, count)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// checksFor lists the counters for r. Reading the email consumes the body,
// so it is restored for the handler.
func (p AuthRateLimitPolicy) checksFor(r *http.Request) ([]rateCheck, error) {
	var checks []rateCheck
	if p.ipLimit > 0 {
		if ip := clientIP(r); ip != "" {
			checks = append(checks, rateCheck{dimension: "ip", subject: ip, limit: p.ipLimit})
		}
	}
	if p.emailLimit == 0 || r.Body == nil {
		return checks, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	var creds struct {
		Email string `json:"email"`
	}
	// Malformed bodies fall through to the handler's own validation.
	if json.Unmarshal(body, &creds) == nil {
		if email := strings.ToLower(strings.TrimSpace(creds.Email)); email != "" {
			sum := sha256.Sum256([]byte(email))
			checks = append(checks, rateCheck{dimension: "email", subject: hex.EncodeToString(sum[:]), limit: p.emailLimit})
		}
	}
	return checks, nil
}

func (p AuthRateLimitPolicy) reject(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, c rateCheck, count int64) {
	if logg != nil {
		key := "ip"
		if c.dimension == "email" {
			key = "email_hash"
		}
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"policy":         p.name,
			"scope":          c.dimension,
			key:              c.subject,
			"attempts":       count,
			"limit":          c.limit,
			"window_seconds": int(p.window.Seconds()),
		}), "auth.rate_limit.blocked")
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(p.window.Round(time.Second).Seconds())))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later"))
}

// clientIP prefers the first valid X-Forwarded-For hop, then X-Real-IP,
// then the socket peer.
func clientIP(r *http.Request) string {
	for _, hop := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if addr, err := netip.ParseAddr(strings.TrimSpace(hop)); err == nil {
			return addr.String()
		}
	}
	if addr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return addr.String()
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
