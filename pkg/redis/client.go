package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hopl-labs/hopl-backend/pkg/config"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
)

// Every key the backend writes lives under "hopl:<kind>:...".
const (
	keyNamespace = "hopl"

	kindIdempotency = "idempotency"
	kindRateLimit   = "rate_limit"
	kindCache       = "cache"
	kindSession     = "session"
	kindLock        = "lock"
)

var errNotInitialized = errors.New("redis client not initialized")

// compareAndDelete drops KEYS[1] only while it still holds ARGV[1].
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Client is the Redis handle shared by the scan cache, sessions, auth rate
// limits, Idempotency-Key replay, webhook dedupe and the cron lock.
type Client struct {
	rdb *redis.Client
}

// Pinger exposes the health-check surface.
type Pinger interface {
	Ping(context.Context) error
}

// CacheStore is the read-through cache surface used by scans.
type CacheStore interface {
	Get(context.Context, string) (string, error)
	Set(context.Context, string, any, time.Duration) error
	CacheKey(scope, id string) string
}

// IdempotencyStore is what request replay and event dedupe need.
type IdempotencyStore interface {
	Get(context.Context, string) (string, error)
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	Del(context.Context, ...string) error
}

// New connects using cfg and fails fast when the server does not answer.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"redis_addr": opts.Addr,
			"redis_db":   opts.DB,
		}), "redis connection established")
	}
	return &Client{rdb: rdb}, nil
}

// Wrap adapts an existing go-redis client, e.g. one pointed at miniredis.
func Wrap(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// optionsFromConfig prefers HOPL_REDIS_URL; pool and timeout settings from
// the discrete variables fill whatever the URL left unset.
func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	case cfg.Address != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	default:
		return nil, errors.New("redis url or address is required")
	}

	fillInt(&opts.DB, cfg.DB)
	fillInt(&opts.PoolSize, cfg.PoolSize)
	fillInt(&opts.MinIdleConns, cfg.MinIdleConns)
	fillDuration(&opts.DialTimeout, cfg.DialTimeout)
	fillDuration(&opts.ReadTimeout, cfg.ReadTimeout)
	fillDuration(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func fillInt(dst *int, v int) {
	if *dst == 0 {
		*dst = v
	}
}

func fillDuration(dst *time.Duration, v time.Duration) {
	if *dst == 0 {
		*dst = v
	}
}

func (c *Client) conn() (*redis.Client, error) {
	if c == nil || c.rdb == nil {
		return nil, errNotInitialized
	}
	return c.rdb, nil
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	rdb, err := c.conn()
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, value, ttl).Err()
}

// Get returns the string at key; a missing key yields an error for which
// IsMiss is true.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	rdb, err := c.conn()
	if err != nil {
		return "", err
	}
	return rdb.Get(ctx, key).Result()
}

// GetDel returns and removes key atomically. A missing key yields an error
// for which IsMiss is true.
func (c *Client) GetDel(ctx context.Context, key string) (string, error) {
	rdb, err := c.conn()
	if err != nil {
		return "", err
	}
	return rdb.GetDel(ctx, key).Result()
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	rdb, err := c.conn()
	if err != nil {
		return false, err
	}
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	rdb, err := c.conn()
	if err != nil {
		return false, err
	}
	return rdb.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	rdb, err := c.conn()
	if err != nil {
		return err
	}
	return rdb.Del(ctx, keys...).Err()
}

// CompareAndDelete removes key only if it still holds value. It reports
// whether the key was deleted.
func (c *Client) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	rdb, err := c.conn()
	if err != nil {
		return false, err
	}
	n, err := compareAndDelete.Run(ctx, rdb, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// IncrWithTTL increments key and starts its TTL on the first increment. Both
// commands go out in one MULTI so a counter never outlives its window.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	rdb, err := c.conn()
	if err != nil {
		return 0, err
	}
	var incr *redis.IntCmd
	_, err = rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		if ttl > 0 {
			pipe.ExpireNX(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// FixedWindowAllow counts one hit against scope and reports whether the
// count is still within limit for the current window.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	count, err := c.IncrWithTTL(ctx, c.RateLimitKey(scope), window)
	if err != nil {
		return false, 0, err
	}
	return count <= limit, count, nil
}

func (c *Client) Ping(ctx context.Context) error {
	rdb, err := c.conn()
	if err != nil {
		return err
	}
	return rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

func (c *Client) IdempotencyKey(scope, id string) string {
	return buildKey(kindIdempotency, scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return buildKey(kindRateLimit, scope)
}

func (c *Client) CacheKey(scope, id string) string {
	return buildKey(kindCache, scope, id)
}

func (c *Client) AccessSessionKey(accessID string) string {
	return buildKey(kindSession, "access", accessID)
}

// LockKey names a per-environment mutex, e.g. hopl:lock:cron-worker:prod.
func (c *Client) LockKey(name, env string) string {
	if env == "" {
		env = "local"
	}
	return buildKey(kindLock, name, env)
}

func buildKey(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

// IsMiss reports whether err is the go-redis "key does not exist" sentinel.
func IsMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}
