// Package redis is the shared go-redis wrapper: namespaced keys, fixed-window
// counters and owner-checked locks.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/relivv-escrow/pkg/config"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
)

// Nil is returned by Get for a missing key.
const Nil = redis.Nil

const namespace = "rv"

const (
	scopeIdempotency = "idempotency"
	scopeRateLimit   = "rate_limit"
	scopeLock        = "lock"
)

// windowScript bumps a counter and arms its expiry in one round trip, so a
// crash between the two can never leave an immortal counter.
const windowScript = `local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n`

// compareAndDeleteScript removes KEYS[1] only while it still holds ARGV[1].
const compareAndDeleteScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

var errNotConnected = errors.New("redis client not initialized")

// backend is the slice of *redis.Client this package talks to.
type backend interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
	Close() error
}

type Client struct {
	conn backend
}

// New dials redis from cfg and fails fast when the server does not answer.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}
	conn := redis.NewClient(opts)
	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "redis_addr", opts.Addr), "redis.connected")
	}
	return &Client{conn: conn}, nil
}

// clientOptions prefers RELIVV_REDIS_URL; pool and timeout settings fill in
// whatever the URL leaves unset.
func clientOptions(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	case cfg.Address != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	default:
		return nil, errors.New("redis url or address is required")
	}
	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	fillDefault(&opts.PoolSize, cfg.PoolSize)
	fillDefault(&opts.MinIdleConns, cfg.MinIdleConns)
	fillDefault(&opts.DialTimeout, cfg.DialTimeout)
	fillDefault(&opts.ReadTimeout, cfg.ReadTimeout)
	fillDefault(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func fillDefault[T comparable](dst *T, fallback T) {
	var zero T
	if *dst == zero {
		*dst = fallback
	}
}

func (c *Client) ready() error {
	if c == nil || c.conn == nil {
		return errNotConnected
	}
	return nil
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	return c.conn.Get(ctx, key).Result()
}

// Set overwrites key. A zero ttl keeps the key forever.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.conn.Set(ctx, key, value, ttl).Err()
}

// SetNX writes key only if it is absent and reports whether it did.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	return c.conn.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.conn.Del(ctx, keys...).Err()
}

// FixedWindowAllow counts one hit against scope and reports whether the
// window still has room.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	if err := c.ready(); err != nil {
		return false, 0, err
	}
	hits, err := c.conn.Eval(ctx, windowScript, []string{c.RateLimitKey(scope)}, window.Milliseconds()).Int64()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit %s: %w", scope, err)
	}
	return hits <= limit, hits, nil
}

// ReleaseIfOwner deletes key only while its value equals owner and reports
// whether it did.
func (c *Client) ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	n, err := c.conn.Eval(ctx, compareAndDeleteScript, []string{key}, owner).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.conn.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) IdempotencyKey(scope, id string) string {
	return key(scopeIdempotency, scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return key(scopeRateLimit, scope)
}

func (c *Client) LockKey(scope, id string) string {
	return key(scopeLock, scope, id)
}

// key joins the non-empty parts under the rv namespace.
func key(parts ...string) string {
	var b strings.Builder
	b.WriteString(namespace)
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
