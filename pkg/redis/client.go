// Package redis holds the keyspace and primitives the API and cron worker
// share: idempotency replay records, write rate-limit counters and the cron
// lease.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/partsreserve-backend/pkg/config"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
)

const keyNamespace = "partsreserve"

// Deletes KEYS[1] only while it holds ARGV[1]; returns the number removed.
const compareAndDeleteScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// Increments KEYS[1] and starts its ARGV[1]-millisecond window on the first
// hit; returns the new count.
const incrWithTTLScript = `local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n`

var errNotInitialized = errors.New("redis client not initialized")

// backend is the subset of go-redis the client drives.
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
	backend backend
}

// New connects and pings before returning.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"addr": opts.Addr, "db": opts.DB}), "redis connected")
	}
	return &Client{backend: rdb}, nil
}

// optionsFromConfig prefers the URL and lets explicit pool and timeout
// settings fill whatever the URL leaves unset.
func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	case cfg.Address != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password, DB: cfg.DB}
	default:
		return nil, errors.New("redis url or address is required")
	}

	fill := func(dst *time.Duration, v time.Duration) {
		if *dst == 0 {
			*dst = v
		}
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	fill(&opts.DialTimeout, cfg.DialTimeout)
	fill(&opts.ReadTimeout, cfg.ReadTimeout)
	fill(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

// Get returns redis.Nil when key is absent.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.backend == nil {
		return "", errNotInitialized
	}
	return c.backend.Get(ctx, key).Result()
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c.backend == nil {
		return errNotInitialized
	}
	return c.backend.Set(ctx, key, value, ttl).Err()
}

func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c.backend == nil {
		return false, errNotInitialized
	}
	return c.backend.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c.backend == nil {
		return errNotInitialized
	}
	return c.backend.Del(ctx, keys...).Err()
}

// CompareAndDelete atomically removes key if it still holds value and
// reports whether it did.
func (c *Client) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	if c.backend == nil {
		return false, errNotInitialized
	}
	removed, err := c.backend.Eval(ctx, compareAndDeleteScript, []string{key}, value).Int64()
	if err != nil {
		return false, fmt.Errorf("compare and delete %s: %w", key, err)
	}
	return removed == 1, nil
}

// IncrWithTTL counts a hit in a fixed window that opens with the first hit.
func (c *Client) IncrWithTTL(ctx context.Context, key string, window time.Duration) (int64, error) {
	if c.backend == nil {
		return 0, errNotInitialized
	}
	n, err := c.backend.Eval(ctx, incrWithTTLScript, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return n, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c.backend == nil {
		return errNotInitialized
	}
	return c.backend.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c.backend == nil {
		return nil
	}
	return c.backend.Close()
}

// IdempotencyKey scopes a caller's Idempotency-Key to one route.
func (c *Client) IdempotencyKey(scope, id string) string {
	return key("idempotency", scope, id)
}

// RateLimitKey names one counter of a rate-limit policy, e.g. the writes
// of one actor.
func (c *Client) RateLimitKey(policy, scope, id string) string {
	return key("ratelimit", policy, scope, id)
}

func (c *Client) LockKey(name string) string {
	return key("lock", name)
}

func key(parts ...string) string {
	out := []string{keyNamespace}
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return strings.Join(out, ":")
}
