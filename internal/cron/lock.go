package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 4 * time.Minute

// ErrLeaseLost means the lease expired while held, so a peer may have run
// the same cycle concurrently. The TTL is too short for the registered jobs.
var ErrLeaseLost = errors.New("cron lease expired before release")

// Lock keeps two cron workers from auditing the same ledger at once.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}

// RedisLock is a SETNX lease. The TTL should exceed one cycle so a crashed
// worker frees the lock before the next tick of its peers.
type RedisLock struct {
	client redisStore
	key    string
	ttl    time.Duration

	now func() time.Time

	mu       sync.Mutex
	token    string
	acquired time.Time
}

func NewRedisLock(client redisStore, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl, now: time.Now}, nil
}

// Acquire takes the lease under a fresh token. Re-acquiring while held
// reports false.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if ok {
		l.token, l.acquired = token, l.now()
	}
	return ok, nil
}

// Release drops the lease only while it still carries this holder's token,
// so a lease that expired and went to a peer is left alone. That case
// reports ErrLeaseLost.
func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""
	deleted, err := l.client.CompareAndDelete(ctx, l.key, token)
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	if !deleted {
		return fmt.Errorf("release %s after %s: %w", l.key, l.now().Sub(l.acquired).Round(time.Second), ErrLeaseLost)
	}
	return nil
}
