package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	values map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryStore) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockExclusive(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	first, err := NewRedisLock(store, "lock:cron", 0)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "lock:cron", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, defaultLockTTL, first.ttl)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, second.Release(ctx))
	assert.Contains(t, store.values, "lock:cron")

	require.NoError(t, first.Release(ctx))
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockLeavesForeignOwner(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	lock, err := NewRedisLock(store, "lock:cron", time.Minute)
	require.NoError(t, err)

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	store.values["lock:cron"] = "someone-else"

	err = lock.Release(ctx)
	require.ErrorIs(t, err, ErrLeaseLost)
	assert.Equal(t, "someone-else", store.values["lock:cron"])
	require.NoError(t, lock.Release(ctx))
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "k", time.Minute)
	assert.Error(t, err)
	_, err = NewRedisLock(newMemoryStore(), "", time.Minute)
	assert.Error(t, err)
}

func TestRedisLockReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	lock, err := NewRedisLock(store, "lock:cron", time.Minute)
	require.NoError(t, err)

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, lock.Release(ctx))
	require.NoError(t, lock.Release(ctx))
	assert.Empty(t, store.values)
}
