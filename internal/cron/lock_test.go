package cron

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	value, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (m *memoryStore) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	if m.values[key] != expected {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockIsExclusiveUntilReleased(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()

	first, err := NewRedisLock(store, "sf:lock:cron-worker:test", 0, "worker-a")
	require.NoError(t, err)
	second, err := NewRedisLock(store, "sf:lock:cron-worker:test", 0, "worker-a")
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, defaultLockTTL, store.ttls["sf:lock:cron-worker:test"])

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = first.Acquire(ctx)
	assert.Error(t, err, "re-acquire by the holder")

	holder, err := second.Holder(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(holder, "worker-a/"), holder)

	// a non-owner release leaves the holder's lock in place
	require.NoError(t, second.Release(ctx))
	_, held := store.values["sf:lock:cron-worker:test"]
	assert.True(t, held)

	require.NoError(t, first.Release(ctx))
	holder, err = second.Holder(ctx)
	require.NoError(t, err)
	assert.Empty(t, holder)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockLeavesForeignHolderInPlace(t *testing.T) {
	store := newMemoryStore()
	lock, err := NewRedisLock(store, "k", time.Minute, "cron-test")
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	// expired and picked up by another worker
	store.values["k"] = "other-host/123"

	require.NoError(t, lock.Release(ctx))
	assert.Equal(t, "other-host/123", store.values["k"])
}

func TestRedisLockReleaseAfterExpiry(t *testing.T) {
	store := newMemoryStore()
	lock, err := NewRedisLock(store, "k", time.Minute, "cron-test")
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	delete(store.values, "k")

	assert.NoError(t, lock.Release(ctx))
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "k", 0, "")
	assert.Error(t, err)
	_, err = NewRedisLock(newMemoryStore(), "", 0, "")
	assert.Error(t, err)
}
