package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	values  map[string]string
	ttls    map[string]time.Duration
	failSet error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.failSet != nil {
		return false, m.failSet
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	if m.values[key] != expected {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "sf:idempotency:" + scope + ":" + id
}

const channel = "storefront-team-events"

func TestClaimThenDuplicate(t *testing.T) {
	store := newMemoryStore()
	manager, err := NewManager(store, 24*time.Hour, "publisher-a")
	require.NoError(t, err)
	ctx := context.Background()
	eventID := uuid.New()

	already, err := manager.Claim(ctx, channel, eventID)
	require.NoError(t, err)
	assert.False(t, already)

	key := "sf:idempotency:evt:delivered:" + channel + ":" + eventID.String()
	assert.Equal(t, "publisher-a", store.values[key])
	assert.Equal(t, 24*time.Hour, store.ttls[key])

	already, err = manager.Claim(ctx, channel, eventID)
	require.NoError(t, err)
	assert.True(t, already)
}

func TestReleaseOnlyDropsOwnClaim(t *testing.T) {
	store := newMemoryStore()
	a, err := NewManager(store, time.Hour, "publisher-a")
	require.NoError(t, err)
	b, err := NewManager(store, time.Hour, "publisher-b")
	require.NoError(t, err)
	ctx := context.Background()
	eventID := uuid.New()

	_, err = a.Claim(ctx, channel, eventID)
	require.NoError(t, err)

	require.NoError(t, b.Release(ctx, channel, eventID))
	already, err := b.Claim(ctx, channel, eventID)
	require.NoError(t, err)
	assert.True(t, already, "foreign release must not drop the claim")

	require.NoError(t, a.Release(ctx, channel, eventID))
	already, err = b.Claim(ctx, channel, eventID)
	require.NoError(t, err)
	assert.False(t, already)
}

func TestClaimWrapsStoreError(t *testing.T) {
	store := newMemoryStore()
	store.failSet = errors.New("boom")
	manager, err := NewManager(store, time.Hour, "")
	require.NoError(t, err)

	_, err = manager.Claim(context.Background(), channel, uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, store.failSet)
}

func TestManagerValidation(t *testing.T) {
	_, err := NewManager(nil, time.Hour, "")
	assert.Error(t, err)
	_, err = NewManager(newMemoryStore(), 0, "")
	assert.Error(t, err)

	manager, err := NewManager(newMemoryStore(), time.Hour, "")
	require.NoError(t, err)
	assert.NotEmpty(t, manager.owner)

	_, err = manager.Claim(context.Background(), "", uuid.New())
	assert.EqualError(t, err, "channel name is required")
	_, err = manager.Claim(context.Background(), channel, uuid.Nil)
	assert.EqualError(t, err, "event id is required")
}
