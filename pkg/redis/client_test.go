package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	client := &Client{store: mock, now: func() time.Time { return now }}

	allowed, count, err := client.FixedWindowAllow(ctx, "accept:ip:abc", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.EqualValues(t, 1, count)
	require.Len(t, mock.expireCalls, 1)
	assert.Equal(t, time.Minute, mock.expireCalls[0].ttl)
	assert.Equal(t, fmt.Sprintf("sf:rate_limit:accept:ip:abc:%d", now.UnixNano()/int64(time.Minute)), mock.expireCalls[0].key)

	allowed, count, err = client.FixedWindowAllow(ctx, "accept:ip:abc", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.EqualValues(t, 2, count)
	assert.Len(t, mock.expireCalls, 1, "expire only on the first hit")

	allowed, _, err = client.FixedWindowAllow(ctx, "accept:ip:abc", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	now = now.Add(time.Minute)
	allowed, count, err = client.FixedWindowAllow(ctx, "accept:ip:abc", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "next window starts a fresh counter")
	assert.EqualValues(t, 1, count)
}

func TestFixedWindowAllowRejectsBadWindow(t *testing.T) {
	client := &Client{store: newMockCmdable()}
	_, _, err := client.FixedWindowAllow(context.Background(), "s", 1, 0)
	assert.Error(t, err)
}

func TestCompareAndDelete(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.LockKey("cron-worker:prod")

	ok, err := client.SetNX(ctx, key, "host-a/1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = client.SetNX(ctx, key, "host-b/2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err := client.CompareAndDelete(ctx, key, "host-b/2")
	require.NoError(t, err)
	assert.False(t, removed)
	value, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "host-a/1", value)

	removed, err = client.CompareAndDelete(ctx, key, "host-a/1")
	require.NoError(t, err)
	assert.True(t, removed)
	_, err = client.Get(ctx, key)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "sf:idempotency:evt:delivered:team:abc", client.IdempotencyKey("evt:delivered:team", "abc"))
	assert.Equal(t, "sf:rate_limit:register:email:x", client.RateLimitKey("register:email:x"))
	assert.Equal(t, "sf:lock:cron-worker:dev", client.LockKey("cron-worker:dev"))
	assert.Equal(t, "sf:idempotency:id", client.IdempotencyKey(" ", "id"))
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{
		URL:         "redis://:pw@cache:6379/3",
		DB:          7,
		PoolSize:    12,
		DialTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 3, opts.DB, "url database wins")
	assert.Equal(t, 12, opts.PoolSize)
	assert.Equal(t, 2*time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 2})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)

	_, err = optionsFromConfig(config.RedisConfig{})
	assert.Error(t, err)
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	assert.ErrorIs(t, client.Ping(context.Background()), errNotInitialized)
	_, err := client.CompareAndDelete(context.Background(), "k", "v")
	assert.ErrorIs(t, err, errNotInitialized)
	assert.NoError(t, client.Close())
}

type mockCmdable struct {
	data        map[string]string
	incr        map[string]int64
	expireCalls []expireCall
}

type expireCall struct {
	key string
	ttl time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		incr: make(map[string]int64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(_ context.Context, key string) *redis.IntCmd {
	m.incr[key]++
	return redis.NewIntResult(m.incr[key], nil)
}

func (m *mockCmdable) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: expiration})
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

// Eval understands only the compare-and-delete script.
func (m *mockCmdable) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	if script != compareAndDelete {
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected script"))
	}
	if current, ok := m.data[keys[0]]; ok && current == fmt.Sprint(args[0]) {
		delete(m.data, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}
