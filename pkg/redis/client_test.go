package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	raw := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return Wrap(raw), srv
}

func TestSetNXHonoursExistingKey(t *testing.T) {
	client, srv := newTestClient(t)
	ctx := context.Background()
	key := client.IdempotencyKey("webhook", "abc")

	set, err := client.SetNX(ctx, key, "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, set)

	set, err = client.SetNX(ctx, key, "2", time.Minute)
	require.NoError(t, err)
	assert.False(t, set)

	value, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "1", value)

	srv.FastForward(2 * time.Minute)
	_, err = client.Get(ctx, key)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestSetGetDel(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "bz:test", "value", 0))
	value, err := client.Get(ctx, "bz:test")
	require.NoError(t, err)
	assert.Equal(t, "value", value)

	require.NoError(t, client.Del(ctx, "bz:test"))
	_, err = client.Get(ctx, "bz:test")
	assert.ErrorIs(t, err, redis.Nil)
	require.NoError(t, client.Ping(ctx))
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "bz:idempotency:evt:processed:notifications:123", client.IdempotencyKey("evt:processed:notifications", "123"))
	assert.Equal(t, "bz:lock:cron-worker", client.LockKey("cron-worker"))
	assert.Equal(t, "bz:idempotency:abc", client.IdempotencyKey("", "abc"))
	assert.Equal(t, "bz:webhook:payment", client.Key(" webhook ", "", "payment"))
	assert.Equal(t, "bz", client.Key())
}

func TestSetXXOnlyOverwritesExistingKeys(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	ok, err := client.SetXX(ctx, "bz:claim", "done", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, client.Set(ctx, "bz:claim", "processing", time.Minute))
	ok, err = client.SetXX(ctx, "bz:claim", "done", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	value, err := client.Get(ctx, "bz:claim")
	require.NoError(t, err)
	assert.Equal(t, "done", value)
}

func TestCompareAndDelete(t *testing.T) {
	client, srv := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, srv.Set("bz:lock:cron", "owner-a"))

	deleted, err := client.CompareAndDelete(ctx, "bz:lock:cron", "owner-b")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.True(t, srv.Exists("bz:lock:cron"))

	deleted, err = client.CompareAndDelete(ctx, "bz:lock:cron", "owner-a")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, srv.Exists("bz:lock:cron"))

	deleted, err = client.CompareAndDelete(ctx, "bz:lock:cron", "owner-a")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	ctx := context.Background()
	assert.Error(t, client.Ping(ctx))
	_, err := client.Get(ctx, "k")
	assert.Error(t, err)
	_, err = client.SetNX(ctx, "k", "v", time.Second)
	assert.Error(t, err)
	_, err = client.CompareAndDelete(ctx, "k", "v")
	assert.Error(t, err)
	assert.NoError(t, client.Close())
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 7, DialTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 3, ReadTimeout: 2 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 2*time.Second, opts.ReadTimeout)

	_, err = optionsFromConfig(config.RedisConfig{})
	assert.Error(t, err)
}
