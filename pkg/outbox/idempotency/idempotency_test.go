package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/redis"
)

func newManager(t *testing.T, ttl time.Duration, opts ...Option) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	m, err := NewManager(redis.Wrap(raw), ttl, opts...)
	require.NoError(t, err)
	return m, srv
}

func TestBeginCompleteLifecycle(t *testing.T) {
	m, srv := newManager(t, 24*time.Hour)
	ctx := context.Background()
	eventID := uuid.New()
	key := "bz:idempotency:evt:order-notifications:" + eventID.String()

	state, err := m.Begin(ctx, "order-notifications", eventID)
	require.NoError(t, err)
	assert.Equal(t, Claimed, state)
	assert.Equal(t, DefaultLease, srv.TTL(key))

	state, err = m.Begin(ctx, "order-notifications", eventID)
	require.NoError(t, err)
	assert.Equal(t, InFlight, state, "second delivery while the first is running")

	require.NoError(t, m.Complete(ctx, "order-notifications", eventID))
	assert.Equal(t, 24*time.Hour, srv.TTL(key))

	state, err = m.Begin(ctx, "order-notifications", eventID)
	require.NoError(t, err)
	assert.Equal(t, Done, state)

	require.NoError(t, m.Abandon(ctx, "order-notifications", eventID))
	assert.True(t, srv.Exists(key), "abandon must not erase a finished event")
}

func TestAbandonAllowsRetry(t *testing.T) {
	m, _ := newManager(t, time.Hour)
	ctx := context.Background()
	eventID := uuid.New()

	state, err := m.Begin(ctx, "refund-issuer", eventID)
	require.NoError(t, err)
	require.Equal(t, Claimed, state)
	require.NoError(t, m.Abandon(ctx, "refund-issuer", eventID))

	state, err = m.Begin(ctx, "refund-issuer", eventID)
	require.NoError(t, err)
	assert.Equal(t, Claimed, state)
}

func TestLeaseExpiryReleasesCrashedWorker(t *testing.T) {
	m, srv := newManager(t, time.Hour, WithLease(30*time.Second))
	ctx := context.Background()
	eventID := uuid.New()

	_, err := m.Begin(ctx, "refund-issuer", eventID)
	require.NoError(t, err)
	srv.FastForward(time.Minute)

	state, err := m.Begin(ctx, "refund-issuer", eventID)
	require.NoError(t, err)
	assert.Equal(t, Claimed, state)
}

func TestConsumersAreIsolated(t *testing.T) {
	m, _ := newManager(t, time.Hour)
	ctx := context.Background()
	eventID := uuid.New()

	require.NoError(t, m.Complete(ctx, "order-notifications", eventID))
	state, err := m.Begin(ctx, "refund-issuer", eventID)
	require.NoError(t, err)
	assert.Equal(t, Claimed, state)
}

func TestStoreFailureSurfaces(t *testing.T) {
	m, srv := newManager(t, time.Hour)
	srv.Close()

	state, err := m.Begin(context.Background(), "refund-issuer", uuid.New())
	assert.Error(t, err)
	assert.Equal(t, InFlight, state)
}

func TestValidation(t *testing.T) {
	_, err := NewManager(nil, time.Hour)
	assert.Error(t, err)

	m, _ := newManager(t, time.Hour)
	_, err = m.Begin(context.Background(), "", uuid.New())
	assert.Error(t, err)
	assert.Error(t, m.Complete(context.Background(), "refund-issuer", uuid.Nil))
	assert.Equal(t, "in_flight", InFlight.String())
}
