package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLock_ExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)

	first := NewRedisLock(client, "penalty-sweep", time.Minute)
	second := NewRedisLock(client, "penalty-sweep", time.Minute)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not get the lock")

	// Releasing a lock we don't own is a no-op.
	require.NoError(t, second.Release(ctx))
	ok, _ = second.Acquire(ctx)
	assert.False(t, ok)

	require.NoError(t, first.Release(ctx))
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)

	first := NewRedisLock(client, "penalty-sweep", 10*time.Second)
	second := NewRedisLock(client, "penalty-sweep", 10*time.Second)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(11 * time.Second)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "lock should be free after TTL")

	// The stale holder must not delete the new owner's key.
	require.NoError(t, first.Release(ctx))
	assert.True(t, mr.Exists("lock:penalty-sweep"))
}

func TestRedisLock_Extend(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)

	lock := NewRedisLock(client, "penalty-sweep", 5*time.Second)
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	extended, err := lock.Extend(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, extended)
	assert.Greater(t, mr.TTL("lock:penalty-sweep"), 30*time.Second)

	other := NewRedisLock(client, "penalty-sweep", time.Minute)
	extended, err = other.Extend(ctx, time.Minute)
	require.NoError(t, err)
	assert.False(t, extended)
}

func TestNewLock_PicksBackend(t *testing.T) {
	_, client := newTestRedis(t)
	assert.IsType(t, &RedisLock{}, NewLock(client, nil, "k", time.Second))
	assert.Nil(t, NewLock(nil, nil, "k", time.Second))
}
