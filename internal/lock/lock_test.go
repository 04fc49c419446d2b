package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLocker_Exclusive(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	l := NewRedisLocker(client)

	release, ok, err := l.TryLock(ctx, "campaign:c1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("lock:campaign:c1"))

	_, ok, err = l.TryLock(ctx, "campaign:c1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists("lock:campaign:c1"))

	_, ok, err = l.TryLock(ctx, "campaign:c1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLocker_ExpiredLockIsNotReleasedByOldOwner(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	l := NewRedisLocker(client)

	release, ok, err := l.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	_, ok, err = l.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, release(ctx))
	assert.True(t, mr.Exists("lock:k"))
}

func TestRedisLocker_Unreachable(t *testing.T) {
	mr, client := setupRedis(t)
	mr.Close()

	_, ok, err := NewRedisLocker(client).TryLock(context.Background(), "k", time.Minute)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	l := NewLocalLocker()
	l.nowFn = func() time.Time { return now }

	release, ok, _ := l.TryLock(ctx, "k", time.Minute)
	require.True(t, ok)
	_, ok, _ = l.TryLock(ctx, "k", time.Minute)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	release2, ok, _ := l.TryLock(ctx, "k", time.Minute)
	require.True(t, ok)

	// stale release from the first holder leaves the new holder alone
	require.NoError(t, release(ctx))
	_, ok, _ = l.TryLock(ctx, "k", time.Minute)
	assert.False(t, ok)

	require.NoError(t, release2(ctx))
	_, ok, _ = l.TryLock(ctx, "k", time.Minute)
	assert.True(t, ok)
}
