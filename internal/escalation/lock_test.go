package escalation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLock(t *testing.T) (*RedisScanLock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisScanLock(client), mr
}

func TestRedisScanLockMutualExclusion(t *testing.T) {
	lock, _ := newTestLock(t)
	ctx := context.Background()

	release, ok, err := lock.Acquire(ctx, "acct-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Second holder is refused while the first holds the lock.
	_, ok, err = lock.Acquire(ctx, "acct-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// A different account is an independent lock.
	release2, ok, err := lock.Acquire(ctx, "acct-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	release2()

	release()
	_, ok, err = lock.Acquire(ctx, "acct-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisScanLockExpires(t *testing.T) {
	lock, mr := newTestLock(t)
	ctx := context.Background()

	_, ok, err := lock.Acquire(ctx, "acct-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	_, ok, err = lock.Acquire(ctx, "acct-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock should be acquirable")
}

func TestRedisScanLockReleaseChecksToken(t *testing.T) {
	lock, mr := newTestLock(t)
	ctx := context.Background()

	release, ok, err := lock.Acquire(ctx, "acct-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Lock expires and a new holder takes over.
	mr.FastForward(2 * time.Minute)
	_, ok, err = lock.Acquire(ctx, "acct-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Stale release must not free the new holder's lock.
	release()
	_, ok, err = lock.Acquire(ctx, "acct-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNoopScanLockAlwaysGrants(t *testing.T) {
	var lock NoopScanLock
	release, ok, err := lock.Acquire(context.Background(), "acct-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotPanics(t, release)
}
