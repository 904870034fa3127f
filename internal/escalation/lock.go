package escalation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ScanLock serializes scans per account so overlapping workers do not burn
// database capacity re-evaluating the same items. Correctness never depends
// on the lock: the record store's conditional writes already make concurrent
// scans safe.
type ScanLock interface {
	// Acquire returns a release func and true on success, or false when
	// another holder owns the lock.
	Acquire(ctx context.Context, accountID string, ttl time.Duration) (func(), bool, error)
}

// RedisScanLock implements ScanLock with SET NX PX and a token-checked
// release, so an expired holder cannot release a lock it no longer owns.
type RedisScanLock struct {
	client *redis.Client
}

// NewRedisScanLock creates a Redis-backed scan lock.
func NewRedisScanLock(client *redis.Client) *RedisScanLock {
	return &RedisScanLock{client: client}
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func scanLockKey(accountID string) string {
	return "sla:scan-lock:" + accountID
}

func (l *RedisScanLock) Acquire(ctx context.Context, accountID string, ttl time.Duration) (func(), bool, error) {
	key := scanLockKey(accountID)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("escalation: acquire scan lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// Best effort. The TTL reclaims the lock if release fails.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}
	return release, true, nil
}

// NoopScanLock always grants the lock. Used when Redis is not configured:
// single-instance deployments stay correct without it.
type NoopScanLock struct{}

func (NoopScanLock) Acquire(_ context.Context, _ string, _ time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}
