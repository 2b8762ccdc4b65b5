// Package scheduler contains the background workers: the status poller and
// the reconciliation sweep
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// DistributedLock is a redis SET NX PX mutex. Release is token checked, so an
// expired lock taken over by another instance is never deleted from here.
type DistributedLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
}

// NewDistributedLock creates a lock handle for the given key
func NewDistributedLock(client *redis.Client, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client: client,
		key:    key,
		ttl:    ttl,
		token:  uuid.NewString(),
	}
}

// TryAcquire attempts to take the lock without blocking
func (l *DistributedLock) TryAcquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
}

// Release frees the lock if this instance still owns it
func (l *DistributedLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}
