package redis

import (
	"context"
	"time"
)

// Lock is a best-effort distributed lock used to keep a single stalled-job
// reaper and cleanup pass active across processes. Not fencing-safe; the
// operations it guards are idempotent.
type Lock struct {
	client RedisClient
	key    string
	ttl    time.Duration
}

func NewLock(client RedisClient, key string, ttl time.Duration) *Lock {
	return &Lock{client: client, key: "lock:" + key, ttl: ttl}
}

// TryAcquire returns true when this process holds the lock for the TTL.
func (l *Lock) TryAcquire(ctx context.Context, owner string) (bool, error) {
	return l.client.SetNX(ctx, l.key, owner, l.ttl)
}

func (l *Lock) Release(ctx context.Context) error {
	return l.client.Del(ctx, l.key)
}
