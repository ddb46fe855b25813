package reset

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/assistly/server/internal/shared/errors"
)

// Locker claims a day so only one process runs the scheduled reset.
type Locker interface {
	TryLock(ctx context.Context, day string) (bool, error)
}

const lockKeyPrefix = "reset:daily:"

// RedisLocker claims days with SETNX.
type RedisLocker struct {
	client redis.UniversalClient
	owner  string
	ttl    time.Duration
}

// NewRedisLocker creates a Redis-backed locker. owner identifies this process in the lock value.
func NewRedisLocker(client redis.UniversalClient, owner string) *RedisLocker {
	return &RedisLocker{client: client, owner: owner, ttl: 25 * time.Hour}
}

// TryLock reports whether this call claimed the day.
func (l *RedisLocker) TryLock(ctx context.Context, day string) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockKeyPrefix+day, l.owner, l.ttl).Result()
	if err != nil {
		return false, apperrors.Unavailable("redis", err)
	}
	return ok, nil
}

// NopLocker always grants the lock.
type NopLocker struct{}

// TryLock always succeeds.
func (NopLocker) TryLock(context.Context, string) (bool, error) { return true, nil }
