package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease grants short-lived exclusive leases so that only one instance
// generates a translation for a given key at a time.
type RedisLease struct {
	client *redis.Client
	ttl    time.Duration
	tokens sync.Map
}

// NewRedisLease creates a lease store using the provided Redis client and TTL.
func NewRedisLease(client *redis.Client, ttl time.Duration) *RedisLease {
	return &RedisLease{client: client, ttl: ttl}
}

func (l *RedisLease) key(key string) string {
	return "lease:" + key
}

// Acquire records the lease if nobody holds it. It returns true when the
// caller now owns the lease.
func (l *RedisLease) Acquire(ctx context.Context, key string) (bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key(key), token, l.ttl).Result()
	if err != nil || !ok {
		return false, err
	}
	l.tokens.Store(key, token)
	return true, nil
}

// Release drops a lease acquired by this instance. Leases that expired and
// were taken over by someone else are left alone.
func (l *RedisLease) Release(ctx context.Context, key string) error {
	token, ok := l.tokens.LoadAndDelete(key)
	if !ok {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{l.key(key)}, token).Err()
}
