package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client *redis.Client
	mu     sync.Mutex
	held   map[string]string
}

// NewRedisLocker constructs a Redis-based lock manager.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{
		client: client,
		held:   make(map[string]string),
	}
}

// Acquire sets key with a random token and TTL when it is free. The key
// expires on its own if the holder dies.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) error {
	l.mu.Lock()
	if _, exists := l.held[key]; exists {
		l.mu.Unlock()
		return ErrAlreadyHeld
	}
	l.mu.Unlock()

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAcquired
	}

	l.mu.Lock()
	l.held[key] = token
	l.mu.Unlock()
	return nil
}

// Release deletes key only if it still carries this process's token.
func (l *RedisLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	token, ok := l.held[key]
	if ok {
		delete(l.held, key)
	}
	l.mu.Unlock()

	if !ok {
		return nil
	}

	return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
}
