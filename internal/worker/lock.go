package worker

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TickLock guards a tick so only one replica runs it at a time.
// Acquire returns ok=false when another holder owns the lock.
type TickLock interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
}

// NoopLock always grants the lock. Used for single-process deployments.
type NoopLock struct{}

// Acquire implements TickLock.
func (NoopLock) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}

// releaseScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLock is a TickLock backed by SET NX with a TTL.
type RedisLock struct {
	client *redis.Client
	prefix string
}

// NewRedisLock connects to addr. The connection is verified lazily.
func NewRedisLock(addr, password string) (*RedisLock, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	return NewRedisLockClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})), nil
}

// NewRedisLockClient wraps an existing client.
func NewRedisLockClient(c *redis.Client) *RedisLock {
	return &RedisLock{client: c, prefix: "review:worker:lock"}
}

// Acquire implements TickLock.
func (l *RedisLock) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	key := l.prefix + ":" + name
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return func() {}, false, err
	}
	release := func() {
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, l.client, []string{key}, token).Err()
	}
	return release, true, nil
}

// Close closes the underlying client.
func (l *RedisLock) Close() error { return l.client.Close() }
