package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/git-hulk/go-nodup/guard/engine"
)

var replaceScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
    return 1
else
    return 0
end
`)

var compareAndDeleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

var (
	_ engine.Store             = (*Redis)(nil)
	_ engine.CompareAndDeleter = (*Redis)(nil)
)

// Redis implements engine.Store on a Redis server or cluster.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis creates a new Redis store.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// SetNX issues SET key value PX ttl NX so the TTL is part of the write.
func (r *Redis) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, ttl).Result()
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Replace sets key to value with ttl only if it still holds old.
func (r *Redis) Replace(ctx context.Context, key, old, value string, ttl time.Duration) (bool, error) {
	n, err := replaceScript.Run(ctx, r.client, []string{key}, old, value, ttlMillis(ttl)).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CompareAndDelete deletes key only if it still holds value.
func (r *Redis) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	n, err := compareAndDeleteScript.Run(ctx, r.client, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func ttlMillis(ttl time.Duration) int64 {
	ms := ttl.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return ms
}
