package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "folio:returns:"

// RedisStore keeps JSON-encoded results in Redis so several processes share one cache.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore uses client with the default key prefix.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client, prefix: redisKeyPrefix}
}

// Key is the Redis key holding the payload for a cache key.
func (s *RedisStore) Key(cacheKey string) string {
	return s.prefix + cacheKey
}

// Load implements Store. A missing key is (nil, 0, false, nil). The remaining lifetime is
// 0 when the key has no expiry or PTTL fails.
func (s *RedisStore) Load(ctx context.Context, key string) (*Result, time.Duration, bool, error) {
	raw, err := s.client.Get(ctx, s.Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, 0, false, fmt.Errorf("decode cached returns %s: %w", key, err)
	}

	remaining, err := s.client.PTTL(ctx, s.Key(key)).Result()
	if err != nil || remaining < 0 {
		remaining = 0
	}
	return &res, remaining, true, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, key string, res *Result, ttl time.Duration) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode returns %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.Key(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
