package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unityvault/ticketflow/internal/domain"
)

const redisKeyPrefix = "ratelimit:"

// hitScript runs atomically on the server. A missing key starts a new window;
// INCR keeps the TTL set by the first hit.
var hitScript = redis.NewScript(`
local count = redis.call('GET', KEYS[1])
if not count then
  redis.call('SET', KEYS[1], 1, 'PX', ARGV[2])
  return {1, tonumber(ARGV[2])}
end
count = tonumber(count)
if count <= tonumber(ARGV[1]) then
  count = redis.call('INCR', KEYS[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {count, ttl}
`)

// RedisStore keeps counters in Redis with server-side expiry.
type RedisStore struct {
	client redis.Scripter
}

// NewRedisStore wraps client.
func NewRedisStore(client redis.Scripter) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Hit(ctx context.Context, key string, limit uint32, window time.Duration, now time.Time) (*domain.RateLimitEntry, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("redis client not configured")
	}
	res, err := hitScript.Run(ctx, s.client, []string{redisKeyPrefix + key}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}
	ttl := time.Duration(res[1]) * time.Millisecond
	if ttl < 0 {
		ttl = 0
	}
	return &domain.RateLimitEntry{
		Key:       key,
		Count:     uint32(res[0]),
		WindowEnd: now.Add(ttl),
	}, nil
}
