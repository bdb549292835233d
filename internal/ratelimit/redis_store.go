package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements a distributed rate limit store on Redis. Bucket
// state is a hash per counselor, and refill-check-consume runs as a Lua
// script so concurrent gateway instances cannot double-spend tokens.
type RedisStore struct {
	client *redis.Client
	script *redis.Script
}

// allowScript refills the bucket for the elapsed time, consumes one token
// when available and returns {allowed, remaining}. Timestamps are float
// seconds supplied by the caller so clocks stay consistent per instance.
const allowScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])
if tokens == nil then
	tokens = capacity
	last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
	tokens = math.min(capacity, tokens + elapsed * refill_rate)
end

local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill', now)
redis.call('EXPIRE', key, ttl)

return {allowed, tostring(tokens)}
`

// NewRedisStore creates a Redis-backed rate limit store.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisStore{
		client: client,
		script: redis.NewScript(allowScript),
	}, nil
}

// Allow checks whether a request for the counselor should be allowed.
func (s *RedisStore) Allow(ctx context.Context, counselorID int64, capacity, refillRate float64) (bool, float64, error) {
	key := bucketKey(counselorID)
	now := float64(time.Now().UnixMicro()) / 1e6
	// Keep state around for two full refill windows, then let it expire.
	ttl := int64(math.Ceil(capacity/refillRate)) * 2
	if ttl < 60 {
		ttl = 60
	}

	res, err := s.script.Run(ctx, s.client, []string{key}, capacity, refillRate, now, ttl).Result()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit script: %w", err)
	}
	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return false, 0, fmt.Errorf("unexpected script result %T", res)
	}
	allowed, _ := values[0].(int64)
	remaining := 0.0
	if raw, ok := values[1].(string); ok {
		remaining, _ = strconv.ParseFloat(raw, 64)
	}
	return allowed == 1, remaining, nil
}

// Reset clears the counselor's bucket.
func (s *RedisStore) Reset(ctx context.Context, counselorID int64) error {
	return s.client.Del(ctx, bucketKey(counselorID)).Err()
}

// Close releases the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping verifies the Redis backend is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func bucketKey(counselorID int64) string {
	return fmt.Sprintf("ratelimit:counselor:%d", counselorID)
}
