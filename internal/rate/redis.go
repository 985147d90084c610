package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces limiter keys.
const DefaultRedisPrefix = "grl"

const attemptScript = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local block = tonumber(ARGV[4])

local cur = redis.call("HMGET", KEYS[1], "c", "ws", "bu")
local count = tonumber(cur[1] or "0")
local ws = tonumber(cur[2] or "0")
local bu = tonumber(cur[3] or "0")

if now < bu then
  return {0, count, ws + window, bu}
end

if ws == 0 or now - ws > window then
  count = 0
  ws = now
  bu = 0
end

count = count + 1
local allowed = 1
if count > max then
  allowed = 0
  if block > 0 then
    bu = now + block
  end
end

redis.call("HSET", KEYS[1], "c", count, "ws", ws, "bu", bu)
redis.call("PEXPIRE", KEYS[1], ARGV[5])
return {allowed, count, ws + window, bu}
`

var attemptLua = redis.NewScript(attemptScript)

// Redis runs the limiter algorithm server-side so every instance sharing the
// Redis deployment sees one counter per (bucket, key).
type Redis struct {
	redis    redis.UniversalClient
	policies Policies
	prefix   string
	now      func() time.Time
}

// RedisOption configures a Redis limiter.
type RedisOption func(*Redis)

// WithRedisPrefix overrides DefaultRedisPrefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithRedisClock overrides the time source passed to the script.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(r *Redis) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRedis returns a shared limiter enforcing policies. The client is owned
// by the caller; Close does not close it.
func NewRedis(client redis.UniversalClient, policies Policies, opts ...RedisOption) (*Redis, error) {
	if err := policies.Validate(); err != nil {
		return nil, err
	}
	r := &Redis{
		redis:    client,
		policies: policies.clone(),
		prefix:   DefaultRedisPrefix,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Redis) key(bucket, key string) string {
	return r.prefix + ":" + bucket + ":" + key
}

// Allow records an attempt for key in bucket.
func (r *Redis) Allow(ctx context.Context, bucket, key string) (Decision, error) {
	p, ok := r.policies[bucket]
	if !ok {
		return Decision{}, ErrUnknownBucket
	}

	ttl := Retention
	if hold := p.Window + p.BlockDuration; hold > ttl {
		ttl = hold
	}

	now := r.now()
	res, err := attemptLua.Run(ctx, r.redis, []string{r.key(bucket, key)},
		now.UnixMilli(), p.Window.Milliseconds(), p.MaxRequests, p.BlockDuration.Milliseconds(), ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 4 {
		return Decision{}, fmt.Errorf("%w: unexpected script reply %v", ErrRedisUnavailable, res)
	}

	d := Decision{
		Allowed: res[0] == 1,
		Count:   int(res[1]),
		ResetAt: time.UnixMilli(res[2]),
	}
	if res[3] > 0 {
		d.BlockedUntil = time.UnixMilli(res[3])
	}
	return d, nil
}

// Close is a no-op; the Redis client belongs to the caller.
func (r *Redis) Close() error { return nil }
