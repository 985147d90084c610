package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces refresh token keys.
const DefaultRedisPrefix = "grt"

// DefaultRedisGrace keeps revoked and expired records around long enough for
// reuse detection before Redis evicts them.
const DefaultRedisGrace = 24 * time.Hour

const insertTokenScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "id", ARGV[1], "uid", ARGV[2], "exp", ARGV[3], "rev", "0", "cat", ARGV[4])
redis.call("PEXPIRE", KEYS[1], ARGV[5])
redis.call("SADD", KEYS[2], ARGV[6])
if redis.call("PTTL", KEYS[2]) < tonumber(ARGV[5]) then
  redis.call("PEXPIRE", KEYS[2], ARGV[5])
end
return 1
`

const rotateTokenScript = `
local now = tonumber(ARGV[1])
local cur = redis.call("HMGET", KEYS[1], "uid", "rev", "exp")
local uid = cur[1]
if not uid or cur[2] == "1" or tonumber(cur[3]) <= now then
  return {0}
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return {2}
end
redis.call("HSET", KEYS[1], "rev", "1", "lu", ARGV[1])

local user_key = ARGV[6] .. uid
redis.call("HSET", KEYS[2], "id", ARGV[2], "uid", uid, "exp", ARGV[3], "rev", "0", "cat", ARGV[1])
redis.call("PEXPIRE", KEYS[2], ARGV[4])
redis.call("SADD", user_key, ARGV[5])
if redis.call("PTTL", user_key) < tonumber(ARGV[4]) then
  redis.call("PEXPIRE", user_key, ARGV[4])
end
return {1, uid}
`

const revokeTokenScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "rev") == "1" then
  return 0
end
redis.call("HSET", KEYS[1], "rev", "1")
return 1
`

// ARGV[3] == "1" revokes, anything else only counts.
const userTokensScript = `
local now = tonumber(ARGV[1])
local hashes = redis.call("SMEMBERS", KEYS[1])
local n = 0
for _, h in ipairs(hashes) do
  local k = ARGV[2] .. h
  local cur = redis.call("HMGET", k, "rev", "exp")
  if not cur[2] then
    redis.call("SREM", KEYS[1], h)
  elseif cur[1] ~= "1" and tonumber(cur[2]) > now then
    if ARGV[3] == "1" then
      redis.call("HSET", k, "rev", "1")
    end
    n = n + 1
  end
end
return n
`

const cleanupTokenScript = `
local cur = redis.call("HMGET", KEYS[1], "uid", "rev", "exp")
if not cur[1] then
  return 0
end
if cur[2] == "1" or tonumber(cur[3]) <= tonumber(ARGV[1]) then
  redis.call("DEL", KEYS[1])
  redis.call("SREM", ARGV[2] .. cur[1], ARGV[3])
  return 1
end
return 0
`

var (
	insertTokenLua  = redis.NewScript(insertTokenScript)
	rotateTokenLua  = redis.NewScript(rotateTokenScript)
	revokeTokenLua  = redis.NewScript(revokeTokenScript)
	userTokensLua   = redis.NewScript(userTokensScript)
	cleanupTokenLua = redis.NewScript(cleanupTokenScript)
)

var errHashCollision = errors.New("refresh token hash already stored")

// Redis keeps one hash per token at {prefix}:t:<hash> and a per-user index
// set at {prefix}:u:<userID>. Every mutation is a single Lua script.
//
// The braces are a cluster hash tag: every key of one store lands in the
// same slot, so scripts that derive user keys from a token record stay
// valid on Redis Cluster.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
	grace  time.Duration
	now    func() time.Time
}

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithRedisPrefix overrides DefaultRedisPrefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithRedisGrace overrides DefaultRedisGrace.
func WithRedisGrace(grace time.Duration) RedisOption {
	return func(r *Redis) {
		if grace >= 0 {
			r.grace = grace
		}
	}
}

// WithRedisClock overrides the clock used for expiry comparisons.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(r *Redis) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRedis returns a Store backed by client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		redis:  client,
		prefix: DefaultRedisPrefix,
		grace:  DefaultRedisGrace,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.prefix = hashTag(r.prefix)
	return r
}

// hashTag wraps prefix in braces unless it already carries a hash tag.
func hashTag(prefix string) string {
	if i := strings.IndexByte(prefix, '{'); i >= 0 && strings.IndexByte(prefix[i:], '}') > 1 {
		return prefix
	}
	return "{" + prefix + "}"
}

func (r *Redis) tokenPrefix() string { return r.prefix + ":t:" }

func (r *Redis) userPrefix() string { return r.prefix + ":u:" }

func (r *Redis) tokenKey(hash string) string { return r.tokenPrefix() + hash }

func (r *Redis) userKey(userID string) string { return r.userPrefix() + userID }

func (r *Redis) keyTTL(expiresAt, now time.Time) int64 {
	ttl := expiresAt.Sub(now) + r.grace
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl.Milliseconds()
}

func (r *Redis) Create(ctx context.Context, userID, rawToken string, expiresAt time.Time) (*RefreshToken, error) {
	now := r.now()
	rec := &RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: HashToken(rawToken),
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}

	ok, err := insertTokenLua.Run(ctx, r.redis,
		[]string{r.tokenKey(rec.TokenHash), r.userKey(userID)},
		rec.ID, userID, expiresAt.UnixMilli(), now.UnixMilli(), r.keyTTL(expiresAt, now), rec.TokenHash,
	).Int()
	if err != nil {
		return nil, unavailable(err)
	}
	if ok == 0 {
		return nil, unavailable(errHashCollision)
	}
	return rec, nil
}

func (r *Redis) FindActive(ctx context.Context, rawToken string) (*RefreshToken, error) {
	rec, err := r.Find(ctx, rawToken)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotActive
	}
	if err != nil {
		return nil, err
	}
	if !rec.Active(r.now()) {
		return nil, ErrNotActive
	}
	return rec, nil
}

func (r *Redis) Find(ctx context.Context, rawToken string) (*RefreshToken, error) {
	hash := HashToken(rawToken)
	fields, err := r.redis.HGetAll(ctx, r.tokenKey(hash)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	rec, err := decodeTokenHash(hash, fields)
	if err != nil {
		return nil, unavailable(err)
	}
	return rec, nil
}

func (r *Redis) Rotate(ctx context.Context, oldRaw, newRaw string, expiresAt time.Time) (*RefreshToken, error) {
	now := r.now()
	newHash := HashToken(newRaw)
	id := uuid.NewString()

	res, err := rotateTokenLua.Run(ctx, r.redis,
		[]string{r.tokenKey(HashToken(oldRaw)), r.tokenKey(newHash)},
		now.UnixMilli(), id, expiresAt.UnixMilli(), r.keyTTL(expiresAt, now), newHash, r.userPrefix(),
	).Slice()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(res) == 0 {
		return nil, unavailable(fmt.Errorf("rotate: empty script reply"))
	}

	status, _ := res[0].(int64)
	switch status {
	case 0:
		return nil, ErrNotActive
	case 2:
		return nil, unavailable(errHashCollision)
	}
	if len(res) < 2 {
		return nil, unavailable(fmt.Errorf("rotate: missing user in script reply"))
	}
	userID, _ := res[1].(string)

	return &RefreshToken{
		ID:        id,
		UserID:    userID,
		TokenHash: newHash,
		ExpiresAt: time.UnixMilli(expiresAt.UnixMilli()),
		CreatedAt: time.UnixMilli(now.UnixMilli()),
	}, nil
}

func (r *Redis) Revoke(ctx context.Context, rawToken string) error {
	if err := revokeTokenLua.Run(ctx, r.redis, []string{r.tokenKey(HashToken(rawToken))}).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Redis) RevokeAll(ctx context.Context, userID string) (int, error) {
	return r.userTokens(ctx, userID, true)
}

func (r *Redis) CountActive(ctx context.Context, userID string) (int, error) {
	return r.userTokens(ctx, userID, false)
}

func (r *Redis) userTokens(ctx context.Context, userID string, revoke bool) (int, error) {
	mode := "0"
	if revoke {
		mode = "1"
	}
	n, err := userTokensLua.Run(ctx, r.redis, []string{r.userKey(userID)},
		r.now().UnixMilli(), r.tokenPrefix(), mode,
	).Int()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// CleanupExpired walks the token keyspace with SCAN and deletes each expired
// or revoked record with its own script call. On a cluster it scans every
// master.
func (r *Redis) CleanupExpired(ctx context.Context) (int, error) {
	cluster, ok := r.redis.(*redis.ClusterClient)
	if !ok {
		return r.cleanupNode(ctx, r.redis)
	}

	var (
		mu      sync.Mutex
		removed int
	)
	err := cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
		n, err := r.cleanupNode(ctx, node)
		mu.Lock()
		removed += n
		mu.Unlock()
		return err
	})
	return removed, err
}

func (r *Redis) cleanupNode(ctx context.Context, node redis.UniversalClient) (int, error) {
	now := r.now().UnixMilli()
	prefix := r.tokenPrefix()
	removed := 0

	iter := node.Scan(ctx, 0, prefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		n, err := cleanupTokenLua.Run(ctx, node, []string{key},
			now, r.userPrefix(), strings.TrimPrefix(key, prefix),
		).Int()
		if err != nil {
			return removed, unavailable(err)
		}
		removed += n
	}
	if err := iter.Err(); err != nil {
		return removed, unavailable(err)
	}
	return removed, nil
}

func decodeTokenHash(hash string, fields map[string]string) (*RefreshToken, error) {
	exp, err := strconv.ParseInt(fields["exp"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode exp: %w", err)
	}
	rec := &RefreshToken{
		ID:        fields["id"],
		UserID:    fields["uid"],
		TokenHash: hash,
		ExpiresAt: time.UnixMilli(exp),
		IsRevoked: fields["rev"] == "1",
	}
	if v, ok := fields["cat"]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			rec.CreatedAt = time.UnixMilli(ms)
		}
	}
	if v, ok := fields["lu"]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			lu := time.UnixMilli(ms)
			rec.LastUsedAt = &lu
		}
	}
	return rec, nil
}
