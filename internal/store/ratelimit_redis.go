package store

import (
	"context"
	"strconv"
	"time"

	"github.com/jaevor/go-nanoid"
	"github.com/redis/go-redis/v9"
	"github.com/serroba/bookmarks-go/internal/ratelimit"
)

// reserveScript prunes, counts and records in one round trip so concurrent
// callers across processes see a consistent window.
//
// KEYS[1] window key
// ARGV[1] now (unix microseconds)
// ARGV[2] cutoff (unix microseconds); entries at or before it are dropped
// ARGV[3] limit
// ARGV[4] unique member for this attempt
// ARGV[5] key expiry (milliseconds)
//
// Returns {allowed, count, oldest} with oldest = -1 when the window is empty.
var reserveScript = redis.NewScript(`
local key = KEYS[1]

redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])

local count = redis.call('ZCARD', key)
local oldest = -1
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if #first > 0 then
	oldest = tonumber(first[2])
end

if count >= tonumber(ARGV[3]) then
	return {0, count, oldest}
end

redis.call('ZADD', key, ARGV[1], ARGV[4])
redis.call('PEXPIRE', key, ARGV[5])

if oldest < 0 then
	oldest = tonumber(ARGV[1])
end

return {1, count + 1, oldest}
`)

const tokenLength = 12

// RateLimitRedisStore is a Redis sorted-set implementation of ratelimit.Store.
// Each allowed attempt is a member scored by its timestamp.
type RateLimitRedisStore struct {
	client *redis.Client
	prefix string
	token  func() string
}

// NewRateLimitRedisStore creates a new Redis-backed rate limit store.
func NewRateLimitRedisStore(client *redis.Client) *RateLimitRedisStore {
	token, _ := nanoid.Standard(tokenLength)

	return &RateLimitRedisStore{
		client: client,
		prefix: "ratelimit:",
		token:  token,
	}
}

func (s *RateLimitRedisStore) Reserve(
	ctx context.Context, key string, now time.Time, window time.Duration, limit int64,
) (ratelimit.Reservation, error) {
	nowMicros := now.UnixMicro()
	member := strconv.FormatInt(nowMicros, 10) + ":" + s.token()
	ttl := (window + time.Millisecond - 1).Milliseconds()

	res, err := reserveScript.Run(ctx, s.client, []string{s.prefix + key},
		nowMicros,
		nowMicros-window.Microseconds(),
		limit,
		member,
		ttl,
	).Int64Slice()
	if err != nil {
		return ratelimit.Reservation{}, err
	}

	r := ratelimit.Reservation{
		Allowed: res[0] == 1,
		Count:   res[1],
	}

	if res[2] >= 0 {
		r.Oldest = time.UnixMicro(res[2]).UTC()
	}

	return r, nil
}

var _ ratelimit.Store = (*RateLimitRedisStore)(nil)
