package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// slidingWindowScript records one hit in a sorted set and reports
// {allowed, remaining, resetAt}. Rejected hits are not recorded.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)
if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local resetAt = now + window
    if #oldest >= 2 then
        resetAt = tonumber(oldest[2]) + window
    end
    return {0, 0, resetAt}
end

redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window + 1000)

return {1, limit - count - 1, now + window}
`)

type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RateLimiter is a Redis sliding-window limiter shared by every server instance.
type RateLimiter struct {
	client redis.Scripter
	prefix string
}

func NewRateLimiter(client redis.Scripter) *RateLimiter {
	return &RateLimiter{client: client, prefix: "ratelimit"}
}

// Allow records a hit against key. Redis failures deny the hit.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) RateLimitResult {
	now := time.Now()
	fullKey := fmt.Sprintf("%s:%s", rl.prefix, key)
	member := fmt.Sprintf("%d", now.UnixNano())

	res, err := slidingWindowScript.Run(
		ctx,
		rl.client,
		[]string{fullKey},
		now.UnixMilli(),
		window.Milliseconds(),
		limit,
		member,
	).Int64Slice()
	if err != nil || len(res) != 3 {
		log.Warn().
			Err(err).
			Str("key", key).
			Msg("rate limit check failed, denying")
		return RateLimitResult{Allowed: false, ResetAt: now.Add(window)}
	}

	return RateLimitResult{
		Allowed:   res[0] == 1,
		Remaining: int(res[1]),
		ResetAt:   time.UnixMilli(res[2]),
	}
}
