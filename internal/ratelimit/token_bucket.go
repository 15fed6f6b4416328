// Package ratelimit gates job submissions with a Redis-backed token bucket,
// shared across API instances.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:intake:"

// Limiter keeps one bucket per account in a Redis hash, refilled lazily on
// access. Capacity bounds the burst, rate is tokens per second.
type Limiter struct {
	client   *redis.Client
	capacity int
	rate     float64
	ttl      time.Duration

	now func() time.Time
}

func NewLimiter(client *redis.Client, capacity int, ratePerSecond float64, ttl time.Duration) *Limiter {
	return &Limiter{
		client:   client,
		capacity: capacity,
		rate:     ratePerSecond,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Allow takes one token for the account. It reports whether the submission
// may proceed and roughly how many tokens remain.
func (l *Limiter) Allow(ctx context.Context, account string) (bool, float64, error) {
	nowMs := l.now().UnixMilli()
	res, err := bucketScript.Run(ctx, l.client, []string{keyPrefix + account},
		l.capacity, l.rate, nowMs, l.ttl.Milliseconds()).Result()
	if err != nil {
		return false, 0, fmt.Errorf("run bucket script: %w", err)
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 2 {
		return false, 0, fmt.Errorf("unexpected bucket reply %T", res)
	}
	flag, _ := arr[0].(int64)
	return flag == 1, toFloat(arr[1]), nil
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case int64:
		return float64(t)
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

var bucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2]) -- tokens per second
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'last_ms')
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil then tokens = capacity end
if last == nil then last = now end

local elapsed = math.max(0, now - last)
tokens = math.min(capacity, tokens + elapsed / 1000 * rate)

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call('HMSET', key, 'tokens', tokens, 'last_ms', now)
if ttl > 0 then redis.call('PEXPIRE', key, ttl) end
return {allowed, tokens}
`)
