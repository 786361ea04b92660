package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// One hash per key holds the window and the block state so the script can
// read and write both atomically.
var windowScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local max_requests = tonumber(ARGV[2])
	local window_ms = tonumber(ARGV[3])
	local base_ms = tonumber(ARGV[4])
	local cap_ms = tonumber(ARGV[5])
	local inactivity_ms = tonumber(ARGV[6])
	local ttl_ms = tonumber(ARGV[7])

	local s = redis.call('HMGET', key, 'count', 'window_start_ms', 'block_count', 'blocked_until_ms', 'last_block_ms')
	local count = tonumber(s[1]) or 0
	local window_start = tonumber(s[2]) or now_ms
	local block_count = tonumber(s[3]) or 0
	local blocked_until = tonumber(s[4]) or 0
	local last_block = tonumber(s[5]) or 0

	if now_ms < blocked_until then
		return { 0, 0, blocked_until, blocked_until - now_ms }
	end

	if now_ms - window_start >= window_ms then
		count = 0
		window_start = now_ms
	end
	count = count + 1
	if count <= max_requests then
		redis.call('HSET', key, 'count', count, 'window_start_ms', window_start)
		redis.call('PEXPIRE', key, ttl_ms)
		return { 1, max_requests - count, window_start + window_ms, 0 }
	end

	if last_block == 0 or now_ms - last_block > inactivity_ms then
		block_count = 0
	end
	block_count = block_count + 1
	local lockout = base_ms
	for i = 2, block_count do
		if lockout >= cap_ms then break end
		lockout = lockout * 2
	end
	if lockout > cap_ms then lockout = cap_ms end
	blocked_until = now_ms + lockout

	redis.call('HDEL', key, 'count', 'window_start_ms')
	redis.call('HSET', key, 'block_count', block_count, 'blocked_until_ms', blocked_until, 'last_block_ms', now_ms)
	redis.call('PEXPIRE', key, ttl_ms)
	return { 0, 0, blocked_until, lockout }
`)

// RedisLimiter enforces the same policy as MemoryLimiter with its state in
// Redis, so every replica sees the same counters.
type RedisLimiter struct {
	rdb    *redis.Client
	cfg    Config
	prefix string
	now    func() time.Time
}

// NewRedisLimiter returns a limiter storing keys under prefix.
func NewRedisLimiter(rdb *redis.Client, cfg Config, prefix string, now func() time.Time) *RedisLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	if now == nil {
		now = time.Now
	}
	return &RedisLimiter{rdb: rdb, cfg: cfg.withDefaults(), prefix: prefix, now: now}
}

// Check implements Limiter.  Redis errors are returned; callers decide
// whether to fail open.
func (r *RedisLimiter) Check(ctx context.Context, endpoint, clientID string, cfg Config) (Result, error) {
	if cfg.IsZero() {
		cfg = r.cfg
	} else {
		cfg = cfg.withDefaults()
	}
	ttl := cfg.Window
	if keep := cfg.Inactivity + cfg.MaxBackoff; keep > ttl {
		ttl = keep
	}
	now := r.now()
	args := []interface{}{
		now.UnixMilli(),
		cfg.MaxRequests,
		cfg.Window.Milliseconds(),
		cfg.BaseBackoff.Milliseconds(),
		cfg.MaxBackoff.Milliseconds(),
		cfg.Inactivity.Milliseconds(),
		ttl.Milliseconds(),
	}
	key := r.prefix + ":" + Key(endpoint, clientID)
	vals, err := windowScript.Run(ctx, r.rdb, []string{key}, args...).Result()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit script: %w", err)
	}
	arr, ok := vals.([]interface{})
	if !ok || len(arr) != 4 {
		return Result{}, fmt.Errorf("ratelimit script: unexpected result %#v", vals)
	}
	res := Result{
		Allowed:   asInt64(arr[0]) == 1,
		Limit:     cfg.MaxRequests,
		Remaining: int(asInt64(arr[1])),
		ResetAt:   time.UnixMilli(asInt64(arr[2])),
	}
	if !res.Allowed {
		res.RetryAfterSeconds = ceilSeconds(time.Duration(asInt64(arr[3])) * time.Millisecond)
	}
	return res, nil
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
