package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	ScopeChat = "chat"
	ScopeAuth = "auth"
)

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
	Limit     int
}

// RateLimiter counts requests per scope and key in fixed windows.
type RateLimiter struct {
	client *Client
	limits map[string]int
	window time.Duration
}

// NewRateLimiter creates a limiter allowing limits[scope] requests per window.
// A scope without a positive limit is never limited.
func NewRateLimiter(client *Client, limits map[string]int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{client: client, limits: limits, window: window}
}

var limitScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local current = redis.call('GET', key)
	if current == false then
		current = 0
	else
		current = tonumber(current)
	end

	local ttl = redis.call('TTL', key)
	if ttl < 0 then
		ttl = window
	end

	if current < limit then
		redis.call('INCR', key)
		if ttl == window then
			redis.call('EXPIRE', key, window)
		end
		return {1, limit - current - 1, ttl}
	else
		return {0, 0, ttl}
	end
`)

// Allow consumes one request of scope for key.
func (r *RateLimiter) Allow(ctx context.Context, scope, key string) (*RateLimitResult, error) {
	limit := r.limits[scope]
	if limit <= 0 {
		return &RateLimitResult{Allowed: true, Remaining: -1}, nil
	}
	raw := r.client.Raw()
	if raw == nil {
		return nil, errors.New("redis client not initialized")
	}

	result, err := limitScript.Run(ctx, raw, []string{fmt.Sprintf("ratelimit:%s:%s", key, scope)}, limit, int(r.window.Seconds())).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	values, ok := result.([]interface{})
	if !ok || len(values) < 3 {
		return nil, errors.New("unexpected rate limit result format")
	}
	allowed, _ := values[0].(int64)
	remaining, _ := values[1].(int64)
	resetIn, _ := values[2].(int64)

	return &RateLimitResult{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
		ResetIn:   time.Duration(resetIn) * time.Second,
		Limit:     limit,
	}, nil
}
