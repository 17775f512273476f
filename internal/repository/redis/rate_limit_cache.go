package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"family-safety-score/internal/bucketing"
	"family-safety-score/internal/store"
)

const rateLimitPrefix = "rate_limit:"

// slidingWindowScript admits a request when fewer than limit requests were
// admitted in the trailing window.
const slidingWindowScript = `
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local member = ARGV[5]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local current_count = redis.call('ZCARD', key)

	if current_count < limit then
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, tonumber(ARGV[4]))
		return {1, current_count + 1}
	else
		return {0, current_count}
	end
`

// RateLimitCache limits per-user operations with a sliding window.
type RateLimitCache struct {
	client  Scripter
	buckets *bucketing.BucketingManager
	limit   int
	window  time.Duration
	logger  *zap.Logger
}

func NewRateLimitCache(client Scripter, buckets *bucketing.BucketingManager, limit int, window time.Duration, logger *zap.Logger) *RateLimitCache {
	return &RateLimitCache{
		client:  client,
		buckets: buckets,
		limit:   limit,
		window:  window,
		logger:  logger,
	}
}

var _ store.RateLimiter = (*RateLimitCache)(nil)

// Allow reports whether the user may run the operation now. A non-positive
// limit disables the check.
func (c *RateLimitCache) Allow(ctx context.Context, userID, operation string) (bool, error) {
	if c.limit <= 0 {
		return true, nil
	}
	allowed, count, err := c.SlidingWindow(ctx, c.key(userID, operation), c.limit, c.window)
	if err != nil {
		return false, err
	}
	if !allowed {
		c.logger.Info("Rate limit exceeded",
			zap.String("user_id", userID),
			zap.String("operation", operation),
			zap.Int("count", count),
			zap.Int("limit", c.limit))
	}
	return allowed, nil
}

func (c *RateLimitCache) key(userID, operation string) string {
	return fmt.Sprintf("%s%d:%s:%s", rateLimitPrefix, c.buckets.GetEventBucket(userID), userID, operation)
}

// SlidingWindow runs the window script for key and returns the decision and
// the number of requests counted in the window.
func (c *RateLimitCache) SlidingWindow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	now := time.Now().UnixMilli()
	windowStart := now - window.Milliseconds()
	member := strconv.FormatInt(now, 10) + ":" + uuid.NewString()

	result, err := c.client.Eval(ctx, slidingWindowScript, []string{key},
		now, windowStart, limit, window.Milliseconds(), member)
	if err != nil {
		return false, 0, fmt.Errorf("sliding window rate limit: %w: %v", store.ErrUnavailable, err)
	}

	return parseWindowReply(result)
}

// parseWindowReply decodes the script's {allowed, count} reply.
func parseWindowReply(result interface{}) (bool, int, error) {
	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) != 2 {
		return false, 0, fmt.Errorf("unexpected result format from sliding window script")
	}
	allowedFlag, ok1 := resultSlice[0].(int64)
	count, ok2 := resultSlice[1].(int64)
	if !ok1 || !ok2 {
		return false, 0, fmt.Errorf("unexpected result types from sliding window script")
	}

	return allowedFlag == 1, int(count), nil
}
