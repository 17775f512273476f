package redis

import (
	"context"
	"time"

	"family-safety-score/internal/client"
)

// Scripter is the part of the Redis client the lock and the rate limiter use.
type Scripter interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

var _ Scripter = (*client.RedisClient)(nil)
