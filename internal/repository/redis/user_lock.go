package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"family-safety-score/internal/store"
)

const userLockPrefix = "score_lock:"

// releaseScript deletes the lock only if this holder still owns it.
const releaseScript = `
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`

// ErrLockHeld is returned when another instance holds the user's lock past
// the wait budget.
var ErrLockHeld = fmt.Errorf("user lock held elsewhere: %w", store.ErrVersionConflict)

// UserLock is a per-user mutex shared by every service instance. The TTL
// bounds how long a crashed holder can block others.
type UserLock struct {
	client Scripter
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
	logger *zap.Logger
}

func NewUserLock(client Scripter, ttl time.Duration, logger *zap.Logger) *UserLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &UserLock{
		client: client,
		ttl:    ttl,
		wait:   ttl,
		poll:   50 * time.Millisecond,
		logger: logger,
	}
}

var _ store.UserLocker = (*UserLock)(nil)

// Acquire blocks until the lock is taken, ctx ends, or the wait budget runs out.
func (l *UserLock) Acquire(ctx context.Context, userID string) (func(), error) {
	key := userLockPrefix + userID
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire user lock: %w: %v", store.ErrUnavailable, err)
		}
		if ok {
			return l.releaser(key, token), nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockHeld
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
}

func (l *UserLock) releaser(key, token string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if _, err := l.client.Eval(ctx, releaseScript, []string{key}, token); err != nil {
			l.logger.Warn("Failed to release user lock", zap.String("key", key), zap.Error(err))
		}
	}
}
