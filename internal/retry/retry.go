// Package retry wraps store calls in bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	goretry "github.com/sethvargo/go-retry"

	"family-safety-score/internal/config"
	"family-safety-score/internal/store"
)

// Policy bounds a retry loop. Zero MaxRetries means a single attempt.
type Policy struct {
	MaxRetries uint64
	Base       time.Duration
	Cap        time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, Base: time.Second, Cap: 10 * time.Second}
}

func FromConfig(cfg config.RetryConfig) Policy {
	p := Policy{MaxRetries: cfg.MaxRetries, Base: cfg.BaseDelay, Cap: cfg.MaxDelay}
	if p.Base <= 0 {
		p.Base = DefaultPolicy().Base
	}
	if p.Cap < p.Base {
		p.Cap = p.Base
	}
	return p
}

// Do runs fn until it succeeds, the attempts are exhausted, the context ends,
// or fn returns an error that retrying cannot fix. Rate limit errors wait the
// suggested duration, capped, instead of the exponential step.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var hint time.Duration

	base := goretry.WithMaxRetries(p.MaxRetries,
		goretry.WithCappedDuration(p.Cap, goretry.NewExponential(p.Base)))

	backoff := goretry.BackoffFunc(func() (time.Duration, bool) {
		next, stop := base.Next()
		if stop {
			return 0, true
		}
		if hint > 0 {
			next = min(hint, p.Cap)
			hint = 0
		}
		return next, false
	})

	return goretry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return err
		}
		if d, ok := store.RetryAfter(err); ok {
			hint = d
		}
		return goretry.RetryableError(err)
	})
}

// Value is Do for calls that return a result.
func Value[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Retryable reports whether another attempt could change the outcome.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrVersionConflict):
		return false
	case store.IsValidation(err):
		return false
	}
	return true
}
