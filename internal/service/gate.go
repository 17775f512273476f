package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"family-safety-score/internal/serial"
	"family-safety-score/internal/store"
)

// userGate serializes writes for a user: a local lane first, then the
// cross-instance lock when one is configured.
type userGate struct {
	lanes  *serial.Dispatcher
	locker store.UserLocker
	logger *zap.Logger
}

func (g userGate) run(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	err := g.lanes.Do(ctx, userID, func(ctx context.Context) error {
		if g.locker == nil {
			return fn(ctx)
		}
		release, err := g.locker.Acquire(ctx, userID)
		switch {
		case err == nil:
			defer release()
		case errors.Is(err, store.ErrVersionConflict):
			return fmt.Errorf("%w: %v", ErrBusy, err)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		default:
			// lock backend down: the versioned save still rejects lost updates
			g.logger.Warn("User lock unavailable, continuing without it",
				zap.String("user_id", userID), zap.Error(err))
		}
		return fn(ctx)
	})
	if errors.Is(err, serial.ErrLaneFull) || errors.Is(err, serial.ErrClosed) {
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}
	return err
}
