package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"family-safety-score/internal/models"
	"family-safety-score/internal/retry"
	"family-safety-score/internal/store"
)

// ActivityLog appends to the authoritative store and mirrors every entry to
// the analytic sinks. Sink and broadcast failures are only logged.
type ActivityLog struct {
	store       store.ActivityStore
	sinks       []store.ActivitySink
	broadcaster store.Broadcaster
	retry       retry.Policy
	logger      *zap.Logger
}

func NewActivityLog(activities store.ActivityStore, broadcaster store.Broadcaster, policy retry.Policy, logger *zap.Logger, sinks ...store.ActivitySink) *ActivityLog {
	return &ActivityLog{
		store:       activities,
		sinks:       sinks,
		broadcaster: broadcaster,
		retry:       policy,
		logger:      logger,
	}
}

func (l *ActivityLog) AppendActivity(ctx context.Context, a *models.ActivityRecord) error {
	err := l.retry.Do(ctx, func(ctx context.Context) error {
		return l.store.AppendActivity(ctx, a)
	})
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}

	for _, sink := range l.sinks {
		if err := sink.IndexActivity(ctx, a); err != nil {
			l.logger.Warn("Activity sink failed",
				zap.String("user_id", a.UserID),
				zap.String("activity_id", a.ID),
				zap.String("sink", fmt.Sprintf("%T", sink)),
				zap.Error(err))
		}
	}
	if l.broadcaster != nil {
		l.broadcaster.Broadcast(ctx, a.UserID, models.EventActivityLogged, a)
	}
	return nil
}

func (l *ActivityLog) List(ctx context.Context, userID string, limit int) ([]models.ActivityRecord, error) {
	return retry.Value(ctx, l.retry, func(ctx context.Context) ([]models.ActivityRecord, error) {
		return l.store.ListActivities(ctx, userID, limit)
	})
}
