package scylla

import (
	"context"

	"go.uber.org/zap"

	"family-safety-score/internal/bucketing"
	"family-safety-score/internal/models"
	"family-safety-score/internal/store"
)

// ActivityRepository is the authoritative append-only activity log, newest
// first per user.
type ActivityRepository struct {
	client  *ScyllaClient
	buckets *bucketing.BucketingManager
	logger  *zap.Logger
}

func NewActivityRepository(client *ScyllaClient, buckets *bucketing.BucketingManager, logger *zap.Logger) *ActivityRepository {
	return &ActivityRepository{client: client, buckets: buckets, logger: logger}
}

var _ store.ActivityStore = (*ActivityRepository)(nil)

func (r *ActivityRepository) AppendActivity(ctx context.Context, a *models.ActivityRecord) error {
	if a.UserID == "" || a.ID == "" {
		return &store.ValidationError{Field: "activity", Reason: "user_id and id are required"}
	}

	err := r.client.Query(ctx, r.client.Statements.InsertActivity,
		r.buckets.GetUserBucket(a.UserID), a.UserID, a.CreatedAt, a.ID,
		string(a.Type), a.Points, a.Description, a.Metadata,
	).Exec()
	return translate("append activity", err)
}

func (r *ActivityRepository) ListActivities(ctx context.Context, userID string, limit int) ([]models.ActivityRecord, error) {
	if limit <= 0 {
		return nil, &store.ValidationError{Field: "limit", Reason: "must be positive"}
	}

	iter := r.client.Query(ctx, r.client.Statements.ListActivities,
		r.buckets.GetUserBucket(userID), userID, limit).Iter()

	var (
		out []models.ActivityRecord
		a   models.ActivityRecord
		typ string
	)
	for iter.Scan(&a.ID, &a.UserID, &typ, &a.Points, &a.Description, &a.Metadata, &a.CreatedAt) {
		a.Type = models.ActivityType(typ)
		out = append(out, a)
		a = models.ActivityRecord{}
	}
	if err := iter.Close(); err != nil {
		return nil, translate("list activities", err)
	}
	return out, nil
}
