package scylla

import (
	"context"

	"go.uber.org/zap"

	"family-safety-score/internal/bucketing"
	"family-safety-score/internal/models"
	"family-safety-score/internal/store"
)

type EngagementRepository struct {
	client  *ScyllaClient
	buckets *bucketing.BucketingManager
	logger  *zap.Logger
}

func NewEngagementRepository(client *ScyllaClient, buckets *bucketing.BucketingManager, logger *zap.Logger) *EngagementRepository {
	return &EngagementRepository{client: client, buckets: buckets, logger: logger}
}

var _ store.EngagementStore = (*EngagementRepository)(nil)

func (r *EngagementRepository) GetEngagementRecord(ctx context.Context, userID string) (*models.EngagementScoreRecord, error) {
	bucket := r.buckets.GetUserBucket(userID)
	rec := &models.EngagementScoreRecord{UserBucket: bucket}

	err := r.client.Query(ctx, r.client.Statements.GetEngagement, bucket, userID).Scan(
		&rec.UserID, &rec.Score, &rec.RecommendationsCompleted, &rec.SafeSettingsEnabled,
		&rec.ScreenTimeCompliance, &rec.EngagementLevel, &rec.WeeklyResetAt, &rec.UpdatedAt)
	if err != nil {
		return nil, translate("get engagement record", err)
	}
	return rec, nil
}

// SaveEngagementRecord overwrites the user's ledger. Callers serialize writes
// per user.
func (r *EngagementRepository) SaveEngagementRecord(ctx context.Context, rec *models.EngagementScoreRecord) error {
	if rec.UserID == "" {
		return &store.ValidationError{Field: "user_id", Reason: "empty"}
	}
	rec.UserBucket = r.buckets.GetUserBucket(rec.UserID)

	err := r.client.Query(ctx, r.client.Statements.UpsertEngagement,
		rec.UserBucket, rec.UserID, rec.Score, rec.RecommendationsCompleted, rec.SafeSettingsEnabled,
		rec.ScreenTimeCompliance, rec.EngagementLevel, rec.WeeklyResetAt, rec.UpdatedAt,
	).Exec()
	return translate("save engagement record", err)
}
