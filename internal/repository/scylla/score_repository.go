package scylla

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"family-safety-score/internal/bucketing"
	"family-safety-score/internal/models"
	"family-safety-score/internal/store"
)

// ScoreRepository stores one live risk score record per user. Writes use
// lightweight transactions on the version column.
type ScoreRepository struct {
	client  *ScyllaClient
	buckets *bucketing.BucketingManager
	logger  *zap.Logger
}

func NewScoreRepository(client *ScyllaClient, buckets *bucketing.BucketingManager, logger *zap.Logger) *ScoreRepository {
	return &ScoreRepository{client: client, buckets: buckets, logger: logger}
}

var _ store.ScoreStore = (*ScoreRepository)(nil)

func (r *ScoreRepository) GetScoreRecord(ctx context.Context, userID string) (*models.RiskScoreRecord, error) {
	bucket := r.buckets.GetUserBucket(userID)
	rec := &models.RiskScoreRecord{UserBucket: bucket}
	var (
		grade, trend string
		factors      map[string]int
	)

	err := r.client.Query(ctx, r.client.Statements.GetScore, bucket, userID).Scan(
		&rec.UserID, &rec.Score, &grade, &trend, &factors, &rec.Summary, &rec.LastUpdate, &rec.Version)
	if err != nil {
		return nil, translate("get score record", err)
	}

	rec.Grade = models.Grade(grade)
	rec.Trend = models.Trend(trend)
	rec.Factors = factorsFromMap(factors)
	return rec, nil
}

// SaveScoreRecord writes record if its Version still matches the stored one
// (0 meaning no record yet) and returns the saved copy with the next version.
func (r *ScoreRepository) SaveScoreRecord(ctx context.Context, record *models.RiskScoreRecord) (*models.RiskScoreRecord, error) {
	if record.UserID == "" {
		return nil, &store.ValidationError{Field: "user_id", Reason: "empty"}
	}

	saved := *record
	saved.UserBucket = r.buckets.GetUserBucket(record.UserID)
	saved.Version = record.Version + 1
	saved.LastUpdate = record.LastUpdate.UTC().Truncate(time.Millisecond)
	factors := factorsToMap(record.Factors)

	var (
		applied bool
		err     error
	)
	existing := map[string]interface{}{}
	if record.Version == 0 {
		applied, err = r.client.Query(ctx, r.client.Statements.InsertScore,
			saved.UserBucket, saved.UserID, saved.Score, string(saved.Grade), string(saved.Trend),
			factors, saved.Summary, saved.LastUpdate, saved.Version,
		).MapScanCAS(existing)
	} else {
		applied, err = r.client.Query(ctx, r.client.Statements.UpdateScore,
			saved.Score, string(saved.Grade), string(saved.Trend), factors, saved.Summary,
			saved.LastUpdate, saved.Version, saved.UserBucket, saved.UserID, record.Version,
		).MapScanCAS(existing)
	}
	if err != nil {
		return nil, translate("save score record", err)
	}
	if !applied {
		r.logger.Info("Score record version conflict",
			zap.String("user_id", record.UserID),
			zap.Int64("expected_version", record.Version),
			zap.Any("stored_version", existing["version"]))
		return nil, fmt.Errorf("save score record for %s: %w", record.UserID, store.ErrVersionConflict)
	}

	return &saved, nil
}

func factorsToMap(f *models.SecurityFactors) map[string]int {
	if f == nil {
		return nil
	}
	out := make(map[string]int, len(models.FactorNames))
	for _, name := range models.FactorNames {
		out[string(name)] = f.Get(name)
	}
	return out
}

func factorsFromMap(m map[string]int) *models.SecurityFactors {
	if len(m) == 0 {
		return nil
	}
	f := &models.SecurityFactors{}
	for _, name := range models.FactorNames {
		f.Set(name, m[string(name)])
	}
	return f
}
