// Package engagement keeps the per-user engagement point ledger: points for
// protective actions, capped at 100, regressing toward 50 every week.
package engagement

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"family-safety-score/internal/models"
)

const (
	BaseScore = 50
	MaxScore  = 100

	// ResetRetention is the share of the distance from BaseScore kept by a weekly reset.
	ResetRetention = 0.3

	DefaultResetInterval = 7 * 24 * time.Hour
)

var (
	ErrUnknownActivity = errors.New("unknown engagement activity type")
	ErrNegativePoints  = errors.New("points must not be negative")
)

type Ledger struct {
	resetInterval time.Duration
}

func NewLedger(resetInterval time.Duration) *Ledger {
	if resetInterval <= 0 {
		resetInterval = DefaultResetInterval
	}
	return &Ledger{resetInterval: resetInterval}
}

// New returns the starting record for a user.
func (l *Ledger) New(userID string, now time.Time) *models.EngagementScoreRecord {
	return &models.EngagementScoreRecord{
		UserID:        userID,
		Score:         BaseScore,
		WeeklyResetAt: now,
		UpdatedAt:     now,
	}
}

// DueForReset reports whether more than one interval passed since the last reset.
func (l *Ledger) DueForReset(rec *models.EngagementScoreRecord, now time.Time) bool {
	return now.Sub(rec.WeeklyResetAt) > l.resetInterval
}

// ApplyWeeklyReset regresses the score toward BaseScore when a reset is due
// and returns the zero-point activity that records it.
func (l *Ledger) ApplyWeeklyReset(rec *models.EngagementScoreRecord, now time.Time) (*models.ActivityRecord, bool) {
	if !l.DueForReset(rec, now) {
		return nil, false
	}

	before := rec.Score
	rec.Score = Decay(before)
	rec.WeeklyResetAt = now
	rec.UpdatedAt = now

	return &models.ActivityRecord{
		ID:          uuid.NewString(),
		UserID:      rec.UserID,
		Type:        models.ActivityWeeklyReset,
		Points:      0,
		Description: fmt.Sprintf("Weekly reset: engagement score %d -> %d", before, rec.Score),
		CreatedAt:   now,
	}, true
}

// Decay is one weekly regression step. It never crosses BaseScore.
func Decay(score int) int {
	return int(math.Round(BaseScore + ResetRetention*float64(score-BaseScore)))
}

// AddPoints credits an engagement activity, bumps its counter and caps the
// score at MaxScore. The returned activity is what should be logged.
func (l *Ledger) AddPoints(rec *models.EngagementScoreRecord, activityType models.ActivityType, points int, description string, now time.Time) (*models.ActivityRecord, error) {
	if !activityType.IsEngagement() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownActivity, activityType)
	}
	if points < 0 {
		return nil, ErrNegativePoints
	}

	switch activityType {
	case models.ActivityRecommendationCompleted:
		rec.RecommendationsCompleted++
	case models.ActivitySafeSettingEnabled:
		rec.SafeSettingsEnabled++
	case models.ActivityScreenTimeGoalMet:
		rec.ScreenTimeCompliance++
	case models.ActivityEngagementAction:
		rec.EngagementLevel++
	}

	rec.Score = min(MaxScore, rec.Score+points)
	rec.UpdatedAt = now

	return &models.ActivityRecord{
		ID:          uuid.NewString(),
		UserID:      rec.UserID,
		Type:        activityType,
		Points:      points,
		Description: description,
		CreatedAt:   now,
	}, nil
}
