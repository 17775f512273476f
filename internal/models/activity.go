package models

import "time"

type ActivityType string

const (
	ActivityRecommendationCompleted ActivityType = "recommendation_completed"
	ActivitySafeSettingEnabled      ActivityType = "safe_setting_enabled"
	ActivityScreenTimeGoalMet       ActivityType = "screen_time_goal_met"
	ActivityEngagementAction        ActivityType = "engagement_action"

	ActivityWeeklyReset       ActivityType = "weekly_reset"
	ActivityThreatDetected    ActivityType = "threat_detected"
	ActivityThreatResolved    ActivityType = "threat_resolved"
	ActivityAutoRemediation   ActivityType = "auto_remediation"
	ActivityScoreRecalculated ActivityType = "score_recalculated"
)

// IsEngagement reports whether the type is one a user can earn points for.
func (t ActivityType) IsEngagement() bool {
	switch t {
	case ActivityRecommendationCompleted, ActivitySafeSettingEnabled,
		ActivityScreenTimeGoalMet, ActivityEngagementAction:
		return true
	}
	return false
}

// ActivityRecord is an immutable log entry.
type ActivityRecord struct {
	ID          string            `json:"id" db:"activity_id"`
	UserID      string            `json:"user_id" db:"user_id"`
	Type        ActivityType      `json:"type" db:"activity_type"`
	Points      int               `json:"points" db:"points"`
	Description string            `json:"description" db:"description"`
	Metadata    map[string]string `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
}
