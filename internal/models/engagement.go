package models

import "time"

// EngagementScoreRecord is the per-user point ledger.
type EngagementScoreRecord struct {
	UserID                   string    `json:"user_id" db:"user_id"`
	UserBucket               int       `json:"-" db:"user_bucket"`
	Score                    int       `json:"score" db:"score"`
	RecommendationsCompleted int       `json:"recommendations_completed" db:"recommendations_completed"`
	SafeSettingsEnabled      int       `json:"safe_settings_enabled" db:"safe_settings_enabled"`
	ScreenTimeCompliance     int       `json:"screen_time_compliance" db:"screen_time_compliance"`
	EngagementLevel          int       `json:"engagement_level" db:"engagement_level"`
	WeeklyResetAt            time.Time `json:"weekly_reset_at" db:"weekly_reset_at"`
	UpdatedAt                time.Time `json:"updated_at" db:"updated_at"`
}
