package models

import "time"

type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// RiskScoreRecord is the persisted scoring state, one live record per user.
type RiskScoreRecord struct {
	UserID     string           `json:"user_id" db:"user_id"`
	UserBucket int              `json:"-" db:"user_bucket"`
	Score      int              `json:"score" db:"score"`
	Grade      Grade            `json:"grade" db:"grade"`
	Trend      Trend            `json:"trend" db:"trend"`
	Factors    *SecurityFactors `json:"factors,omitempty"`
	Summary    string           `json:"summary" db:"summary"`
	LastUpdate time.Time        `json:"last_update" db:"last_update"`
	Version    int64            `json:"version" db:"version"`
}

// Remediation describes a threat the system fixed without user action.
type Remediation struct {
	ThreatID string  `json:"threat_id"`
	Note     string  `json:"note"`
	Bonus    float64 `json:"bonus"`
}

// ScoreResult is the output of one scoring pass.
type ScoreResult struct {
	Score            int             `json:"score"`
	PreviousScore    int             `json:"previous_score"`
	Grade            Grade           `json:"grade"`
	Trend            Trend           `json:"trend"`
	Factors          SecurityFactors `json:"factors"`
	Threats          []ThreatEvent   `json:"threats"`
	AutoRemediations []Remediation   `json:"auto_remediations"`
	Recommendations  []string        `json:"recommendations"`
	Summary          string          `json:"summary"`
	CalculatedAt     time.Time       `json:"calculated_at"`
	Fallback         bool            `json:"fallback,omitempty"`
}

// ScoreHistoryEntry is one row of the score history sink.
type ScoreHistoryEntry struct {
	UserID       string    `json:"user_id" ch:"user_id"`
	Score        int32     `json:"score" ch:"score"`
	Grade        string    `json:"grade" ch:"grade"`
	Trend        string    `json:"trend" ch:"trend"`
	ThreatCount  int32     `json:"threat_count" ch:"threat_count"`
	Remediations int32     `json:"remediations" ch:"remediations"`
	CalculatedAt time.Time `json:"calculated_at" ch:"calculated_at"`
}
