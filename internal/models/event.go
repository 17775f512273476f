package models

import "time"

type EventType string

const (
	EventRiskScoreUpdated       EventType = "risk_score_updated"
	EventEngagementScoreUpdated EventType = "engagement_score_updated"
	EventActivityLogged         EventType = "activity_logged"
)

// Event is the envelope broadcast to subscribers of a user.
type Event struct {
	Type    EventType   `json:"type"`
	UserID  string      `json:"user_id"`
	Payload interface{} `json:"payload"`
	At      time.Time   `json:"at"`
}
