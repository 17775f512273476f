package store

import (
	"context"

	"family-safety-score/internal/models"
)

// InventoryStore exposes the household device and alert inventory.
type InventoryStore interface {
	ListDevices(ctx context.Context, userID string) ([]models.Device, error)
	ListAlerts(ctx context.Context, userID string, limit int) ([]models.Alert, error)
	MarkDeviceRemediated(ctx context.Context, userID, deviceID string) error
}

// ScoreStore persists one live risk score record per user. SaveScoreRecord
// succeeds only when record.Version matches the stored version; the saved
// record carries the incremented version.
type ScoreStore interface {
	GetScoreRecord(ctx context.Context, userID string) (*models.RiskScoreRecord, error)
	SaveScoreRecord(ctx context.Context, record *models.RiskScoreRecord) (*models.RiskScoreRecord, error)
}

type EngagementStore interface {
	GetEngagementRecord(ctx context.Context, userID string) (*models.EngagementScoreRecord, error)
	SaveEngagementRecord(ctx context.Context, record *models.EngagementScoreRecord) error
}

// ActivityStore is the append-only activity log.
type ActivityStore interface {
	AppendActivity(ctx context.Context, activity *models.ActivityRecord) error
	ListActivities(ctx context.Context, userID string, limit int) ([]models.ActivityRecord, error)
}

// ActivitySink receives a copy of every appended activity.
type ActivitySink interface {
	IndexActivity(ctx context.Context, activity *models.ActivityRecord) error
}

type ActivitySearcher interface {
	SearchActivities(ctx context.Context, userID, query string, limit int) ([]models.ActivityRecord, error)
}

type ScoreHistoryStore interface {
	RecordScore(ctx context.Context, entry models.ScoreHistoryEntry) error
	ScoreHistory(ctx context.Context, userID string, limit int) ([]models.ScoreHistoryEntry, error)
}

// Broadcaster delivers best-effort notifications to a user's subscribers.
type Broadcaster interface {
	Broadcast(ctx context.Context, userID string, eventType models.EventType, payload interface{})
}

// UserLocker serializes scoring writes for a user across service instances.
type UserLocker interface {
	Acquire(ctx context.Context, userID string) (release func(), err error)
}

// RateLimiter admits or rejects a per-user operation.
type RateLimiter interface {
	Allow(ctx context.Context, userID, operation string) (bool, error)
}
