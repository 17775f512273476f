package clickhouse

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"family-safety-score/internal/models"
	"family-safety-score/internal/store"
)

// Conn is the subset of client.ClickHouseClient the repository needs.
type Conn interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
	Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS score_history (
		user_id       String,
		score         Int32,
		grade         LowCardinality(String),
		trend         LowCardinality(String),
		threat_count  Int32,
		remediations  Int32,
		calculated_at DateTime64(3, 'UTC')
	) ENGINE = MergeTree
	ORDER BY (user_id, calculated_at)`,
	`CREATE TABLE IF NOT EXISTS activity_events (
		activity_id   String,
		user_id       String,
		activity_type LowCardinality(String),
		points        Int32,
		description   String,
		created_at    DateTime64(3, 'UTC')
	) ENGINE = MergeTree
	PARTITION BY toYYYYMM(created_at)
	ORDER BY (user_id, created_at)`,
}

const (
	insertScore = `INSERT INTO score_history
		(user_id, score, grade, trend, threat_count, remediations, calculated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	selectHistory = `SELECT user_id, score, grade, trend, threat_count, remediations, calculated_at
		FROM score_history
		WHERE user_id = ?
		ORDER BY calculated_at DESC
		LIMIT ?`
	insertActivity = `INSERT INTO activity_events
		(activity_id, user_id, activity_type, points, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
)

// HistoryRepository keeps the analytic copy of score passes and activities.
type HistoryRepository struct {
	conn   Conn
	logger *zap.Logger
}

func NewHistoryRepository(conn Conn, logger *zap.Logger) *HistoryRepository {
	return &HistoryRepository{conn: conn, logger: logger}
}

var (
	_ store.ScoreHistoryStore = (*HistoryRepository)(nil)
	_ store.ActivitySink      = (*HistoryRepository)(nil)
)

func (r *HistoryRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if err := r.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("clickhouse schema: %w", err)
		}
	}
	r.logger.Info("ClickHouse schema ready", zap.Int("tables", len(schema)))
	return nil
}

func (r *HistoryRepository) RecordScore(ctx context.Context, e models.ScoreHistoryEntry) error {
	err := r.conn.Exec(ctx, insertScore,
		e.UserID, e.Score, e.Grade, e.Trend, e.ThreatCount, e.Remediations, e.CalculatedAt.UTC())
	if err != nil {
		return fmt.Errorf("record score: %w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (r *HistoryRepository) ScoreHistory(ctx context.Context, userID string, limit int) ([]models.ScoreHistoryEntry, error) {
	if limit <= 0 {
		return nil, &store.ValidationError{Field: "limit", Reason: "must be positive"}
	}
	var rows []models.ScoreHistoryEntry
	if err := r.conn.Select(ctx, &rows, selectHistory, userID, uint64(limit)); err != nil {
		return nil, fmt.Errorf("score history: %w: %v", store.ErrUnavailable, err)
	}
	return rows, nil
}

func (r *HistoryRepository) IndexActivity(ctx context.Context, a *models.ActivityRecord) error {
	err := r.conn.Exec(ctx, insertActivity,
		a.ID, a.UserID, string(a.Type), int32(a.Points), a.Description, a.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("index activity: %w: %v", store.ErrUnavailable, err)
	}
	return nil
}
