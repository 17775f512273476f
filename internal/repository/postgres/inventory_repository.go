package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"family-safety-score/internal/models"
	"family-safety-score/internal/store"
)

// InventoryRepository serves the household device and alert inventory.
type InventoryRepository struct {
	db  *DB
	now func() time.Time
}

func NewInventoryRepository(db *DB) *InventoryRepository {
	return &InventoryRepository{db: db, now: time.Now}
}

var _ store.InventoryStore = (*InventoryRepository)(nil)

func (r *InventoryRepository) ListDevices(ctx context.Context, userID string) ([]models.Device, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, user_id, name, device_type, status, updated_at
		FROM devices
		WHERE user_id = $1
		ORDER BY name, id
	`, userID)
	if err != nil {
		return nil, translate("list devices", err)
	}
	devices, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.Device])
	if err != nil {
		return nil, translate("list devices", err)
	}
	return devices, nil
}

func (r *InventoryRepository) ListAlerts(ctx context.Context, userID string, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		return nil, &store.ValidationError{Field: "limit", Reason: "must be positive"}
	}
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, user_id, COALESCE(device_id, '') AS device_id, title, severity,
			category, status, description, created_at, updated_at
		FROM alerts
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, translate("list alerts", err)
	}
	alerts, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.Alert])
	if err != nil {
		return nil, translate("list alerts", err)
	}
	return alerts, nil
}

// MarkDeviceRemediated sets the device secure and closes its open alerts as
// resolved automatically, in one transaction.
func (r *InventoryRepository) MarkDeviceRemediated(ctx context.Context, userID, deviceID string) error {
	// millisecond precision, matching the score record's LastUpdate
	at := r.now().UTC().Truncate(time.Millisecond)
	err := pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE devices SET status = $3, updated_at = $4
			WHERE user_id = $1 AND id = $2
		`, userID, deviceID, models.DeviceSecure, at)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("device %s: %w", deviceID, store.ErrNotFound)
		}
		_, err = tx.Exec(ctx, `
			UPDATE alerts SET status = $3, updated_at = $4
			WHERE user_id = $1 AND device_id = $2 AND status = $5
		`, userID, deviceID, models.AlertAutoResolved, at, models.AlertOpen)
		return err
	})
	return translate("mark device remediated", err)
}
