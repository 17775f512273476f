package threat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"family-safety-score/internal/models"
	"family-safety-score/internal/retry"
	"family-safety-score/internal/store"
)

// ActivityAppender records remediation activities.
type ActivityAppender interface {
	AppendActivity(ctx context.Context, activity *models.ActivityRecord) error
}

// Remediator applies automatic fixes to remediable threats.
type Remediator struct {
	inventory  store.InventoryStore
	activities ActivityAppender
	retry      retry.Policy
	logger     *zap.Logger
	now        func() time.Time
}

func NewRemediator(inventory store.InventoryStore, activities ActivityAppender, policy retry.Policy, logger *zap.Logger) *Remediator {
	return &Remediator{
		inventory:  inventory,
		activities: activities,
		retry:      policy,
		logger:     logger,
		now:        time.Now,
	}
}

// Remediate marks the threat's device remediated in the inventory, resolves
// the threat as auto-remediated and logs the fix. Threats that are not
// eligible are left untouched and reported as not applied.
func (r *Remediator) Remediate(ctx context.Context, userID string, t *models.ThreatEvent) (bool, error) {
	if !t.Remediable || t.AutoRemediated || t.Resolved() || t.DeviceID == "" {
		return false, nil
	}

	err := r.retry.Do(ctx, func(ctx context.Context) error {
		return r.inventory.MarkDeviceRemediated(ctx, userID, t.DeviceID)
	})
	if err != nil {
		return false, fmt.Errorf("remediate device %s: %w", t.DeviceID, err)
	}

	now := r.now()
	t.AutoRemediated = true
	t.Resolve(now)

	activity := &models.ActivityRecord{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        models.ActivityAutoRemediation,
		Description: fmt.Sprintf("Automatically applied security updates to %s", t.Title),
		Metadata: map[string]string{
			"threat_id": t.ID,
			"device_id": t.DeviceID,
		},
		CreatedAt: now,
	}
	if err := r.activities.AppendActivity(ctx, activity); err != nil {
		r.logger.Warn("Failed to log remediation activity",
			zap.String("user_id", userID),
			zap.String("threat_id", t.ID),
			zap.Error(err))
	}

	r.logger.Info("Threat remediated automatically",
		zap.String("user_id", userID),
		zap.String("threat_id", t.ID),
		zap.String("device_id", t.DeviceID))
	return true, nil
}

// RemediateAll remediates every eligible threat in place and returns how many
// were fixed. A failed fix leaves that threat open and is logged.
func (r *Remediator) RemediateAll(ctx context.Context, userID string, threats []models.ThreatEvent) int {
	fixed := 0
	for i := range threats {
		ok, err := r.Remediate(ctx, userID, &threats[i])
		if err != nil {
			r.logger.Warn("Automatic remediation failed",
				zap.String("user_id", userID),
				zap.String("threat_id", threats[i].ID),
				zap.Error(err))
			continue
		}
		if ok {
			fixed++
		}
	}
	return fixed
}
