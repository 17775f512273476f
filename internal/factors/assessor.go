package factors

import (
	"context"
	"fmt"

	"family-safety-score/internal/models"
)

type Assessor struct {
	source SignalSource
}

func NewAssessor(source SignalSource) *Assessor {
	return &Assessor{source: source}
}

// Assess returns the household's factors, each clamped to [0,100].
func (a *Assessor) Assess(ctx context.Context, userID string, devices []models.Device) (models.SecurityFactors, error) {
	f, err := a.source.Factors(ctx, Signals{UserID: userID, Devices: devices})
	if err != nil {
		return models.SecurityFactors{}, fmt.Errorf("assess factors: %w", err)
	}
	return f.Clamped(), nil
}
