// Package scoring turns threats and security factors into a clamped risk
// score, letter grade, trend and user-facing guidance.
package scoring

import "family-safety-score/internal/models"

const (
	BaseScore = 75
	MinScore  = 20
	MaxScore  = 100
)

// Policy holds the tunable weights of a scoring pass.
type Policy struct {
	BaseScore int
	MinScore  int
	MaxScore  int

	// AutoRemediationRate is the share of a fixed threat's impact credited back.
	AutoRemediationRate float64
	// DecayPerDay is the extra penalty per day a threat stays open.
	DecayPerDay map[models.Severity]float64
	// FactorBonusRate is credited per point a factor improved since the last pass.
	FactorBonusRate float64
	// PenalizeNewThreats subtracts the impact of threats first seen in this
	// pass a second time, on top of the open-threat penalty.
	PenalizeNewThreats bool
	// StabilityBand is the score delta below which the trend is stable.
	StabilityBand float64

	MaxRecommendations    int
	MaxPerSeverity        int
	FactorAdviceThreshold int
}

func DefaultPolicy() Policy {
	return Policy{
		BaseScore:           BaseScore,
		MinScore:            MinScore,
		MaxScore:            MaxScore,
		AutoRemediationRate: 0.5,
		DecayPerDay: map[models.Severity]float64{
			models.SeverityCritical: 0.5,
			models.SeverityHigh:     0.2,
			models.SeverityMedium:   0.1,
			models.SeverityLow:      0.05,
		},
		FactorBonusRate:       0.1,
		PenalizeNewThreats:    true,
		StabilityBand:         1,
		MaxRecommendations:    3,
		MaxPerSeverity:        2,
		FactorAdviceThreshold: 70,
	}
}
