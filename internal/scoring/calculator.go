package scoring

import (
	"fmt"
	"math"
	"time"

	"family-safety-score/internal/models"
)

const day = 24 * time.Hour

// Calculator applies a Policy. It holds no state and performs no I/O.
type Calculator struct {
	policy Policy
}

func NewCalculator(policy Policy) *Calculator {
	return &Calculator{policy: policy}
}

func (c *Calculator) Policy() Policy {
	return c.policy
}

// Calculate produces the next score from the prior record (nil on first run),
// the current threats and the current factors.
func (c *Calculator) Calculate(prior *models.RiskScoreRecord, threats []models.ThreatEvent, factors models.SecurityFactors, now time.Time) models.ScoreResult {
	p := c.policy
	factors = factors.Clamped()

	current := p.BaseScore
	if prior != nil {
		current = prior.Score
	}

	var (
		adjustment   float64
		remediations []models.Remediation
		open         []models.ThreatEvent
	)

	for _, t := range threats {
		switch {
		case t.AutoRemediated:
			if !c.creditable(prior, t) {
				continue
			}
			bonus := p.AutoRemediationRate * float64(t.Impact)
			adjustment += bonus
			remediations = append(remediations, models.Remediation{
				ThreatID: t.ID,
				Note:     "Automatically resolved: " + titleOf(t),
				Bonus:    bonus,
			})
		case !t.Resolved():
			open = append(open, t)
			adjustment -= c.openPenalty(t, now)
			if p.PenalizeNewThreats && isNew(prior, t) {
				adjustment -= float64(t.Impact)
			}
		}
	}

	if prior != nil && prior.Factors != nil {
		adjustment += p.FactorBonusRate * factorGain(*prior.Factors, factors)
	}

	score := clamp(int(math.Round(float64(current)+adjustment)), p.MinScore, p.MaxScore)

	return models.ScoreResult{
		Score:            score,
		PreviousScore:    current,
		Grade:            GradeFor(score),
		Trend:            TrendFor(current, score, p.StabilityBand),
		Factors:          factors,
		Threats:          threats,
		AutoRemediations: remediations,
		Recommendations:  c.recommend(open, factors),
		Summary:          summarize(current, score, len(remediations), open),
		CalculatedAt:     now,
	}
}

// openPenalty is the impact plus a small per-day decay while the threat is open.
func (c *Calculator) openPenalty(t models.ThreatEvent, now time.Time) float64 {
	daysOpen := 0.0
	if now.After(t.DetectedAt) {
		daysOpen = math.Floor(float64(now.Sub(t.DetectedAt)) / float64(day))
	}
	return float64(t.Impact) + daysOpen*c.policy.DecayPerDay[t.Severity]
}

// creditable limits the remediation bonus to fixes the user has not been
// credited for yet: still-open ones, or ones resolved after the last pass.
func (c *Calculator) creditable(prior *models.RiskScoreRecord, t models.ThreatEvent) bool {
	if prior == nil || t.ResolvedAt == nil {
		return true
	}
	return laterMillis(*t.ResolvedAt, prior.LastUpdate)
}

func isNew(prior *models.RiskScoreRecord, t models.ThreatEvent) bool {
	return prior == nil || laterMillis(t.DetectedAt, prior.LastUpdate)
}

// laterMillis compares at millisecond precision, the resolution the score
// store keeps for LastUpdate.
func laterMillis(a, b time.Time) bool {
	return a.Truncate(time.Millisecond).After(b.Truncate(time.Millisecond))
}

// factorGain sums the positive per-factor improvements.
func factorGain(before, after models.SecurityFactors) float64 {
	var gain float64
	for _, name := range models.FactorNames {
		if d := after.Get(name) - before.Get(name); d > 0 {
			gain += float64(d)
		}
	}
	return gain
}

func titleOf(t models.ThreatEvent) string {
	switch {
	case t.Title != "":
		return t.Title
	case t.Kind != "" && t.Source != "":
		return fmt.Sprintf("%s on %s", t.Kind, t.Source)
	case t.Kind != "":
		return string(t.Kind)
	default:
		return t.ID
	}
}
