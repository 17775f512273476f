package scoring

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"family-safety-score/internal/models"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func steadyFactors(v int) models.SecurityFactors {
	return models.SecurityFactors{
		PasswordSecurity: v,
		DeviceSecurity:   v,
		NetworkSecurity:  v,
		AppSecurity:      v,
		FamilySafety:     v,
	}
}

func priorRecord(score int, lastUpdate time.Time, factors models.SecurityFactors) *models.RiskScoreRecord {
	return &models.RiskScoreRecord{
		UserID:     "user-1",
		Score:      score,
		Grade:      GradeFor(score),
		Trend:      models.TrendStable,
		Factors:    &factors,
		LastUpdate: lastUpdate,
	}
}

func openThreat(id string, sev models.Severity, impact int, detected time.Time) models.ThreatEvent {
	return models.ThreatEvent{
		ID:         id,
		Kind:       models.ThreatVulnerability,
		Severity:   sev,
		Title:      "Issue " + id,
		DetectedAt: detected,
		Impact:     impact,
		Source:     "device-" + id,
	}
}

func TestCalculate_CriticalThreatOpenForTwoDays(t *testing.T) {
	factors := steadyFactors(80)
	threat := openThreat("c1", models.SeverityCritical, 15, now.Add(-48*time.Hour))

	t.Run("seen in an earlier pass", func(t *testing.T) {
		calc := NewCalculator(DefaultPolicy())
		res := calc.Calculate(priorRecord(75, now.Add(-time.Hour), factors), []models.ThreatEvent{threat}, factors, now)

		assert.Equal(t, 59, res.Score)
		assert.Equal(t, models.GradeF, res.Grade)
		assert.Equal(t, models.TrendDown, res.Trend)
		assert.Equal(t, "Your security score dropped by 16 points. 1 critical issue needs your attention.", res.Summary)
		assert.Equal(t, []string{"Fix this critical issue now: Issue c1"}, res.Recommendations)
	})

	t.Run("first seen in this pass", func(t *testing.T) {
		calc := NewCalculator(DefaultPolicy())
		res := calc.Calculate(priorRecord(75, now.Add(-72*time.Hour), factors), []models.ThreatEvent{threat}, factors, now)

		assert.Equal(t, 44, res.Score)
	})

	t.Run("first seen without the one-time hit", func(t *testing.T) {
		policy := DefaultPolicy()
		policy.PenalizeNewThreats = false
		res := NewCalculator(policy).Calculate(priorRecord(75, now.Add(-72*time.Hour), factors), []models.ThreatEvent{threat}, factors, now)

		assert.Equal(t, 59, res.Score)
	})
}

func TestCalculate_AutoRemediatedThreatRaisesScore(t *testing.T) {
	factors := steadyFactors(85)
	threat := openThreat("h1", models.SeverityHigh, 8, now.Add(-time.Hour))
	threat.AutoRemediated = true

	res := NewCalculator(DefaultPolicy()).Calculate(priorRecord(80, now.Add(-2*time.Hour), factors), []models.ThreatEvent{threat}, factors, now)

	assert.Equal(t, 84, res.Score)
	assert.Equal(t, models.TrendUp, res.Trend)
	assert.Equal(t, models.GradeB, res.Grade)
	require.Len(t, res.AutoRemediations, 1)
	assert.Equal(t, "h1", res.AutoRemediations[0].ThreatID)
	assert.InDelta(t, 4.0, res.AutoRemediations[0].Bonus, 1e-9)
	assert.Equal(t, "We handled 1 issue for you automatically. No action needed.", res.Summary)
}

func TestCalculate_RemediationCreditedOnce(t *testing.T) {
	factors := steadyFactors(85)
	threat := openThreat("h1", models.SeverityHigh, 8, now.Add(-48*time.Hour))
	threat.AutoRemediated = true
	threat.Resolve(now.Add(-30 * time.Hour))

	res := NewCalculator(DefaultPolicy()).Calculate(priorRecord(80, now.Add(-24*time.Hour), factors), []models.ThreatEvent{threat}, factors, now)

	assert.Equal(t, 80, res.Score)
	assert.Empty(t, res.AutoRemediations)
	assert.Equal(t, models.TrendStable, res.Trend)
}

func TestCalculate_RemediationInSameMillisecondAsLastPass(t *testing.T) {
	factors := steadyFactors(85)
	// the score store keeps LastUpdate at millisecond precision
	lastPass := now.Add(250 * time.Microsecond).Truncate(time.Millisecond)

	t.Run("same millisecond is already credited", func(t *testing.T) {
		threat := openThreat("h1", models.SeverityHigh, 8, now.Add(-48*time.Hour))
		threat.AutoRemediated = true
		threat.Resolve(now.Add(700 * time.Microsecond))

		res := NewCalculator(DefaultPolicy()).Calculate(priorRecord(80, lastPass, factors), []models.ThreatEvent{threat}, factors, now.Add(time.Hour))

		assert.Equal(t, 80, res.Score)
		assert.Empty(t, res.AutoRemediations)
	})

	t.Run("next millisecond is credited", func(t *testing.T) {
		threat := openThreat("h1", models.SeverityHigh, 8, now.Add(-48*time.Hour))
		threat.AutoRemediated = true
		threat.Resolve(now.Add(2 * time.Millisecond))

		res := NewCalculator(DefaultPolicy()).Calculate(priorRecord(80, lastPass, factors), []models.ThreatEvent{threat}, factors, now.Add(time.Hour))

		assert.Equal(t, 84, res.Score)
		assert.Len(t, res.AutoRemediations, 1)
	})
}

func TestTitleOfFallsBack(t *testing.T) {
	assert.Equal(t, "Leaked password", titleOf(models.ThreatEvent{ID: "t1", Title: "Leaked password", Kind: models.ThreatBreach}))
	assert.Equal(t, "breach on acme.example", titleOf(models.ThreatEvent{ID: "t1", Kind: models.ThreatBreach, Source: "acme.example"}))
	assert.Equal(t, "breach", titleOf(models.ThreatEvent{ID: "t1", Kind: models.ThreatBreach}))
	assert.Equal(t, "t1", titleOf(models.ThreatEvent{ID: "t1"}))
}

func TestCalculate_UntitledThreatRecommendation(t *testing.T) {
	threat := models.ThreatEvent{ID: "t-9", Severity: models.SeverityCritical, Impact: 15, DetectedAt: now}

	res := NewCalculator(DefaultPolicy()).Calculate(nil, []models.ThreatEvent{threat}, steadyFactors(90), now)

	assert.Equal(t, []string{"Fix this critical issue now: t-9"}, res.Recommendations)
}

func TestCalculate_FirstRunWithoutThreats(t *testing.T) {
	res := NewCalculator(DefaultPolicy()).Calculate(nil, nil, steadyFactors(90), now)

	assert.Equal(t, BaseScore, res.Score)
	assert.Equal(t, models.GradeC, res.Grade)
	assert.Equal(t, models.TrendStable, res.Trend)
	assert.Equal(t, "No threats detected. Your family is protected and no action is needed.", res.Summary)
	assert.Empty(t, res.Recommendations)
}

func TestCalculate_NoActivityIsNotPenalized(t *testing.T) {
	for _, score := range []int{20, 45, 75, 82, 100} {
		t.Run(fmt.Sprintf("score %d", score), func(t *testing.T) {
			factors := steadyFactors(60)
			prior := priorRecord(score, now.Add(-30*24*time.Hour), factors)

			res := NewCalculator(DefaultPolicy()).Calculate(prior, nil, factors, now)

			assert.Equal(t, score, res.Score)
			assert.Equal(t, models.TrendStable, res.Trend)
		})
	}
}

func TestCalculate_ResolvedThreatsAreIgnored(t *testing.T) {
	factors := steadyFactors(80)
	threat := openThreat("m1", models.SeverityMedium, 4, now.Add(-5*time.Hour))
	threat.Resolve(now.Add(-time.Hour))

	res := NewCalculator(DefaultPolicy()).Calculate(priorRecord(70, now.Add(-6*time.Hour), factors), []models.ThreatEvent{threat}, factors, now)

	assert.Equal(t, 70, res.Score)
	assert.Empty(t, res.Recommendations)
}

func TestCalculate_FactorImprovementBonus(t *testing.T) {
	before := steadyFactors(50)
	after := steadyFactors(60)
	after.AppSecurity = 40 // drops are not penalized
	threat := openThreat("l1", models.SeverityLow, 2, now.Add(-2*time.Hour))

	res := NewCalculator(DefaultPolicy()).Calculate(priorRecord(70, now.Add(-time.Hour), before), []models.ThreatEvent{threat}, after, now)

	// -2 for the open low threat, +0.1 * (4 * 10) for the improved factors
	assert.Equal(t, 72, res.Score)
	assert.Equal(t, models.TrendUp, res.Trend)
	assert.Equal(t, "Your security score improved by 2 points.", res.Summary)
}

func TestCalculate_DroppedScoreWithoutCriticals(t *testing.T) {
	factors := steadyFactors(90)
	threat := openThreat("h1", models.SeverityHigh, 8, now.Add(-2*time.Hour))

	res := NewCalculator(DefaultPolicy()).Calculate(priorRecord(90, now.Add(-time.Hour), factors), []models.ThreatEvent{threat}, factors, now)

	assert.Equal(t, 82, res.Score)
	assert.Equal(t, "Your security score dropped by 8 points. Review the recommendations below.", res.Summary)
	assert.Equal(t, []string{"Address this high-risk issue: Issue h1"}, res.Recommendations)
}

func TestCalculate_ScoreIsClamped(t *testing.T) {
	factors := steadyFactors(50)
	impacts := []int{0, 1, 15, 100, 10_000, 1_000_000}
	priors := []int{20, 50, 75, 100}

	for _, prior := range priors {
		for _, impact := range impacts {
			penalties := []models.ThreatEvent{
				openThreat("a", models.SeverityCritical, impact, now.Add(-400*24*time.Hour)),
				openThreat("b", models.SeverityHigh, impact, now),
			}
			fixed := penalties[0]
			fixed.AutoRemediated = true

			for _, threats := range [][]models.ThreatEvent{penalties, {fixed}, nil} {
				res := NewCalculator(DefaultPolicy()).Calculate(priorRecord(prior, now.Add(-time.Minute), factors), threats, steadyFactors(100), now)
				assert.GreaterOrEqual(t, res.Score, MinScore)
				assert.LessOrEqual(t, res.Score, MaxScore)
			}
		}
	}
}

func TestCalculate_AutoRemediationNeverPenalizes(t *testing.T) {
	factors := steadyFactors(75)
	calc := NewCalculator(DefaultPolicy())

	for _, sev := range []models.Severity{models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical} {
		for _, impact := range []int{0, 2, 8, 15, 40} {
			for _, age := range []time.Duration{0, time.Hour, 10 * 24 * time.Hour} {
				prior := priorRecord(60, now.Add(-2*time.Hour), factors)
				threat := openThreat("x", sev, impact, now.Add(-age))
				threat.AutoRemediated = true

				without := calc.Calculate(prior, nil, factors, now)
				with := calc.Calculate(prior, []models.ThreatEvent{threat}, factors, now)
				assert.GreaterOrEqual(t, with.Score, without.Score, "severity=%s impact=%d age=%s", sev, impact, age)
			}
		}
	}
}

func TestCalculate_RecommendationCap(t *testing.T) {
	var threats []models.ThreatEvent
	for i := 0; i < 3; i++ {
		threats = append(threats,
			openThreat(fmt.Sprintf("c%d", i), models.SeverityCritical, 15, now.Add(-time.Hour)),
			openThreat(fmt.Sprintf("h%d", i), models.SeverityHigh, 8, now.Add(-time.Hour)),
		)
	}

	res := NewCalculator(DefaultPolicy()).Calculate(nil, threats, steadyFactors(10), now)

	assert.Equal(t, []string{
		"Fix this critical issue now: Issue c0",
		"Fix this critical issue now: Issue c1",
		"Address this high-risk issue: Issue h0",
	}, res.Recommendations)
	assert.Equal(t, "Your security score dropped by 55 points. 3 critical issues need your attention.", res.Summary)
}

func TestCalculate_RecommendationCapProperty(t *testing.T) {
	calc := NewCalculator(DefaultPolicy())
	severities := []models.Severity{models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical}

	for n := 0; n < 8; n++ {
		for _, factorLevel := range []int{0, 50, 69, 70, 100} {
			var threats []models.ThreatEvent
			for i := 0; i < n; i++ {
				threats = append(threats, openThreat(fmt.Sprint(i), severities[i%len(severities)], 5, now))
			}
			res := calc.Calculate(nil, threats, steadyFactors(factorLevel), now)
			assert.LessOrEqual(t, len(res.Recommendations), 3)
		}
	}
}

func TestCalculate_FactorAdviceOnlyWithoutCriticals(t *testing.T) {
	factors := steadyFactors(90)
	factors.NetworkSecurity = 40
	factors.FamilySafety = 69

	res := NewCalculator(DefaultPolicy()).Calculate(nil, nil, factors, now)
	assert.Equal(t, []string{factorAdvice[models.FactorNetwork], factorAdvice[models.FactorFamily]}, res.Recommendations)

	critical := openThreat("c", models.SeverityCritical, 15, now)
	res = NewCalculator(DefaultPolicy()).Calculate(nil, []models.ThreatEvent{critical}, factors, now)
	assert.Equal(t, []string{"Fix this critical issue now: Issue c"}, res.Recommendations)
}

func TestCalculate_ClampsFactors(t *testing.T) {
	res := NewCalculator(DefaultPolicy()).Calculate(nil, nil, models.SecurityFactors{PasswordSecurity: 140, DeviceSecurity: -5}, now)

	assert.Equal(t, 100, res.Factors.PasswordSecurity)
	assert.Equal(t, 0, res.Factors.DeviceSecurity)
}
