package scoring

import "family-safety-score/internal/models"

var factorAdvice = map[models.FactorName]string{
	models.FactorPassword: "Turn on a password manager and two-factor authentication for family accounts.",
	models.FactorDevice:   "Install pending updates on family devices and enable automatic updates.",
	models.FactorNetwork:  "Change the default router password and turn on the router firewall.",
	models.FactorApp:      "Review app permissions and remove apps you no longer use.",
	models.FactorFamily:   "Set up parental controls and screen time limits for your children.",
}

// recommend lists critical threats first, then high ones, then factor advice
// when nothing critical is open.
func (c *Calculator) recommend(open []models.ThreatEvent, factors models.SecurityFactors) []string {
	p := c.policy
	recs := make([]string, 0, p.MaxRecommendations)
	add := func(s string) bool {
		if len(recs) >= p.MaxRecommendations {
			return false
		}
		recs = append(recs, s)
		return true
	}

	critical := 0
	for _, t := range open {
		if t.Severity != models.SeverityCritical {
			continue
		}
		if critical < p.MaxPerSeverity {
			add("Fix this critical issue now: " + titleOf(t))
		}
		critical++
	}

	high := 0
	for _, t := range open {
		if t.Severity != models.SeverityHigh || high >= p.MaxPerSeverity {
			continue
		}
		if !add("Address this high-risk issue: " + titleOf(t)) {
			break
		}
		high++
	}

	if critical == 0 {
		for _, name := range models.FactorNames {
			if factors.Get(name) >= p.FactorAdviceThreshold {
				continue
			}
			if !add(factorAdvice[name]) {
				break
			}
		}
	}
	return recs
}
