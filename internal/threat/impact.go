package threat

import (
	"math"
	"strings"

	"family-safety-score/internal/models"
)

var baseImpact = map[models.Severity]int{
	models.SeverityCritical: 15,
	models.SeverityHigh:     8,
	models.SeverityMedium:   4,
	models.SeverityLow:      2,
}

var categoryMultiplier = map[string]float64{
	"password": 1.2,
	"device":   1.0,
	"network":  1.3,
	"malware":  1.5,
	"phishing": 1.1,
}

// Impact scales the severity's base impact by the alert category.
func Impact(severity models.Severity, category string) int {
	m, ok := categoryMultiplier[strings.ToLower(category)]
	if !ok {
		m = 1.0
	}
	return int(math.Round(float64(baseImpact[severity]) * m))
}

func kindFor(category string) models.ThreatKind {
	switch strings.ToLower(category) {
	case "password":
		return models.ThreatPasswordRisk
	case "device":
		return models.ThreatDeviceRisk
	case "malware":
		return models.ThreatMalware
	case "phishing":
		return models.ThreatPhishing
	case "breach":
		return models.ThreatBreach
	default:
		return models.ThreatVulnerability
	}
}
