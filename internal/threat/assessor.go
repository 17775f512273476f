// Package threat turns a household's devices and alerts into threat events
// and applies automatic remediation to eligible devices.
package threat

import (
	"fmt"
	"strings"
	"time"

	"family-safety-score/internal/models"
)

const (
	vulnerableImpact = 8
	warningImpact    = 4
)

// Assessor detects threats. Detect has no side effects.
type Assessor struct{}

func NewAssessor() *Assessor {
	return &Assessor{}
}

// Detect converts alerts into threats and adds a device_risk threat for every
// vulnerable or warning device that no open alert already covers.
func (a *Assessor) Detect(devices []models.Device, alerts []models.Alert, now time.Time) []models.ThreatEvent {
	byID := make(map[string]models.Device, len(devices))
	for _, d := range devices {
		byID[d.ID] = d
	}

	threats := make([]models.ThreatEvent, 0, len(alerts)+len(devices))
	covered := make(map[string]bool)

	for _, alert := range alerts {
		t := fromAlert(alert)
		if d, ok := byID[alert.DeviceID]; ok && !t.Resolved() && !t.AutoRemediated {
			t.Remediable = Remediable(d)
		}
		if !t.Resolved() {
			covered[t.Source] = true
		}
		threats = append(threats, t)
	}

	for _, d := range devices {
		if covered[d.ID] {
			continue
		}
		if t, ok := fromDevice(d, now); ok {
			threats = append(threats, t)
		}
	}
	return threats
}

// Remediable reports whether the device can be fixed without the user:
// smart and IoT devices, routers, and devices with a pending update.
func Remediable(d models.Device) bool {
	typ := strings.ToLower(d.Type)
	return strings.Contains(typ, "smart") ||
		strings.Contains(typ, "iot") ||
		strings.Contains(strings.ToLower(d.Name), "router") ||
		d.Status == models.DeviceUpdateAvailable
}

func fromAlert(a models.Alert) models.ThreatEvent {
	t := models.ThreatEvent{
		ID:          a.ID,
		Kind:        kindFor(a.Category),
		Severity:    a.Severity,
		Title:       a.Title,
		Description: a.Description,
		DetectedAt:  a.CreatedAt,
		Impact:      Impact(a.Severity, a.Category),
		Source:      a.Category,
		DeviceID:    a.DeviceID,
	}
	if a.DeviceID != "" {
		t.Source = a.DeviceID
	}

	t.AutoRemediated = a.Status == models.AlertAutoResolved ||
		strings.Contains(strings.ToLower(a.Description), "automatically")

	if a.Status == models.AlertResolved || a.Status == models.AlertAutoResolved {
		t.Resolve(a.UpdatedAt)
	}
	return t
}

func fromDevice(d models.Device, now time.Time) (models.ThreatEvent, bool) {
	t := models.ThreatEvent{
		ID:         "device-risk:" + d.ID,
		Kind:       models.ThreatDeviceRisk,
		DetectedAt: d.UpdatedAt,
		Source:     d.ID,
		DeviceID:   d.ID,
		Remediable: Remediable(d),
	}
	if t.DetectedAt.IsZero() || t.DetectedAt.After(now) {
		t.DetectedAt = now
	}

	switch d.Status {
	case models.DeviceVulnerable:
		t.Severity = models.SeverityHigh
		t.Impact = vulnerableImpact
		t.Title = fmt.Sprintf("%s is vulnerable", d.Name)
	case models.DeviceWarning:
		t.Severity = models.SeverityMedium
		t.Impact = warningImpact
		t.Title = fmt.Sprintf("%s needs attention", d.Name)
	default:
		return models.ThreatEvent{}, false
	}
	return t, true
}
