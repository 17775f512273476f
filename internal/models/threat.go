package models

import "time"

type ThreatKind string

const (
	ThreatVulnerability ThreatKind = "vulnerability"
	ThreatBreach        ThreatKind = "breach"
	ThreatMalware       ThreatKind = "malware"
	ThreatPhishing      ThreatKind = "phishing"
	ThreatDeviceRisk    ThreatKind = "device_risk"
	ThreatPasswordRisk  ThreatKind = "password_risk"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities by ascending impact; unknown values rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// ThreatEvent is a detected issue. ResolvedAt is nil while the threat is open
// and never precedes DetectedAt.
type ThreatEvent struct {
	ID             string     `json:"id"`
	Kind           ThreatKind `json:"kind"`
	Severity       Severity   `json:"severity"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	DetectedAt     time.Time  `json:"detected_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	AutoRemediated bool       `json:"auto_remediated"`
	Remediable     bool       `json:"remediable"`
	Impact         int        `json:"impact"`
	Source         string     `json:"source"`
	DeviceID       string     `json:"device_id,omitempty"`
}

func (t ThreatEvent) Resolved() bool {
	return t.ResolvedAt != nil
}

// Resolve marks the threat resolved at the given time, never earlier than detection.
func (t *ThreatEvent) Resolve(at time.Time) {
	if at.Before(t.DetectedAt) {
		at = t.DetectedAt
	}
	t.ResolvedAt = &at
}
