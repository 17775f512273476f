// Package factors derives the five security sub-scores for a household.
package factors

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"

	"family-safety-score/internal/models"
)

// Signals is what a SignalSource may look at.
type Signals struct {
	UserID  string
	Devices []models.Device
}

// SignalSource produces raw, unclamped factor values.
type SignalSource interface {
	Factors(ctx context.Context, signals Signals) (models.SecurityFactors, error)
}

// SimulatedSource mixes real device counts with seeded random placeholders
// for the signals that have no real detector yet (password manager and MFA
// use, router firewall, app permissions, parental controls).
type SimulatedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulatedSource(seed uint64) *SimulatedSource {
	return &SimulatedSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *SimulatedSource) Factors(_ context.Context, signals Signals) (models.SecurityFactors, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := models.SecurityFactors{
		PasswordSecurity: 60 + s.rng.IntN(30),
		DeviceSecurity:   deviceSecurity(signals.Devices),
		NetworkSecurity:  65 + s.rng.IntN(30),
		AppSecurity:      70 + s.rng.IntN(25),
		FamilySafety:     60 + s.rng.IntN(35),
	}
	if routerVulnerable(signals.Devices) {
		f.NetworkSecurity -= 10
	}
	return f, nil
}

// deviceSecurity is the share of secure devices, 80 for an empty household.
func deviceSecurity(devices []models.Device) int {
	if len(devices) == 0 {
		return 80
	}
	secure := 0
	for _, d := range devices {
		if d.Status == models.DeviceSecure {
			secure++
		}
	}
	return secure * 100 / len(devices)
}

func routerVulnerable(devices []models.Device) bool {
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.Name), "router") || strings.EqualFold(d.Type, "router") {
			if d.Status == models.DeviceVulnerable || d.Status == models.DeviceWarning {
				return true
			}
		}
	}
	return false
}

// StaticSource always returns the same factors.
type StaticSource models.SecurityFactors

func (s StaticSource) Factors(context.Context, Signals) (models.SecurityFactors, error) {
	return models.SecurityFactors(s), nil
}
