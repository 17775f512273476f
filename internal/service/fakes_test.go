package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"family-safety-score/internal/factors"
	"family-safety-score/internal/models"
	"family-safety-score/internal/retry"
	"family-safety-score/internal/serial"
	"family-safety-score/internal/store"
)

var fastRetry = retry.Policy{MaxRetries: 1, Base: time.Millisecond, Cap: time.Millisecond}

type memScores struct {
	mu      sync.Mutex
	records map[string]models.RiskScoreRecord
	getErr  error
	saveErr error
}

func newMemScores() *memScores {
	return &memScores{records: make(map[string]models.RiskScoreRecord)}
}

func (m *memScores) GetScoreRecord(ctx context.Context, userID string) (*models.RiskScoreRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, ok := m.records[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (m *memScores) SaveScoreRecord(ctx context.Context, record *models.RiskScoreRecord) (*models.RiskScoreRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	if current, ok := m.records[record.UserID]; ok && current.Version != record.Version {
		return nil, store.ErrVersionConflict
	} else if !ok && record.Version != 0 {
		return nil, store.ErrVersionConflict
	}
	saved := *record
	saved.Version++
	m.records[record.UserID] = saved
	return &saved, nil
}

type memInventory struct {
	mu      sync.Mutex
	devices []models.Device
	alerts  []models.Alert
	listErr error
	fixed   []string
}

func (m *memInventory) ListDevices(ctx context.Context, userID string) ([]models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]models.Device(nil), m.devices...), nil
}

func (m *memInventory) ListAlerts(ctx context.Context, userID string, limit int) ([]models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]models.Alert(nil), m.alerts...), nil
}

func (m *memInventory) MarkDeviceRemediated(ctx context.Context, userID, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.devices {
		if m.devices[i].ID == deviceID {
			m.devices[i].Status = models.DeviceSecure
			m.devices[i].UpdatedAt = time.Now()
			m.fixed = append(m.fixed, deviceID)
			return nil
		}
	}
	return store.ErrNotFound
}

type memEngagement struct {
	mu      sync.Mutex
	records map[string]models.EngagementScoreRecord
	saves   int
}

func newMemEngagement() *memEngagement {
	return &memEngagement{records: make(map[string]models.EngagementScoreRecord)}
}

func (m *memEngagement) GetEngagementRecord(ctx context.Context, userID string) (*models.EngagementScoreRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (m *memEngagement) SaveEngagementRecord(ctx context.Context, rec *models.EngagementScoreRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.UserID] = *rec
	m.saves++
	return nil
}

type memActivities struct {
	mu      sync.Mutex
	entries []models.ActivityRecord
}

func (m *memActivities) AppendActivity(ctx context.Context, a *models.ActivityRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *a)
	return nil
}

func (m *memActivities) ListActivities(ctx context.Context, userID string, limit int) ([]models.ActivityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ActivityRecord
	for _, a := range m.entries {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memActivities) types() []models.ActivityType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ActivityType, 0, len(m.entries))
	for _, a := range m.entries {
		out = append(out, a.Type)
	}
	return out
}

type memHistory struct {
	mu      sync.Mutex
	entries []models.ScoreHistoryEntry
}

func (m *memHistory) RecordScore(ctx context.Context, e models.ScoreHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memHistory) ScoreHistory(ctx context.Context, userID string, limit int) ([]models.ScoreHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ScoreHistoryEntry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].UserID == userID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []models.EventType
}

func (r *recordingBroadcaster) Broadcast(ctx context.Context, userID string, eventType models.EventType, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func (r *recordingBroadcaster) count(t models.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == t {
			n++
		}
	}
	return n
}

type fixedLimiter struct {
	allow bool
	err   error
}

func (f fixedLimiter) Allow(ctx context.Context, userID, operation string) (bool, error) {
	return f.allow, f.err
}

type failingSignals struct{}

func (failingSignals) Factors(context.Context, factors.Signals) (models.SecurityFactors, error) {
	return models.SecurityFactors{}, errors.New("signal backend timeout")
}

func newLanes() *serial.Dispatcher {
	return serial.NewDispatcher(2, 32)
}

var nopLogger = zap.NewNop()
