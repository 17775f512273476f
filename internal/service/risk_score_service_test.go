package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"family-safety-score/internal/config"
	"family-safety-score/internal/factors"
	"family-safety-score/internal/models"
	"family-safety-score/internal/scoring"
	"family-safety-score/internal/store"
)

type harness struct {
	cfg        *config.Config
	scores     *memScores
	inventory  *memInventory
	engagement *memEngagement
	activities *memActivities
	history    *memHistory
	broadcast  *recordingBroadcaster
	stores     Stores
	signals    factors.SignalSource
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		cfg: &config.Config{
			Retry:      config.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
			Scoring:    config.ScoringConfig{PenalizeNewThreats: true, AlertLimit: 50},
			Engagement: config.EngagementConfig{ResetInterval: 7 * 24 * time.Hour},
		},
		scores:     newMemScores(),
		inventory:  &memInventory{},
		engagement: newMemEngagement(),
		activities: &memActivities{},
		history:    &memHistory{},
		broadcast:  &recordingBroadcaster{},
		signals:    factors.StaticSource(steady(80)),
	}
	h.stores = Stores{
		Scores:      h.scores,
		Engagement:  h.engagement,
		Activities:  h.activities,
		Inventory:   h.inventory,
		History:     h.history,
		Broadcaster: h.broadcast,
	}
	return h
}

func (h *harness) factory(t *testing.T) *ServiceFactory {
	lanes := newLanes()
	t.Cleanup(lanes.Close)
	return NewServiceFactory(h.cfg, h.stores, h.signals, lanes, nopLogger)
}

func steady(v int) models.SecurityFactors {
	return models.SecurityFactors{PasswordSecurity: v, DeviceSecurity: v, NetworkSecurity: v, AppSecurity: v, FamilySafety: v}
}

func TestCalculate_FirstPassRemediatesRouter(t *testing.T) {
	h := newHarness(t)
	h.inventory.devices = []models.Device{
		{ID: "d1", UserID: "u1", Name: "Home Router", Type: "router", Status: models.DeviceVulnerable, UpdatedAt: time.Now().Add(-time.Hour)},
		{ID: "d2", UserID: "u1", Name: "Laptop", Type: "laptop", Status: models.DeviceSecure},
	}
	svc := h.factory(t).RiskScoreService()

	res, err := svc.Calculate(context.Background(), "u1")
	require.NoError(t, err)

	assert.False(t, res.Fallback)
	assert.Equal(t, 79, res.Score)
	assert.Equal(t, models.GradeC, res.Grade)
	assert.Equal(t, models.TrendUp, res.Trend)
	assert.Equal(t, "We handled 1 issue for you automatically. No action needed.", res.Summary)
	require.Len(t, res.AutoRemediations, 1)
	assert.Equal(t, "device-risk:d1", res.AutoRemediations[0].ThreatID)
	assert.Equal(t, []string{"d1"}, h.inventory.fixed)

	stored, err := h.scores.GetScoreRecord(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 79, stored.Score)
	assert.Equal(t, int64(1), stored.Version)

	assert.Equal(t, []models.ActivityType{models.ActivityAutoRemediation, models.ActivityScoreRecalculated}, h.activities.types())
	assert.Len(t, h.history.entries, 1)
	assert.Equal(t, 1, h.broadcast.count(models.EventRiskScoreUpdated))
	assert.Equal(t, 2, h.broadcast.count(models.EventActivityLogged))

	t.Run("second pass credits nothing again", func(t *testing.T) {
		res, err := svc.Calculate(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, 79, res.Score)
		assert.Equal(t, models.TrendStable, res.Trend)
		assert.Empty(t, res.AutoRemediations)

		stored, err := h.scores.GetScoreRecord(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), stored.Version)
	})
}

func TestCalculate_OpenCriticalAlert(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	h := newHarness(t)
	f := steady(80)
	h.scores.records["u1"] = models.RiskScoreRecord{
		UserID: "u1", Score: 75, Grade: models.GradeC, Trend: models.TrendStable,
		Factors: &f, LastUpdate: now.Add(-time.Hour), Version: 3,
	}
	h.inventory.alerts = []models.Alert{{
		ID: "a1", UserID: "u1", Title: "Malware on tablet", Severity: models.SeverityCritical,
		Category: "malware", Status: models.AlertOpen, CreatedAt: now.Add(-48 * time.Hour),
	}}
	svc := h.factory(t).RiskScoreService()
	svc.now = func() time.Time { return now }

	res, err := svc.Calculate(context.Background(), "u1")
	require.NoError(t, err)

	// impact round(15 * 1.5) = 23, plus two days at 0.5
	assert.Equal(t, 51, res.Score)
	assert.Equal(t, models.TrendDown, res.Trend)
	assert.Equal(t, []string{"Fix this critical issue now: Malware on tablet"}, res.Recommendations)
	assert.Equal(t, []models.ActivityType{models.ActivityScoreRecalculated}, h.activities.types())
	assert.Equal(t, int64(4), h.scores.records["u1"].Version)
}

func TestCalculate_NewThreatIsLogged(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	h := newHarness(t)
	h.inventory.alerts = []models.Alert{{
		ID: "a1", UserID: "u1", Title: "Reused password", Severity: models.SeverityMedium,
		Category: "password", Status: models.AlertOpen, CreatedAt: now.Add(-time.Minute),
	}}
	svc := h.factory(t).RiskScoreService()
	svc.now = func() time.Time { return now }

	_, err := svc.Calculate(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []models.ActivityType{models.ActivityThreatDetected, models.ActivityScoreRecalculated}, h.activities.types())
}

func TestCalculate_FallsBackWhenInventoryIsDown(t *testing.T) {
	h := newHarness(t)
	h.scores.records["u1"] = models.RiskScoreRecord{UserID: "u1", Score: 82, Grade: models.GradeB, Version: 5}
	h.inventory.listErr = store.ErrUnavailable
	svc := h.factory(t).RiskScoreService()

	res, err := svc.Calculate(context.Background(), "u1")
	require.NoError(t, err)

	assert.True(t, res.Fallback)
	assert.Equal(t, 82, res.Score)
	assert.Equal(t, models.GradeB, res.Grade)
	assert.Equal(t, models.TrendStable, res.Trend)
	assert.Equal(t, scoring.FallbackSummary, res.Summary)
	assert.Equal(t, int64(5), h.scores.records["u1"].Version)
	assert.Empty(t, h.history.entries)
}

func TestCalculate_FallsBackWhenSignalsFail(t *testing.T) {
	h := newHarness(t)
	h.signals = failingSignals{}
	svc := h.factory(t).RiskScoreService()

	res, err := svc.Calculate(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, scoring.BaseScore, res.Score)
	assert.Empty(t, h.scores.records)
}

func TestCalculate_FailsWhenPriorRecordIsUnreadable(t *testing.T) {
	h := newHarness(t)
	h.scores.getErr = store.ErrUnavailable
	svc := h.factory(t).RiskScoreService()

	_, err := svc.Calculate(context.Background(), "u1")
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestCalculate_RateLimit(t *testing.T) {
	h := newHarness(t)
	h.stores.Limiter = fixedLimiter{allow: false}
	_, err := h.factory(t).RiskScoreService().Calculate(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrRateLimited)

	h.stores.Limiter = fixedLimiter{err: errors.New("redis down")}
	_, err = h.factory(t).RiskScoreService().Calculate(context.Background(), "u1")
	assert.NoError(t, err)
}

func TestCalculate_RejectsBadUserID(t *testing.T) {
	svc := newHarness(t).factory(t).RiskScoreService()
	for _, id := range []string{"", "  ", "<script>alert(1)</script>", "a&b"} {
		_, err := svc.Calculate(context.Background(), id)
		assert.ErrorIs(t, err, ErrInvalidInput, "id %q", id)
	}
}

func TestCalculate_ConcurrentPassesAreSerialized(t *testing.T) {
	h := newHarness(t)
	svc := h.factory(t).RiskScoreService()

	const passes = 8
	var wg sync.WaitGroup
	errs := make(chan error, passes)
	for i := 0; i < passes; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Calculate(context.Background(), "u1")
			if err == nil && res.Fallback {
				err = errors.New("unexpected fallback")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(passes), h.scores.records["u1"].Version)
}

func TestGetReturnsBaseRecordForNewUser(t *testing.T) {
	h := newHarness(t)
	svc := h.factory(t).RiskScoreService()

	rec, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, scoring.BaseScore, rec.Score)
	assert.Equal(t, models.GradeC, rec.Grade)
	assert.Equal(t, models.TrendStable, rec.Trend)
	assert.Empty(t, h.scores.records, "reads must not create records")
}

func TestHistory(t *testing.T) {
	h := newHarness(t)
	svc := h.factory(t).RiskScoreService()
	for i := 0; i < 3; i++ {
		_, err := svc.Calculate(context.Background(), "u1")
		require.NoError(t, err)
	}

	entries, err := svc.History(context.Background(), "u1", 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	h.stores.History = nil
	entries, err = h.factory(t).RiskScoreService().History(context.Background(), "u1", 2)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
