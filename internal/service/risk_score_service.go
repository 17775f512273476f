package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"family-safety-score/internal/factors"
	"family-safety-score/internal/models"
	"family-safety-score/internal/retry"
	"family-safety-score/internal/scoring"
	"family-safety-score/internal/serial"
	"family-safety-score/internal/store"
	"family-safety-score/internal/threat"
	"family-safety-score/internal/util"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
	recalculateOp       = "recalculate"
)

// RiskScoreDeps are the collaborators of a RiskScoreService. History,
// Locker, Limiter and Broadcaster are optional.
type RiskScoreDeps struct {
	Scores      store.ScoreStore
	Inventory   store.InventoryStore
	History     store.ScoreHistoryStore
	Activities  *ActivityLog
	Threats     *threat.Assessor
	Remediator  *threat.Remediator
	Factors     *factors.Assessor
	Calculator  *scoring.Calculator
	Lanes       *serial.Dispatcher
	Locker      store.UserLocker
	Limiter     store.RateLimiter
	Broadcaster store.Broadcaster
	Retry       retry.Policy
	AlertLimit  int
}

// RiskScoreService runs scoring passes and serves the stored results.
type RiskScoreService struct {
	deps   RiskScoreDeps
	gate   userGate
	logger *zap.Logger
	now    func() time.Time
}

func NewRiskScoreService(deps RiskScoreDeps, logger *zap.Logger) *RiskScoreService {
	if deps.AlertLimit <= 0 {
		deps.AlertLimit = 50
	}
	return &RiskScoreService{
		deps:   deps,
		gate:   userGate{lanes: deps.Lanes, locker: deps.Locker, logger: logger},
		logger: logger,
		now:    time.Now,
	}
}

// Calculate runs one scoring pass for the user. When the inventory or the
// factor source cannot be reached the prior score is returned unchanged with
// Fallback set. Only a prior record that cannot be read is an error.
func (s *RiskScoreService) Calculate(ctx context.Context, userID string) (*models.ScoreResult, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if err := s.admit(ctx, userID); err != nil {
		return nil, err
	}

	var result *models.ScoreResult
	err := s.gate.run(ctx, userID, func(ctx context.Context) error {
		var err error
		result, err = s.pass(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// admit applies the per-user recalculation limit. A limiter that cannot be
// reached admits the request.
func (s *RiskScoreService) admit(ctx context.Context, userID string) error {
	if s.deps.Limiter == nil {
		return nil
	}
	ok, err := s.deps.Limiter.Allow(ctx, userID, recalculateOp)
	if err != nil {
		s.logger.Warn("Rate limiter unavailable", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	if !ok {
		return ErrRateLimited
	}
	return nil
}

func (s *RiskScoreService) pass(ctx context.Context, userID string) (*models.ScoreResult, error) {
	start := s.now()

	prior, err := s.loadRecord(ctx, userID)
	if err != nil {
		return nil, err
	}

	var (
		devices []models.Device
		alerts  []models.Alert
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		devices, err = retry.Value(gctx, s.deps.Retry, func(ctx context.Context) ([]models.Device, error) {
			return s.deps.Inventory.ListDevices(ctx, userID)
		})
		return err
	})
	g.Go(func() error {
		var err error
		alerts, err = retry.Value(gctx, s.deps.Retry, func(ctx context.Context) ([]models.Alert, error) {
			return s.deps.Inventory.ListAlerts(ctx, userID, s.deps.AlertLimit)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return s.fallback(userID, prior, fmt.Errorf("load inventory: %w", err)), nil
	}

	threats := s.deps.Threats.Detect(devices, alerts, s.now())
	fixed := s.deps.Remediator.RemediateAll(ctx, userID, threats)

	f, err := s.deps.Factors.Assess(ctx, userID, devices)
	if err != nil {
		return s.fallback(userID, prior, err), nil
	}

	// taken after remediation so this pass's fixes are not credited again
	calculatedAt := s.now()
	result := s.deps.Calculator.Calculate(prior, threats, f, calculatedAt)

	record := &models.RiskScoreRecord{
		UserID:     userID,
		Score:      result.Score,
		Grade:      result.Grade,
		Trend:      result.Trend,
		Factors:    &result.Factors,
		Summary:    result.Summary,
		LastUpdate: calculatedAt,
	}
	if prior != nil {
		record.Version = prior.Version
	}
	if _, err := retry.Value(ctx, s.deps.Retry, func(ctx context.Context) (*models.RiskScoreRecord, error) {
		return s.deps.Scores.SaveScoreRecord(ctx, record)
	}); err != nil {
		return s.fallback(userID, prior, fmt.Errorf("save risk score: %w", err)), nil
	}

	s.logActivities(ctx, userID, prior, &result)
	s.recordHistory(ctx, userID, &result)
	if s.deps.Broadcaster != nil {
		s.deps.Broadcaster.Broadcast(ctx, userID, models.EventRiskScoreUpdated, result)
	}

	s.logger.Info("Risk score calculated",
		util.UserID(userID),
		util.Int("score", result.Score),
		util.Int("previous_score", result.PreviousScore),
		util.String("trend", string(result.Trend)),
		util.Int("threats", len(threats)),
		util.Int("remediated", fixed),
		util.Duration("duration", time.Since(start)),
	)
	return &result, nil
}

// loadRecord returns the prior record, or nil when the user has none.
func (s *RiskScoreService) loadRecord(ctx context.Context, userID string) (*models.RiskScoreRecord, error) {
	prior, err := retry.Value(ctx, s.deps.Retry, func(ctx context.Context) (*models.RiskScoreRecord, error) {
		return s.deps.Scores.GetScoreRecord(ctx, userID)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load risk score: %w", err)
	}
	return prior, nil
}

func (s *RiskScoreService) fallback(userID string, prior *models.RiskScoreRecord, cause error) *models.ScoreResult {
	s.logger.Warn("Risk score pass fell back to the prior score",
		util.UserID(userID), util.ErrorField(cause))

	base := prior
	if base == nil {
		base = s.baseRecord(userID)
	}
	result := &models.ScoreResult{
		Score:            base.Score,
		PreviousScore:    base.Score,
		Grade:            base.Grade,
		Trend:            models.TrendStable,
		Threats:          []models.ThreatEvent{},
		AutoRemediations: []models.Remediation{},
		Recommendations:  []string{},
		Summary:          scoring.FallbackSummary,
		CalculatedAt:     s.now(),
		Fallback:         true,
	}
	if base.Factors != nil {
		result.Factors = *base.Factors
	}
	return result
}

func (s *RiskScoreService) baseRecord(userID string) *models.RiskScoreRecord {
	policy := s.deps.Calculator.Policy()
	return &models.RiskScoreRecord{
		UserID:  userID,
		Score:   policy.BaseScore,
		Grade:   scoring.GradeFor(policy.BaseScore),
		Trend:   models.TrendStable,
		Summary: "No score has been calculated yet.",
	}
}

// logActivities records threats first seen or resolved by the user since the
// prior pass, and the pass itself. Remediations are logged by the remediator.
func (s *RiskScoreService) logActivities(ctx context.Context, userID string, prior *models.RiskScoreRecord, result *models.ScoreResult) {
	var since time.Time
	if prior != nil {
		since = prior.LastUpdate
	}

	var entries []*models.ActivityRecord
	for _, t := range result.Threats {
		switch {
		case !t.Resolved() && (prior == nil || t.DetectedAt.After(since)):
			entries = append(entries, s.threatActivity(userID, models.ActivityThreatDetected, "Detected: ", t, result.CalculatedAt))
		case t.Resolved() && !t.AutoRemediated && prior != nil && t.ResolvedAt.After(since):
			entries = append(entries, s.threatActivity(userID, models.ActivityThreatResolved, "Resolved: ", t, result.CalculatedAt))
		}
	}
	entries = append(entries, &models.ActivityRecord{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        models.ActivityScoreRecalculated,
		Description: result.Summary,
		Metadata: map[string]string{
			"score":          strconv.Itoa(result.Score),
			"previous_score": strconv.Itoa(result.PreviousScore),
			"grade":          string(result.Grade),
			"trend":          string(result.Trend),
		},
		CreatedAt: result.CalculatedAt,
	})

	for _, a := range entries {
		if err := s.deps.Activities.AppendActivity(ctx, a); err != nil {
			s.logger.Warn("Failed to log scoring activity",
				util.UserID(userID),
				util.String("activity_type", string(a.Type)),
				util.ErrorField(err))
		}
	}
}

func (s *RiskScoreService) threatActivity(userID string, typ models.ActivityType, prefix string, t models.ThreatEvent, at time.Time) *models.ActivityRecord {
	return &models.ActivityRecord{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        typ,
		Description: prefix + t.Title,
		Metadata: map[string]string{
			"threat_id": t.ID,
			"severity":  string(t.Severity),
			"kind":      string(t.Kind),
		},
		CreatedAt: at,
	}
}

func (s *RiskScoreService) recordHistory(ctx context.Context, userID string, result *models.ScoreResult) {
	if s.deps.History == nil {
		return
	}
	open := 0
	for _, t := range result.Threats {
		if !t.Resolved() {
			open++
		}
	}
	entry := models.ScoreHistoryEntry{
		UserID:       userID,
		Score:        int32(result.Score),
		Grade:        string(result.Grade),
		Trend:        string(result.Trend),
		ThreatCount:  int32(open),
		Remediations: int32(len(result.AutoRemediations)),
		CalculatedAt: result.CalculatedAt,
	}
	if err := s.deps.History.RecordScore(ctx, entry); err != nil {
		s.logger.Warn("Failed to record score history", util.UserID(userID), util.ErrorField(err))
	}
}

// Get returns the stored record, or the unsaved base record for a user who
// has never been scored.
func (s *RiskScoreService) Get(ctx context.Context, userID string) (*models.RiskScoreRecord, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	record, err := s.loadRecord(ctx, userID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return s.baseRecord(userID), nil
	}
	return record, nil
}

// History returns the most recent passes, newest first. Without a history
// store it is always empty.
func (s *RiskScoreService) History(ctx context.Context, userID string, limit int) ([]models.ScoreHistoryEntry, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if s.deps.History == nil {
		return []models.ScoreHistoryEntry{}, nil
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	entries, err := retry.Value(ctx, s.deps.Retry, func(ctx context.Context) ([]models.ScoreHistoryEntry, error) {
		return s.deps.History.ScoreHistory(ctx, userID, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("score history: %w", err)
	}
	return entries, nil
}
