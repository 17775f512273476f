package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"family-safety-score/internal/engagement"
	"family-safety-score/internal/models"
	"family-safety-score/internal/retry"
	"family-safety-score/internal/serial"
	"family-safety-score/internal/store"
	"family-safety-score/internal/util"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 200
)

// AddPointsRequest is the body of an engagement activity submission.
type AddPointsRequest struct {
	ActivityType models.ActivityType `json:"activity_type"`
	Points       int                 `json:"points"`
	Description  string              `json:"description"`
}

// EngagementService maintains engagement ledgers. Reads apply an overdue
// weekly reset, so they write too and run on the user's lane.
type EngagementService struct {
	store       store.EngagementStore
	activities  *ActivityLog
	searcher    store.ActivitySearcher
	ledger      *engagement.Ledger
	gate        userGate
	broadcaster store.Broadcaster
	retry       retry.Policy
	logger      *zap.Logger
	now         func() time.Time
}

func NewEngagementService(
	engagementStore store.EngagementStore,
	activities *ActivityLog,
	searcher store.ActivitySearcher,
	ledger *engagement.Ledger,
	lanes *serial.Dispatcher,
	locker store.UserLocker,
	broadcaster store.Broadcaster,
	policy retry.Policy,
	logger *zap.Logger,
) *EngagementService {
	return &EngagementService{
		store:       engagementStore,
		activities:  activities,
		searcher:    searcher,
		ledger:      ledger,
		gate:        userGate{lanes: lanes, locker: locker, logger: logger},
		broadcaster: broadcaster,
		retry:       policy,
		logger:      logger,
		now:         time.Now,
	}
}

// GetScore returns the user's ledger after applying an overdue weekly reset.
func (s *EngagementService) GetScore(ctx context.Context, userID string) (*models.EngagementScoreRecord, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	var rec *models.EngagementScoreRecord
	err := s.gate.run(ctx, userID, func(ctx context.Context) error {
		var err error
		rec, err = s.load(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// AddPoints credits an engagement activity and logs it.
func (s *EngagementService) AddPoints(ctx context.Context, userID string, req AddPointsRequest) (*models.EngagementScoreRecord, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if util.ContainsSuspicious(req.Description) {
		return nil, fmt.Errorf("%w: description contains disallowed content", ErrInvalidInput)
	}
	description := util.SanitizeDescription(req.Description)

	var rec *models.EngagementScoreRecord
	err := s.gate.run(ctx, userID, func(ctx context.Context) error {
		current, err := s.load(ctx, userID)
		if err != nil {
			return err
		}

		activity, err := s.ledger.AddPoints(current, req.ActivityType, req.Points, description, s.now())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		if err := s.save(ctx, current); err != nil {
			return err
		}
		if err := s.activities.AppendActivity(ctx, activity); err != nil {
			s.logger.Warn("Failed to log engagement activity", util.UserID(userID), util.ErrorField(err))
		}

		rec = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Engagement points added",
		util.UserID(userID),
		util.String("activity_type", string(req.ActivityType)),
		util.Int("points", req.Points),
		util.Int("score", rec.Score))
	s.notify(ctx, rec)
	return rec, nil
}

// load reads the ledger, creating it on first use and applying a due reset.
// Must run inside the gate.
func (s *EngagementService) load(ctx context.Context, userID string) (*models.EngagementScoreRecord, error) {
	now := s.now()
	rec, err := retry.Value(ctx, s.retry, func(ctx context.Context) (*models.EngagementScoreRecord, error) {
		return s.store.GetEngagementRecord(ctx, userID)
	})
	if errors.Is(err, store.ErrNotFound) {
		rec = s.ledger.New(userID, now)
		if err := s.save(ctx, rec); err != nil {
			return nil, err
		}
		return rec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load engagement score: %w", err)
	}

	reset, ok := s.ledger.ApplyWeeklyReset(rec, now)
	if !ok {
		return rec, nil
	}
	if err := s.save(ctx, rec); err != nil {
		return nil, err
	}
	if err := s.activities.AppendActivity(ctx, reset); err != nil {
		s.logger.Warn("Failed to log weekly reset", util.UserID(userID), util.ErrorField(err))
	}
	s.notify(ctx, rec)
	return rec, nil
}

func (s *EngagementService) save(ctx context.Context, rec *models.EngagementScoreRecord) error {
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.store.SaveEngagementRecord(ctx, rec)
	})
	if err != nil {
		return fmt.Errorf("save engagement score: %w", err)
	}
	return nil
}

func (s *EngagementService) notify(ctx context.Context, rec *models.EngagementScoreRecord) {
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(ctx, rec.UserID, models.EventEngagementScoreUpdated, rec)
	}
}

// Activities lists the user's most recent activity log entries.
func (s *EngagementService) Activities(ctx context.Context, userID string, limit int) ([]models.ActivityRecord, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	out, err := s.activities.List(ctx, userID, activityLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return out, nil
}

// SearchActivities runs a full text search over the user's activities. With
// no search index it filters the recent log instead.
func (s *EngagementService) SearchActivities(ctx context.Context, userID, query string, limit int) ([]models.ActivityRecord, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	limit = activityLimit(limit)

	if s.searcher != nil {
		out, err := s.searcher.SearchActivities(ctx, userID, query, limit)
		if err == nil {
			return out, nil
		}
		s.logger.Warn("Activity search unavailable, filtering recent log",
			util.UserID(userID), util.ErrorField(err))
	}

	recent, err := s.activities.List(ctx, userID, maxActivityLimit)
	if err != nil {
		return nil, fmt.Errorf("search activities: %w", err)
	}
	needle := strings.ToLower(query)
	out := make([]models.ActivityRecord, 0, limit)
	for _, a := range recent {
		if len(out) == limit {
			break
		}
		if needle == "" ||
			strings.Contains(strings.ToLower(a.Description), needle) ||
			strings.Contains(string(a.Type), needle) {
			out = append(out, a)
		}
	}
	return out, nil
}

func activityLimit(limit int) int {
	if limit <= 0 {
		return defaultActivityLimit
	}
	return min(limit, maxActivityLimit)
}
