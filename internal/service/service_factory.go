package service

import (
	"sync"

	"go.uber.org/zap"

	"family-safety-score/internal/config"
	"family-safety-score/internal/engagement"
	"family-safety-score/internal/factors"
	"family-safety-score/internal/retry"
	"family-safety-score/internal/scoring"
	"family-safety-score/internal/serial"
	"family-safety-score/internal/store"
	"family-safety-score/internal/threat"
)

// Stores groups the backends the services run on. Every field except
// Scores, Engagement, Activities and Inventory may be nil.
type Stores struct {
	Scores      store.ScoreStore
	Engagement  store.EngagementStore
	Activities  store.ActivityStore
	Inventory   store.InventoryStore
	History     store.ScoreHistoryStore
	Searcher    store.ActivitySearcher
	Sinks       []store.ActivitySink
	Locker      store.UserLocker
	Limiter     store.RateLimiter
	Broadcaster store.Broadcaster
}

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	cfg     *config.Config
	stores  Stores
	signals factors.SignalSource
	lanes   *serial.Dispatcher
	logger  *zap.Logger

	mu                sync.Mutex
	activityLog       *ActivityLog
	riskScoreService  *RiskScoreService
	engagementService *EngagementService
}

func NewServiceFactory(cfg *config.Config, stores Stores, signals factors.SignalSource, lanes *serial.Dispatcher, logger *zap.Logger) *ServiceFactory {
	return &ServiceFactory{
		cfg:     cfg,
		stores:  stores,
		signals: signals,
		lanes:   lanes,
		logger:  logger,
	}
}

func (f *ServiceFactory) retryPolicy() retry.Policy {
	return retry.FromConfig(f.cfg.Retry)
}

// ActivityLog returns the shared activity log (singleton)
func (f *ServiceFactory) ActivityLog() *ActivityLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activityLogLocked()
}

func (f *ServiceFactory) activityLogLocked() *ActivityLog {
	if f.activityLog == nil {
		f.activityLog = NewActivityLog(
			f.stores.Activities,
			f.stores.Broadcaster,
			f.retryPolicy(),
			f.logger.Named("activity_log"),
			f.stores.Sinks...,
		)
	}
	return f.activityLog
}

// RiskScoreService returns the risk score service (singleton)
func (f *ServiceFactory) RiskScoreService() *RiskScoreService {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.riskScoreService == nil {
		policy := scoring.DefaultPolicy()
		policy.PenalizeNewThreats = f.cfg.Scoring.PenalizeNewThreats

		activities := f.activityLogLocked()
		f.riskScoreService = NewRiskScoreService(RiskScoreDeps{
			Scores:      f.stores.Scores,
			Inventory:   f.stores.Inventory,
			History:     f.stores.History,
			Activities:  activities,
			Threats:     threat.NewAssessor(),
			Remediator:  threat.NewRemediator(f.stores.Inventory, activities, f.retryPolicy(), f.logger.Named("remediator")),
			Factors:     factors.NewAssessor(f.signals),
			Calculator:  scoring.NewCalculator(policy),
			Lanes:       f.lanes,
			Locker:      f.stores.Locker,
			Limiter:     f.stores.Limiter,
			Broadcaster: f.stores.Broadcaster,
			Retry:       f.retryPolicy(),
			AlertLimit:  f.cfg.Scoring.AlertLimit,
		}, f.logger.Named("risk_score"))
	}
	return f.riskScoreService
}

// EngagementService returns the engagement service (singleton)
func (f *ServiceFactory) EngagementService() *EngagementService {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.engagementService == nil {
		f.engagementService = NewEngagementService(
			f.stores.Engagement,
			f.activityLogLocked(),
			f.stores.Searcher,
			engagement.NewLedger(f.cfg.Engagement.ResetInterval),
			f.lanes,
			f.stores.Locker,
			f.stores.Broadcaster,
			f.retryPolicy(),
			f.logger.Named("engagement"),
		)
	}
	return f.engagementService
}
