package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"family-safety-score/internal/broadcast"
	"family-safety-score/internal/config"
	"family-safety-score/internal/models"
	"family-safety-score/internal/service"
	"family-safety-score/internal/store"
)

type mockScores struct {
	mock.Mock
}

func (m *mockScores) Calculate(ctx context.Context, userID string) (*models.ScoreResult, error) {
	args := m.Called(userID)
	res, _ := args.Get(0).(*models.ScoreResult)
	return res, args.Error(1)
}

func (m *mockScores) Get(ctx context.Context, userID string) (*models.RiskScoreRecord, error) {
	args := m.Called(userID)
	rec, _ := args.Get(0).(*models.RiskScoreRecord)
	return rec, args.Error(1)
}

func (m *mockScores) History(ctx context.Context, userID string, limit int) ([]models.ScoreHistoryEntry, error) {
	args := m.Called(userID, limit)
	entries, _ := args.Get(0).([]models.ScoreHistoryEntry)
	return entries, args.Error(1)
}

type mockEngagement struct {
	mock.Mock
}

func (m *mockEngagement) GetScore(ctx context.Context, userID string) (*models.EngagementScoreRecord, error) {
	args := m.Called(userID)
	rec, _ := args.Get(0).(*models.EngagementScoreRecord)
	return rec, args.Error(1)
}

func (m *mockEngagement) AddPoints(ctx context.Context, userID string, req service.AddPointsRequest) (*models.EngagementScoreRecord, error) {
	args := m.Called(userID, req)
	rec, _ := args.Get(0).(*models.EngagementScoreRecord)
	return rec, args.Error(1)
}

func (m *mockEngagement) Activities(ctx context.Context, userID string, limit int) ([]models.ActivityRecord, error) {
	args := m.Called(userID, limit)
	out, _ := args.Get(0).([]models.ActivityRecord)
	return out, args.Error(1)
}

func (m *mockEngagement) SearchActivities(ctx context.Context, userID, query string, limit int) ([]models.ActivityRecord, error) {
	args := m.Called(userID, query, limit)
	out, _ := args.Get(0).([]models.ActivityRecord)
	return out, args.Error(1)
}

type healthFunc func(ctx context.Context) error

func (f healthFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func newTestRouter(scores ScoreService, engagement EngagementService, hub Subscriber, health HealthChecker) http.Handler {
	logger := zap.NewNop()
	routes := Routes{
		Score:      NewScoreHandler(scores, logger),
		Engagement: NewEngagementHandler(engagement, logger),
		Stream:     NewStreamHandler(hub, []string{"*"}, logger),
	}
	return NewRouter(config.ServerConfig{AllowOrigins: []string{"*"}}, routes, health, logger)
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp Response
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestRecalculate(t *testing.T) {
	scores := new(mockScores)
	scores.On("Calculate", "u1").Return(&models.ScoreResult{Score: 84, Grade: models.GradeB, Trend: models.TrendUp}, nil).Once()
	router := newTestRouter(scores, new(mockEngagement), broadcast.NewHub(1, zap.NewNop()), nil)

	rec, resp := do(t, router, http.MethodPost, "/api/v1/users/u1/risk-score/recalculate", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(84), data["score"])
	assert.Equal(t, "B", data["grade"])
	scores.AssertExpectations(t)
}

func TestRecalculateErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"rate limited", service.ErrRateLimited, http.StatusTooManyRequests},
		{"invalid user", service.ErrInvalidInput, http.StatusBadRequest},
		{"busy", service.ErrBusy, http.StatusConflict},
		{"store down", errors.Join(errors.New("load risk score"), store.ErrUnavailable), http.StatusServiceUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			scores := new(mockScores)
			scores.On("Calculate", "u1").Return(nil, tc.err)
			router := newTestRouter(scores, new(mockEngagement), broadcast.NewHub(1, zap.NewNop()), nil)

			rec, resp := do(t, router, http.MethodPost, "/api/v1/users/u1/risk-score/recalculate", "")
			assert.Equal(t, tc.status, rec.Code)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestRateLimitedSetsRetryAfter(t *testing.T) {
	scores := new(mockScores)
	scores.On("Calculate", "u1").Return(nil, service.ErrRateLimited)
	router := newTestRouter(scores, new(mockEngagement), broadcast.NewHub(1, zap.NewNop()), nil)

	rec, _ := do(t, router, http.MethodPost, "/api/v1/users/u1/risk-score/recalculate", "")
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestHistoryLimit(t *testing.T) {
	scores := new(mockScores)
	scores.On("History", "u1", 5).Return([]models.ScoreHistoryEntry{{UserID: "u1", Score: 80}}, nil)
	router := newTestRouter(scores, new(mockEngagement), broadcast.NewHub(1, zap.NewNop()), nil)

	rec, resp := do(t, router, http.MethodGet, "/api/v1/users/u1/risk-score/history?limit=5", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, 1, resp.Meta.Total)

	rec, _ = do(t, router, http.MethodGet, "/api/v1/users/u1/risk-score/history?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddActivity(t *testing.T) {
	engagement := new(mockEngagement)
	req := service.AddPointsRequest{ActivityType: models.ActivitySafeSettingEnabled, Points: 5, Description: "Safe search on"}
	engagement.On("AddPoints", "u1", req).Return(&models.EngagementScoreRecord{UserID: "u1", Score: 55}, nil).Once()
	router := newTestRouter(new(mockScores), engagement, broadcast.NewHub(1, zap.NewNop()), nil)

	rec, resp := do(t, router, http.MethodPost, "/api/v1/users/u1/engagement/activities",
		`{"activity_type":"safe_setting_enabled","points":5,"description":"Safe search on"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, resp.Success)
	engagement.AssertExpectations(t)

	rec, _ = do(t, router, http.MethodPost, "/api/v1/users/u1/engagement/activities", `{"activity_type":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, router, http.MethodPost, "/api/v1/users/u1/engagement/activities", `{"points":1,"bonus":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchActivities(t *testing.T) {
	engagement := new(mockEngagement)
	engagement.On("SearchActivities", "u1", "router", 0).Return([]models.ActivityRecord{{ID: "a1"}}, nil)
	router := newTestRouter(new(mockScores), engagement, broadcast.NewHub(1, zap.NewNop()), nil)

	rec, resp := do(t, router, http.MethodGet, "/api/v1/users/u1/activities/search?q=router", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Data, 1)
}

func TestHealth(t *testing.T) {
	router := newTestRouter(new(mockScores), new(mockEngagement), broadcast.NewHub(1, zap.NewNop()),
		healthFunc(func(context.Context) error { return nil }))
	rec, resp := do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	router = newTestRouter(new(mockScores), new(mockEngagement), broadcast.NewHub(1, zap.NewNop()),
		healthFunc(func(context.Context) error { return errors.New("scylla unreachable") }))
	rec, _ = do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNotFound(t *testing.T) {
	router := newTestRouter(new(mockScores), new(mockEngagement), broadcast.NewHub(1, zap.NewNop()), nil)
	rec, resp := do(t, router, http.MethodGet, "/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, resp.Success)
}

func TestRequireHTTPS(t *testing.T) {
	logger := zap.NewNop()
	router := NewRouter(config.ServerConfig{EnableTLS: true}, Routes{
		Score:      NewScoreHandler(new(mockScores), logger),
		Engagement: NewEngagementHandler(new(mockEngagement), logger),
	}, nil, logger)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusUpgradeRequired, rec.Code)
}

func TestStreamDeliversUserEvents(t *testing.T) {
	hub := broadcast.NewHub(4, zap.NewNop())
	hub.Open()
	defer hub.Close()

	srv := httptest.NewServer(newTestRouter(new(mockScores), new(mockEngagement), hub, nil))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/users/u1/stream", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool { return hub.Subscribers("u1") == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(ctx, "u2", models.EventRiskScoreUpdated, map[string]int{"score": 1})
	hub.Broadcast(ctx, "u1", models.EventRiskScoreUpdated, map[string]int{"score": 84})

	var got models.Event
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.Equal(t, models.EventRiskScoreUpdated, got.Type)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, map[string]interface{}{"score": float64(84)}, got.Payload)

	conn.Close(websocket.StatusNormalClosure, "")
	assert.Eventually(t, func() bool { return hub.Subscribers("u1") == 0 }, 2*time.Second, 10*time.Millisecond)
}
