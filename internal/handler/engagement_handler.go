package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"family-safety-score/internal/models"
	"family-safety-score/internal/service"
)

const maxBodyBytes = 16 << 10

// EngagementService is what the engagement endpoints need from
// service.EngagementService.
type EngagementService interface {
	GetScore(ctx context.Context, userID string) (*models.EngagementScoreRecord, error)
	AddPoints(ctx context.Context, userID string, req service.AddPointsRequest) (*models.EngagementScoreRecord, error)
	Activities(ctx context.Context, userID string, limit int) ([]models.ActivityRecord, error)
	SearchActivities(ctx context.Context, userID, query string, limit int) ([]models.ActivityRecord, error)
}

// EngagementHandler handles HTTP requests for engagement scores and the
// activity log
type EngagementHandler struct {
	responder
	engagement EngagementService
}

func NewEngagementHandler(engagement EngagementService, logger *zap.Logger) *EngagementHandler {
	return &EngagementHandler{responder: responder{logger: logger}, engagement: engagement}
}

func (h *EngagementHandler) RegisterRoutes(router chi.Router) {
	router.Get("/users/{userID}/engagement", h.GetScore)
	router.Post("/users/{userID}/engagement/activities", h.AddActivity)
	router.Get("/users/{userID}/activities", h.ListActivities)
	router.Get("/users/{userID}/activities/search", h.SearchActivities)
}

// @Router /users/{userID}/engagement [get]
func (h *EngagementHandler) GetScore(w http.ResponseWriter, r *http.Request) {
	rec, err := h.engagement.GetScore(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to get engagement score")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(rec, "Engagement score retrieved successfully"))
}

// @Router /users/{userID}/engagement/activities [post]
func (h *EngagementHandler) AddActivity(w http.ResponseWriter, r *http.Request) {
	var req service.AddPointsRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	rec, err := h.engagement.AddPoints(r.Context(), chi.URLParam(r, "userID"), req)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to add engagement points")
		return
	}
	h.respondWithJSON(w, http.StatusCreated, successResponse(rec, "Engagement points added successfully"))
}

// @Router /users/{userID}/activities [get]
func (h *EngagementHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid limit")
		return
	}

	activities, err := h.engagement.Activities(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to list activities")
		return
	}
	h.respondWithJSON(w, http.StatusOK, listResponse(activities, len(activities), limit, "Activities retrieved successfully"))
}

// @Router /users/{userID}/activities/search [get]
func (h *EngagementHandler) SearchActivities(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid limit")
		return
	}

	activities, err := h.engagement.SearchActivities(r.Context(), chi.URLParam(r, "userID"), r.URL.Query().Get("q"), limit)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to search activities")
		return
	}
	h.respondWithJSON(w, http.StatusOK, listResponse(activities, len(activities), limit, "Activities retrieved successfully"))
}
