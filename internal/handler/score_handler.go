package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"family-safety-score/internal/models"
	"family-safety-score/internal/service"
	"family-safety-score/internal/util"
)

// ScoreService is what the score endpoints need from service.RiskScoreService.
type ScoreService interface {
	Calculate(ctx context.Context, userID string) (*models.ScoreResult, error)
	Get(ctx context.Context, userID string) (*models.RiskScoreRecord, error)
	History(ctx context.Context, userID string, limit int) ([]models.ScoreHistoryEntry, error)
}

// ScoreHandler handles HTTP requests for risk scores
type ScoreHandler struct {
	responder
	scores ScoreService
}

func NewScoreHandler(scores ScoreService, logger *zap.Logger) *ScoreHandler {
	return &ScoreHandler{responder: responder{logger: logger}, scores: scores}
}

func (h *ScoreHandler) RegisterRoutes(router chi.Router) {
	router.Get("/users/{userID}/risk-score", h.GetScore)
	router.Post("/users/{userID}/risk-score/recalculate", h.Recalculate)
	router.Get("/users/{userID}/risk-score/history", h.History)
}

// GetScore returns the stored score without recalculating.
// @Router /users/{userID}/risk-score [get]
func (h *ScoreHandler) GetScore(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	record, err := h.scores.Get(r.Context(), userID)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to get risk score")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(record, "Risk score retrieved successfully"))
}

// Recalculate runs a scoring pass for the user.
// @Router /users/{userID}/risk-score/recalculate [post]
func (h *ScoreHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	userID := chi.URLParam(r, "userID")

	result, err := h.scores.Calculate(r.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrRateLimited) {
			w.Header().Set("Retry-After", "60")
		}
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to calculate risk score")
		return
	}

	message := "Risk score calculated successfully"
	if result.Fallback {
		message = "Risk score unchanged, some checks were unavailable"
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(result, message))
	h.logger.Debug("Risk score recalculated via HTTP",
		util.UserID(userID),
		util.Bool("fallback", result.Fallback),
		util.Duration("duration", time.Since(startTime)),
	)
}

// History lists recent scoring passes, newest first.
// @Router /users/{userID}/risk-score/history [get]
func (h *ScoreHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit, err := queryLimit(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid limit")
		return
	}

	entries, err := h.scores.History(r.Context(), userID, limit)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to get score history")
		return
	}
	h.respondWithJSON(w, http.StatusOK, listResponse(entries, len(entries), limit, "Score history retrieved successfully"))
}
