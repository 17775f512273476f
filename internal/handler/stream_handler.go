package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"family-safety-score/internal/broadcast"
	"family-safety-score/internal/models"
	"family-safety-score/internal/util"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// Subscriber is the subscription side of broadcast.Hub.
type Subscriber interface {
	Subscribe(userID string) (<-chan models.Event, func(), error)
}

// StreamHandler pushes a user's score and engagement events over a websocket.
type StreamHandler struct {
	responder
	hub            Subscriber
	originPatterns []string
}

func NewStreamHandler(hub Subscriber, originPatterns []string, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		responder:      responder{logger: logger},
		hub:            hub,
		originPatterns: originPatterns,
	}
}

func (h *StreamHandler) RegisterRoutes(router chi.Router) {
	router.Get("/users/{userID}/stream", h.Stream)
}

// @Router /users/{userID}/stream [get]
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" || util.ContainsSuspicious(userID) {
		h.respondWithError(w, http.StatusBadRequest, errors.New("invalid user id"), "Invalid user ID")
		return
	}

	events, cancel, err := h.hub.Subscribe(userID)
	if err != nil {
		h.respondWithError(w, http.StatusServiceUnavailable, err, "Realtime updates unavailable")
		return
	}
	defer cancel()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", util.UserID(userID), util.ErrorField(err))
		return
	}
	defer conn.CloseNow()

	// the client only listens; CloseRead handles control frames and cancels
	// ctx when the peer goes away
	ctx := conn.CloseRead(r.Context())

	h.logger.Debug("Stream opened", util.UserID(userID))
	err = h.pump(ctx, conn, events)
	switch {
	case err == nil:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	case errors.Is(err, context.Canceled), websocket.CloseStatus(err) != -1:
	default:
		h.logger.Debug("Stream closed", util.UserID(userID), util.ErrorField(err))
	}
}

// pump writes events until the subscription ends (nil) or the connection fails.
func (h *StreamHandler) pump(ctx context.Context, conn *websocket.Conn, events <-chan models.Event) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, event)
			cancel()
			if err != nil {
				return err
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

var _ Subscriber = (*broadcast.Hub)(nil)
