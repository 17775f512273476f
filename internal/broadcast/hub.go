// Package broadcast fans score and engagement changes out to the realtime
// subscribers of a user. Delivery is best effort everywhere.
package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"family-safety-score/internal/models"
)

var ErrHubClosed = errors.New("broadcast hub is closed")

const defaultBuffer = 16

// Publisher forwards events to other service instances.
type Publisher interface {
	PublishEvent(ctx context.Context, event models.Event) error
}

// Hub is the subscription manager. It must be opened before use and closed
// on shutdown; Close ends every subscription.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]chan models.Event
	nextID uint64
	open   bool

	buffer    int
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:   make(map[string]map[uint64]chan models.Event),
		buffer: buffer,
		logger: logger,
		now:    time.Now,
	}
}

// SetPublisher routes Broadcast through p instead of local delivery. The
// instance then receives its own events back through a relay.
func (h *Hub) SetPublisher(p Publisher) {
	h.mu.Lock()
	h.publisher = p
	h.mu.Unlock()
}

func (h *Hub) Open() {
	h.mu.Lock()
	h.open = true
	h.mu.Unlock()
	h.logger.Info("Broadcast hub opened")
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return
	}
	h.open = false
	for userID, byID := range h.subs {
		for _, ch := range byID {
			close(ch)
		}
		delete(h.subs, userID)
	}
	h.logger.Info("Broadcast hub closed")
}

// Subscribe registers a listener for a user. The returned cancel func is
// idempotent and closes the channel.
func (h *Hub) Subscribe(userID string) (<-chan models.Event, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return nil, nil, ErrHubClosed
	}

	h.nextID++
	id := h.nextID
	ch := make(chan models.Event, h.buffer)
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[uint64]chan models.Event)
	}
	h.subs[userID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() { h.unsubscribe(userID, id) })
	}
	return ch, cancel, nil
}

func (h *Hub) unsubscribe(userID string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	byID, ok := h.subs[userID]
	if !ok {
		return
	}
	if ch, ok := byID[id]; ok {
		close(ch)
		delete(byID, id)
	}
	if len(byID) == 0 {
		delete(h.subs, userID)
	}
}

// Subscribers returns the number of live subscriptions for a user.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Deliver hands the event to local subscribers without blocking. Slow
// subscribers miss events. It returns how many subscribers received it.
func (h *Hub) Deliver(event models.Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.open {
		return 0
	}

	delivered := 0
	for _, ch := range h.subs[event.UserID] {
		select {
		case ch <- event:
			delivered++
		default:
			h.logger.Debug("Dropping event for slow subscriber",
				zap.String("user_id", event.UserID),
				zap.String("event_type", string(event.Type)))
		}
	}
	return delivered
}

// Broadcast publishes a user event. Failures are logged and never returned.
func (h *Hub) Broadcast(ctx context.Context, userID string, eventType models.EventType, payload interface{}) {
	event := models.Event{Type: eventType, UserID: userID, Payload: payload, At: h.now()}

	h.mu.RLock()
	pub := h.publisher
	h.mu.RUnlock()

	if pub != nil {
		err := pub.PublishEvent(ctx, event)
		if err == nil {
			return
		}
		h.logger.Warn("Failed to publish event, delivering locally",
			zap.String("user_id", userID),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
	h.Deliver(event)
}
