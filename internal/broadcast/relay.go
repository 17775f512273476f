package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"family-safety-score/internal/models"
)

// MessageReader is the subset of *kafka.Reader the relay needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaRelay delivers events published by any instance to this instance's
// local subscribers. Every instance must read with its own consumer group.
type KafkaRelay struct {
	reader  MessageReader
	hub     *Hub
	logger  *zap.Logger
	backoff time.Duration
}

func NewKafkaRelay(reader MessageReader, hub *Hub, logger *zap.Logger) *KafkaRelay {
	return &KafkaRelay{
		reader:  reader,
		hub:     hub,
		logger:  logger,
		backoff: time.Second,
	}
}

// Run relays until ctx ends.
func (r *KafkaRelay) Run(ctx context.Context) error {
	r.logger.Info("Event relay started")
	defer r.logger.Info("Event relay stopped")

	for {
		msg, err := r.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			r.logger.Warn("Failed to fetch event", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.backoff):
			}
			continue
		}

		var event models.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil || event.UserID == "" {
			r.logger.Warn("Skipping malformed event",
				zap.Int64("offset", msg.Offset),
				zap.Int("partition", msg.Partition),
				zap.Error(err))
		} else {
			r.hub.Deliver(event)
		}

		if err := r.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			r.logger.Warn("Failed to commit event offset", zap.Error(err))
		}
	}
}
