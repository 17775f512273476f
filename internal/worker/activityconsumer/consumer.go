// Package activityconsumer credits engagement activities reported by other
// platform services through Kafka.
package activityconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"family-safety-score/internal/models"
	"family-safety-score/internal/retry"
	"family-safety-score/internal/service"
)

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// PointsAdder is implemented by service.EngagementService.
type PointsAdder interface {
	AddPoints(ctx context.Context, userID string, req service.AddPointsRequest) (*models.EngagementScoreRecord, error)
}

// Message is the payload of an engagement.activities record.
type Message struct {
	UserID       string              `json:"user_id"`
	ActivityType models.ActivityType `json:"activity_type"`
	Points       int                 `json:"points"`
	Description  string              `json:"description"`
}

// Consumer commits a message only once it is credited or known to be
// invalid, so store outages redeliver instead of losing points.
type Consumer struct {
	reader  MessageReader
	points  PointsAdder
	logger  *zap.Logger
	backoff time.Duration
}

func New(reader MessageReader, points PointsAdder, policy retry.Policy, logger *zap.Logger) *Consumer {
	return &Consumer{
		reader:  reader,
		points:  points,
		logger:  logger,
		backoff: policy.Cap,
	}
}

// Run consumes until ctx ends.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Activity consumer started")
	defer c.logger.Info("Activity consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Warn("Failed to fetch activity", zap.Error(err))
			if !c.sleep(ctx) {
				return nil
			}
			continue
		}

		if !c.handle(ctx, msg) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Warn("Failed to commit activity offset", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// handle processes one message and reports whether it may be committed.
// It only returns false when ctx ended before the message was credited.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) bool {
	var m Message
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		c.logger.Warn("Skipping malformed activity",
			zap.Int64("offset", msg.Offset),
			zap.Int("partition", msg.Partition),
			zap.Error(err))
		return true
	}

	req := service.AddPointsRequest{ActivityType: m.ActivityType, Points: m.Points, Description: m.Description}
	for {
		// AddPoints retries its store calls itself; this loop only redelivers
		_, err := c.points.AddPoints(ctx, m.UserID, req)
		switch {
		case err == nil:
			return true
		case errors.Is(err, service.ErrInvalidInput):
			c.logger.Warn("Skipping invalid activity",
				zap.String("user_id", m.UserID),
				zap.String("activity_type", string(m.ActivityType)),
				zap.Error(err))
			return true
		case ctx.Err() != nil:
			return false
		}

		c.logger.Error("Failed to credit activity, will retry",
			zap.String("user_id", m.UserID),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		if !c.sleep(ctx) {
			return false
		}
	}
}

func (c *Consumer) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.backoff):
		return true
	}
}
