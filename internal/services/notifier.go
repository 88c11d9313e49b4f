package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"taamsimcha-backend/internal/models"
)

// EmailQueue is the Redis list the worker pool consumes.
const EmailQueue = "queue:email"

// UserChannel is the pub/sub channel carrying realtime events for one user.
func UserChannel(userID uuid.UUID) string {
	return fmt.Sprintf("user_updates:%s", userID.String())
}

// Notifier moves notifications off the request path: emails are queued for the
// worker pool and realtime events are published for the websocket hub.
type Notifier struct {
	redis  *redis.Client
	logger *zap.Logger
}

func NewNotifier(redisClient *redis.Client, logger *zap.Logger) *Notifier {
	return &Notifier{redis: redisClient, logger: logger}
}

func (n *Notifier) EnqueueEmail(ctx context.Context, job models.EmailJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode email job: %w", err)
	}
	if err := n.redis.RPush(ctx, EmailQueue, data).Err(); err != nil {
		return fmt.Errorf("failed to queue email job: %w", err)
	}
	n.logger.Debug("email job queued", zap.String("job_id", job.ID.String()), zap.String("type", job.Type))
	return nil
}

// PublishUpdate sends a WebSocket update via Redis pub/sub
func (n *Notifier) PublishUpdate(ctx context.Context, userID uuid.UUID, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := n.redis.Publish(ctx, UserChannel(userID), data).Err(); err != nil {
		n.logger.Warn("failed to publish update", zap.String("user_id", userID.String()), zap.Error(err))
	}
}
