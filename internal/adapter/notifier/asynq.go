package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/errandlink/errandlink-backend/internal/domain"
)

// TypeNotificationDeliver is the asynq task type for notification deliveries
const TypeNotificationDeliver = "notification:deliver"

const defaultQueue = "notifications"

// Payload is the JSON body of one queued notification delivery
type Payload struct {
	UserID        uuid.UUID               `json:"user_id"`
	Title         string                  `json:"title"`
	Message       string                  `json:"message"`
	Type          domain.NotificationType `json:"type"`
	RelatedTaskID uuid.UUID               `json:"related_task_id"`
}

// AsynqNotifier implements domain.Notifier by enqueueing deliveries on a
// Redis-backed queue. Enqueueing decouples settlement from delivery: a
// slow or failing push gateway never blocks a payout, it only delays the
// notification.
type AsynqNotifier struct {
	client *asynq.Client
	queue  string
}

// NewAsynqNotifier creates a notifier backed by the given Redis connection
func NewAsynqNotifier(redisOpt asynq.RedisClientOpt, queue string) *AsynqNotifier {
	if queue == "" {
		queue = defaultQueue
	}
	return &AsynqNotifier{
		client: asynq.NewClient(redisOpt),
		queue:  queue,
	}
}

// Notify enqueues one notification delivery
func (n *AsynqNotifier) Notify(ctx context.Context, userID uuid.UUID, title, message string, ntype domain.NotificationType, relatedTaskID uuid.UUID) error {
	payload := Payload{
		UserID:        userID,
		Title:         title,
		Message:       message,
		Type:          ntype,
		RelatedTaskID: relatedTaskID,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode notification payload: %w", err)
	}

	task := asynq.NewTask(TypeNotificationDeliver, payloadBytes)
	if _, err := n.client.EnqueueContext(ctx, task, asynq.Queue(n.queue), asynq.MaxRetry(3)); err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}

	return nil
}

// Close releases the underlying Redis connection
func (n *AsynqNotifier) Close() error {
	return n.client.Close()
}
