package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Processor drains the notification queue in the background.
// Delivery itself is a structured log line: push-gateway and messaging
// integrations live outside this repository.
type Processor struct {
	server *asynq.Server
	logger *slog.Logger
}

// ProcessorConfig tunes the background delivery workers
type ProcessorConfig struct {
	Concurrency int
	Queue       string
}

// NewProcessor creates a notification delivery processor
func NewProcessor(redisOpt asynq.RedisClientOpt, cfg ProcessorConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	queue := cfg.Queue
	if queue == "" {
		queue = defaultQueue
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
	})

	return &Processor{server: server, logger: logger}
}

// Start runs the delivery workers until Shutdown is called
func (p *Processor) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeNotificationDeliver, p.handleDeliver)
	return p.server.Run(mux)
}

// Shutdown stops the delivery workers
func (p *Processor) Shutdown() {
	p.server.Shutdown()
}

// handleDeliver processes one queued notification
func (p *Processor) handleDeliver(_ context.Context, t *asynq.Task) error {
	var payload Payload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		// Malformed payloads can never succeed, skip the retries.
		return fmt.Errorf("failed to decode notification payload: %w: %w", err, asynq.SkipRetry)
	}

	p.logger.Info("notification delivered",
		slog.String("user_id", payload.UserID.String()),
		slog.String("type", string(payload.Type)),
		slog.String("title", payload.Title),
		slog.String("related_task_id", payload.RelatedTaskID.String()),
	)

	return nil
}
