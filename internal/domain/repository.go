package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TaskRepository defines the interface for task persistence operations
type TaskRepository interface {
	// FindByID retrieves a task by its ID
	// Returns ErrTaskNotFound if no task exists with that ID
	FindByID(ctx context.Context, id uuid.UUID) (*Task, error)

	// FindEligibleForSettlement retrieves all tasks that are completed,
	// carry no dispute, and were last updated at or before the cutoff.
	// This is a store-level prefilter; the settlement engine re-validates
	// eligibility before paying out.
	FindEligibleForSettlement(ctx context.Context, cutoff time.Time) ([]*Task, error)

	// Create creates a new task
	Create(ctx context.Context, task *Task) error

	// Save persists the task's current state and bumps updated_at
	Save(ctx context.Context, task *Task) error

	// MarkPaid atomically transitions a task from completed to paid.
	// The update is conditional on status = completed and no dispute being
	// present, so two concurrent settlers cannot both win. Returns true
	// when the row was transitioned by this call, false when the condition
	// did not match (already paid, disputed, or otherwise ineligible).
	MarkPaid(ctx context.Context, id uuid.UUID) (bool, error)
}

// NotificationType classifies a notification for the receiving client
type NotificationType string

const (
	NotificationTypePayment NotificationType = "payment"
	NotificationTypeSystem  NotificationType = "system"
)

// Notifier defines the interface for best-effort user notifications.
// Failures are logged by callers and never affect settlement outcomes.
type Notifier interface {
	// Notify delivers a notification to a user about a task
	Notify(ctx context.Context, userID uuid.UUID, title, message string, ntype NotificationType, relatedTaskID uuid.UUID) error
}
