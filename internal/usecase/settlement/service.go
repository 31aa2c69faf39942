package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/errandlink/errandlink-backend/internal/domain"
)

// DefaultNotifyTimeout bounds each notification delivery so a stuck
// notifier cannot stall a settlement or the batch around it.
const DefaultNotifyTimeout = 5 * time.Second

// SettleResult describes the outcome of a successful settlement call
type SettleResult struct {
	TaskID      uuid.UUID
	AlreadyPaid bool // true when the task was paid before this call (idempotent no-op)
	SettledAt   time.Time
}

// Service handles settlement of completed errand tasks.
// It owns the single status transition this system performs: completed -> paid.
type Service struct {
	TaskRepo domain.TaskRepository
	Notifier domain.Notifier

	// DisputeWindowHours is the minimum time a completed task must rest
	// before its reward is released. Defaults to DefaultDisputeWindowHours.
	DisputeWindowHours int

	// NotifyTimeout bounds each Notifier call.
	NotifyTimeout time.Duration

	// Clock returns the current time; tests substitute a fixed clock.
	Clock func() time.Time

	Logger *slog.Logger
}

// NewService creates a new settlement Service instance
func NewService(taskRepo domain.TaskRepository, notifier domain.Notifier) *Service {
	return &Service{
		TaskRepo:           taskRepo,
		Notifier:           notifier,
		DisputeWindowHours: DefaultDisputeWindowHours,
		NotifyTimeout:      DefaultNotifyTimeout,
		Clock:              func() time.Time { return time.Now().UTC() },
		Logger:             slog.Default(),
	}
}

// Settle releases the reward of a single task.
// Logic:
//  1. Load the task; domain.ErrTaskNotFound if absent
//  2. If the task is already paid, return a success no-op (idempotent short-circuit)
//  3. Re-validate eligibility against a fresh snapshot; return NotEligibleError
//     with the specific reason if it fails
//  4. Persist completed -> paid through the conditional MarkPaid update;
//     zero affected rows means a concurrent settler won the race, which is
//     reported as the same idempotent no-op
//  5. Notify requester and performer; notification failures are logged and
//     never fail or roll back the settlement
func (s *Service) Settle(ctx context.Context, taskID uuid.UUID) (*SettleResult, error) {
	task, err := s.TaskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if task.Status == domain.TaskStatusPaid {
		return &SettleResult{TaskID: taskID, AlreadyPaid: true}, nil
	}

	now := s.Clock()
	if !IsEligible(task, now, s.DisputeWindowHours) {
		return nil, &domain.NotEligibleError{
			TaskID: taskID.String(),
			Reason: ineligibilityReason(task, now, s.DisputeWindowHours),
		}
	}

	changed, err := s.TaskRepo.MarkPaid(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark task as paid: %w", err)
	}
	if !changed {
		// A concurrent batch tick or manual trigger got there first.
		return &SettleResult{TaskID: taskID, AlreadyPaid: true}, nil
	}

	s.Logger.Info("task settled",
		slog.String("task_id", taskID.String()),
		slog.String("reward", task.Reward.String()),
		slog.String("currency", string(task.Currency)),
	)

	s.notifyParties(ctx, task)

	return &SettleResult{TaskID: taskID, SettledAt: now}, nil
}

// notifyParties sends the payment notifications to both counterparties.
// Each delivery is bounded by NotifyTimeout and best-effort.
func (s *Service) notifyParties(ctx context.Context, task *domain.Task) {
	amount := fmt.Sprintf("%s %s", task.Reward.String(), task.Currency)

	s.notify(ctx, task.RequestedBy,
		"Reward released",
		fmt.Sprintf("The reward of %s for %q has been released to the performer.", amount, task.Title),
		task.ID,
	)

	if task.AcceptedBy != nil {
		s.notify(ctx, *task.AcceptedBy,
			"Reward paid",
			fmt.Sprintf("Your reward of %s for %q has been paid out.", amount, task.Title),
			task.ID,
		)
	}
}

func (s *Service) notify(ctx context.Context, userID uuid.UUID, title, message string, taskID uuid.UUID) {
	nctx, cancel := context.WithTimeout(ctx, s.NotifyTimeout)
	defer cancel()

	if err := s.Notifier.Notify(nctx, userID, title, message, domain.NotificationTypePayment, taskID); err != nil {
		s.Logger.Warn("notification delivery failed",
			slog.String("user_id", userID.String()),
			slog.String("task_id", taskID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// ineligibilityReason names why an ineligible task fails the check.
// Callers only invoke this after IsEligible returned false.
func ineligibilityReason(task *domain.Task, now time.Time, disputeWindowHours int) domain.IneligibilityReason {
	switch {
	case task.Status == domain.TaskStatusPaid:
		return domain.ReasonAlreadyPaid
	case task.Status != domain.TaskStatusCompleted:
		return domain.ReasonNotCompleted
	case task.HasDispute():
		return domain.ReasonDisputed
	default:
		return domain.ReasonWindowNotElapsed
	}
}

// IsNotFound reports whether err means the task does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrTaskNotFound)
}
