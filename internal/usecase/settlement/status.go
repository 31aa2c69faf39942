package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/errandlink/errandlink-backend/internal/domain"
)

// StatusSnapshot is a read-only view of a task's settlement eligibility
type StatusSnapshot struct {
	TaskID               uuid.UUID
	CanSettle            bool
	CurrentStatus        domain.TaskStatus
	HasDispute           bool
	HoursUntilSettlement *float64 // nil when not completed or disputed
	LastUpdated          time.Time
}

// ManualSettle settles a single task on operator or user request.
// It runs the exact same eligibility rules as the scheduled batch;
// callers receive domain.ErrTaskNotFound or a NotEligibleError with the
// specific reason when the task does not qualify. Settling an already
// paid task succeeds as a no-op.
func (s *Service) ManualSettle(ctx context.Context, taskID uuid.UUID) (*SettleResult, error) {
	return s.Settle(ctx, taskID)
}

// CheckStatus reports whether a task can currently be settled and how
// long remains until it can. Read-only, no mutation.
func (s *Service) CheckStatus(ctx context.Context, taskID uuid.UUID) (*StatusSnapshot, error) {
	task, err := s.TaskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	now := s.Clock()
	return &StatusSnapshot{
		TaskID:               task.ID,
		CanSettle:            IsEligible(task, now, s.DisputeWindowHours),
		CurrentStatus:        task.Status,
		HasDispute:           task.HasDispute(),
		HoursUntilSettlement: HoursRemaining(task, now, s.DisputeWindowHours),
		LastUpdated:          task.UpdatedAt,
	}, nil
}
