package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/errandlink/errandlink-backend/internal/domain"
)

// TaskOutcome is the per-task result of one batch run
type TaskOutcome struct {
	TaskID      uuid.UUID
	Settled     bool
	AlreadyPaid bool
	Error       string // empty on success
}

// BatchResult aggregates the outcomes of one batch run
type BatchResult []TaskOutcome

// SettledCount returns the number of tasks the batch actually paid out
func (r BatchResult) SettledCount() int {
	n := 0
	for _, o := range r {
		if o.Settled {
			n++
		}
	}
	return n
}

// FailedCount returns the number of tasks whose settlement errored
func (r BatchResult) FailedCount() int {
	n := 0
	for _, o := range r {
		if o.Error != "" {
			n++
		}
	}
	return n
}

// RunBatch settles every task that currently qualifies.
// Logic:
//  1. Prefilter at the store: completed, undisputed, updated at or before
//     now minus the dispute window
//  2. Settle each match sequentially; a failure on one task never aborts
//     the rest, it is recorded in the result instead
//  3. Only a store-level query failure fails the batch itself
//
// The per-task eligibility re-check inside Settle remains the source of
// truth; the store filter exists for efficiency.
func (s *Service) RunBatch(ctx context.Context) (BatchResult, error) {
	now := s.Clock()
	cutoff := now.Add(-time.Duration(s.DisputeWindowHours) * time.Hour)

	tasks, err := s.TaskRepo.FindEligibleForSettlement(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks eligible for settlement: %w", err)
	}

	result := make(BatchResult, 0, len(tasks))
	for _, task := range tasks {
		outcome := TaskOutcome{TaskID: task.ID}

		res, err := s.Settle(ctx, task.ID)
		switch {
		case err != nil:
			outcome.Error = err.Error()
			if _, expected := domain.AsNotEligible(err); !expected {
				s.Logger.Error("batch settlement failed",
					slog.String("task_id", task.ID.String()),
					slog.String("error", err.Error()),
				)
			}
		case res.AlreadyPaid:
			outcome.AlreadyPaid = true
		default:
			outcome.Settled = true
		}

		result = append(result, outcome)
	}

	s.Logger.Info("settlement batch finished",
		slog.Int("matched", len(result)),
		slog.Int("settled", result.SettledCount()),
		slog.Int("failed", result.FailedCount()),
	)

	return result, nil
}
