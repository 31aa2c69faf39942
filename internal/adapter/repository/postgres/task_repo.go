package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/errandlink/errandlink-backend/internal/domain"
)

// taskRepository implements domain.TaskRepository
type taskRepository struct {
	db *DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *DB) domain.TaskRepository {
	return &taskRepository{db: db}
}

const taskColumns = `
	id, title, status, reward, currency, requested_by, accepted_by,
	dispute_reason, dispute_description, dispute_reported_by, dispute_submitted_at, dispute_status,
	created_at, updated_at
`

// FindByID retrieves a task by its ID
func (r *taskRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE id = $1
	`

	task, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task by ID: %w", err)
	}

	return task, nil
}

// FindEligibleForSettlement retrieves completed, undisputed tasks whose
// last update is at or before the cutoff. This mirrors the eligibility
// predicate at the store level; the settlement engine re-checks each task
// before paying out.
func (r *taskRepository) FindEligibleForSettlement(ctx context.Context, cutoff time.Time) ([]*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = $1
		  AND dispute_submitted_at IS NULL
		  AND updated_at <= $2
		ORDER BY updated_at
	`

	rows, err := r.db.QueryContext(ctx, query, string(domain.TaskStatusCompleted), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query settleable tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan settleable task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settleable tasks: %w", err)
	}

	return tasks, nil
}

// Create creates a new task
func (r *taskRepository) Create(ctx context.Context, task *domain.Task) error {
	query := `
		INSERT INTO tasks (
			id, title, status, reward, currency, requested_by, accepted_by,
			dispute_reason, dispute_description, dispute_reported_by, dispute_submitted_at, dispute_status,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
	`

	var acceptedBy interface{}
	if task.AcceptedBy != nil {
		acceptedBy = task.AcceptedBy
	}

	var reason, description, status interface{}
	var reportedBy, submittedAt interface{}
	if task.Dispute != nil {
		reason = task.Dispute.Reason
		description = task.Dispute.Description
		reportedBy = task.Dispute.ReportedBy
		submittedAt = task.Dispute.SubmittedAt
		status = string(task.Dispute.Status)
	}

	_, err := r.db.ExecContext(ctx, query,
		task.ID,
		task.Title,
		string(task.Status),
		task.Reward.String(),
		string(task.Currency),
		task.RequestedBy,
		acceptedBy,
		reason,
		description,
		reportedBy,
		submittedAt,
		status,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

// Save persists the task's current state and bumps updated_at
func (r *taskRepository) Save(ctx context.Context, task *domain.Task) error {
	query := `
		UPDATE tasks
		SET title = $2,
		    status = $3,
		    reward = $4,
		    currency = $5,
		    accepted_by = $6,
		    dispute_reason = $7,
		    dispute_description = $8,
		    dispute_reported_by = $9,
		    dispute_submitted_at = $10,
		    dispute_status = $11,
		    updated_at = NOW()
		WHERE id = $1
	`

	var acceptedBy interface{}
	if task.AcceptedBy != nil {
		acceptedBy = task.AcceptedBy
	}

	var reason, description, status interface{}
	var reportedBy, submittedAt interface{}
	if task.Dispute != nil {
		reason = task.Dispute.Reason
		description = task.Dispute.Description
		reportedBy = task.Dispute.ReportedBy
		submittedAt = task.Dispute.SubmittedAt
		status = string(task.Dispute.Status)
	}

	result, err := r.db.ExecContext(ctx, query,
		task.ID,
		task.Title,
		string(task.Status),
		task.Reward.String(),
		string(task.Currency),
		acceptedBy,
		reason,
		description,
		reportedBy,
		submittedAt,
		status,
	)
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return domain.ErrTaskNotFound
	}

	return nil
}

// MarkPaid atomically transitions a task from completed to paid.
// The WHERE clause is the concurrency guard: two settlers racing on the
// same task cannot both match the completed row, so only one observes an
// affected-row count of one and goes on to notify.
func (r *taskRepository) MarkPaid(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE tasks
		SET status = $2, updated_at = NOW()
		WHERE id = $1
		  AND status = $3
		  AND dispute_submitted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query,
		id,
		string(domain.TaskStatusPaid),
		string(domain.TaskStatusCompleted),
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark task %s as paid: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected == 1, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanTask
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanTask maps one tasks row onto the domain entity
func scanTask(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var rewardStr string
	var acceptedBy sql.NullString
	var disputeReason, disputeDescription, disputeReportedBy, disputeStatus sql.NullString
	var disputeSubmittedAt sql.NullTime

	err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Status,
		&rewardStr,
		&task.Currency,
		&task.RequestedBy,
		&acceptedBy,
		&disputeReason,
		&disputeDescription,
		&disputeReportedBy,
		&disputeSubmittedAt,
		&disputeStatus,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	// Parse reward (DECIMAL)
	reward, err := decimal.NewFromString(rewardStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse reward: %w", err)
	}
	task.Reward = reward

	// Parse accepted_by (nullable)
	if acceptedBy.Valid {
		acceptedUUID, err := uuid.Parse(acceptedBy.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse accepted_by: %w", err)
		}
		task.AcceptedBy = &acceptedUUID
	}

	// A dispute exists iff dispute_submitted_at is set
	if disputeSubmittedAt.Valid {
		dispute := domain.Dispute{
			Reason:      disputeReason.String,
			Description: disputeDescription.String,
			SubmittedAt: disputeSubmittedAt.Time,
			Status:      domain.DisputeStatus(disputeStatus.String),
		}
		if disputeReportedBy.Valid {
			reportedUUID, err := uuid.Parse(disputeReportedBy.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse dispute_reported_by: %w", err)
			}
			dispute.ReportedBy = reportedUUID
		}
		task.Dispute = &dispute
	}

	return &task, nil
}
