package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TaskStatus represents the lifecycle state of an errand task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusAccepted   TaskStatus = "accepted"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusDisputed   TaskStatus = "disputed"
	TaskStatusPaid       TaskStatus = "paid"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Currency represents the currency of a task reward
type Currency string

const (
	CurrencyKRW Currency = "KRW"
	CurrencyUSD Currency = "USD"
)

// DisputeStatus represents the state of a dispute record.
// The settlement engine never interprets it: the mere presence of a
// dispute blocks settlement, and resolution happens outside this system.
type DisputeStatus string

const (
	DisputeStatusPending  DisputeStatus = "pending"
	DisputeStatusResolved DisputeStatus = "resolved"
	DisputeStatusRejected DisputeStatus = "rejected"
)

// Dispute represents a dispute raised against a completed task
type Dispute struct {
	Reason      string
	Description string
	ReportedBy  uuid.UUID
	SubmittedAt time.Time
	Status      DisputeStatus
}

// Task represents an errand task entity in the domain layer.
// Accept/start/complete/dispute transitions happen outside the
// settlement engine; the engine only ever performs completed -> paid.
type Task struct {
	ID          uuid.UUID
	Title       string
	Status      TaskStatus
	Reward      decimal.Decimal
	Currency    Currency
	RequestedBy uuid.UUID
	AcceptedBy  *uuid.UUID // NULL until a performer accepts
	Dispute     *Dispute   // NULL unless a dispute was raised
	CreatedAt   time.Time
	UpdatedAt   time.Time // anchor for the dispute window; bumped on every status change
}

// Validate ensures the task adheres to domain rules
// Returns an error if validation fails
func (t *Task) Validate() error {
	if t.Title == "" {
		return errors.New("task title cannot be empty")
	}

	if t.Reward.IsNegative() {
		return errors.New("task reward cannot be negative")
	}

	switch t.Status {
	case TaskStatusPending, TaskStatusAccepted, TaskStatusInProgress,
		TaskStatusCompleted, TaskStatusDisputed, TaskStatusPaid, TaskStatusCancelled:
	default:
		return errors.New("task status must be a known lifecycle state")
	}

	switch t.Currency {
	case CurrencyKRW, CurrencyUSD:
	default:
		return errors.New("task currency must be KRW or USD")
	}

	// A task past the pending state must have a performer attached
	if t.Status != TaskStatusPending && t.Status != TaskStatusCancelled && t.AcceptedBy == nil {
		return errors.New("task must have a performer once accepted")
	}

	return nil
}

// HasDispute reports whether a dispute record is attached to the task.
// Presence alone blocks settlement, regardless of the dispute's own status.
func (t *Task) HasDispute() bool {
	return t.Dispute != nil
}
