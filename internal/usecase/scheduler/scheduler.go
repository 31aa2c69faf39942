package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/errandlink/errandlink-backend/internal/usecase/settlement"
)

const (
	// DefaultSettlementCron fires the settlement batch every 2 hours.
	DefaultSettlementCron = "0 */2 * * *"

	// DefaultStatusCron fires the cheap daily status log.
	DefaultStatusCron = "@daily"
)

// BatchRunner runs one settlement batch over all eligible tasks.
// settlement.Service satisfies this interface.
type BatchRunner interface {
	RunBatch(ctx context.Context) (settlement.BatchResult, error)
}

// Config holds the scheduling configuration surface
type Config struct {
	SettlementCron string         // cron expression for the batch tick, defaults to DefaultSettlementCron
	StatusCron     string         // cron expression for the status log, defaults to DefaultStatusCron
	Location       *time.Location // timezone for both expressions, defaults to UTC
}

// Status is a side-effect-free snapshot of the scheduler state
type Status struct {
	IsRunning    bool `json:"isRunning"`
	ActiveJobs   int  `json:"activeJobs"`
	BatchRunning bool `json:"batchRunning"`
}

// TriggerOutcome reports what happened to one requested batch run
type TriggerOutcome struct {
	Skipped bool // true when another batch held the overlap guard
	Result  settlement.BatchResult
	Err     error
}

// Scheduler drives the settlement batch on a recurring cron schedule.
// At most one batch runs at a time process-wide: ticks and manual
// triggers share a single atomic guard, and a tick that finds the guard
// held skips entirely rather than queueing behind the running batch.
type Scheduler struct {
	runner BatchRunner
	logger *slog.Logger
	cron   *cronlib.Cron

	running      atomic.Bool
	batchRunning atomic.Bool
}

// New creates a Scheduler with both cron entries registered.
// Returns an error if either cron expression does not parse.
func New(runner BatchRunner, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SettlementCron == "" {
		cfg.SettlementCron = DefaultSettlementCron
	}
	if cfg.StatusCron == "" {
		cfg.StatusCron = DefaultStatusCron
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	s := &Scheduler{
		runner: runner,
		logger: logger,
		cron:   cronlib.New(cronlib.WithLocation(loc)),
	}

	if _, err := s.cron.AddFunc(cfg.SettlementCron, s.tick); err != nil {
		return nil, fmt.Errorf("invalid settlement cron expression %q: %w", cfg.SettlementCron, err)
	}
	if _, err := s.cron.AddFunc(cfg.StatusCron, s.logStatus); err != nil {
		return nil, fmt.Errorf("invalid status cron expression %q: %w", cfg.StatusCron, err)
	}

	return s, nil
}

// Start begins firing ticks on the configured schedule
func (s *Scheduler) Start() {
	s.cron.Start()
	s.running.Store(true)
	s.logger.Info("settlement scheduler started",
		slog.Int("entries", len(s.cron.Entries())),
	)
}

// Stop halts future ticks. An in-flight batch is allowed to finish;
// Stop does not wait for it.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.running.Store(false)
	s.logger.Info("settlement scheduler stopped")
}

// Status returns the current scheduler state without side effects
func (s *Scheduler) Status() Status {
	return Status{
		IsRunning:    s.running.Load(),
		ActiveJobs:   len(s.cron.Entries()),
		BatchRunning: s.batchRunning.Load(),
	}
}

// TriggerNow runs a batch immediately through the same guarded path as
// a scheduled tick. A trigger that arrives while a batch is mid-run is
// reported as skipped, never queued.
func (s *Scheduler) TriggerNow() TriggerOutcome {
	return s.runGuarded()
}

// tick is the scheduled entry point for the settlement batch
func (s *Scheduler) tick() {
	s.runGuarded()
}

// runGuarded executes one batch under the overlap guard. The guard is
// released in a defer so neither a batch error nor a panic can leave it
// set and wedge all future ticks.
func (s *Scheduler) runGuarded() (outcome TriggerOutcome) {
	if !s.batchRunning.CompareAndSwap(false, true) {
		s.logger.Info("settlement batch already running, skipping tick")
		return TriggerOutcome{Skipped: true}
	}
	defer s.batchRunning.Store(false)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("settlement batch panicked: %v", r)
			s.logger.Error("settlement batch panicked", slog.Any("panic", r))
			outcome = TriggerOutcome{Err: err}
		}
	}()

	result, err := s.runner.RunBatch(context.Background())
	if err != nil {
		// Store-level failure; the next tick retries the whole batch.
		s.logger.Error("settlement batch failed", slog.String("error", err.Error()))
		return TriggerOutcome{Err: err}
	}

	return TriggerOutcome{Result: result}
}

// logStatus is the daily heartbeat entry. It never touches the
// settlement guard.
func (s *Scheduler) logStatus() {
	st := s.Status()
	s.logger.Info("settlement scheduler status",
		slog.Bool("is_running", st.IsRunning),
		slog.Int("active_jobs", st.ActiveJobs),
		slog.Bool("batch_running", st.BatchRunning),
	)
}
