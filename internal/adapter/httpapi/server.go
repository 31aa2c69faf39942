package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/errandlink/errandlink-backend/internal/domain"
	"github.com/errandlink/errandlink-backend/internal/usecase/scheduler"
	"github.com/errandlink/errandlink-backend/internal/usecase/settlement"
)

// SettlementService is the slice of the settlement usecase the HTTP
// layer consumes
type SettlementService interface {
	ManualSettle(ctx context.Context, taskID uuid.UUID) (*settlement.SettleResult, error)
	CheckStatus(ctx context.Context, taskID uuid.UUID) (*settlement.StatusSnapshot, error)
}

// SchedulerControl is the slice of the scheduler the HTTP layer consumes
type SchedulerControl interface {
	Status() scheduler.Status
	TriggerNow() scheduler.TriggerOutcome
}

// Server exposes the payment endpoints over HTTP
type Server struct {
	Settlements SettlementService
	Scheduler   SchedulerControl
	Logger      *slog.Logger
}

// NewServer creates a new HTTP API server instance
func NewServer(settlements SettlementService, sched SchedulerControl, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Settlements: settlements,
		Scheduler:   sched,
		Logger:      logger,
	}
}

// Handler returns the assembled http.Handler with all payment routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /payments/{id}/manual", s.handleManualSettle)
	mux.HandleFunc("GET /payments/{id}/status", s.handleCheckStatus)
	mux.HandleFunc("GET /payments/scheduler/status", s.handleSchedulerStatus)
	mux.HandleFunc("POST /payments/scheduler/trigger", s.handleTriggerBatch)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

type manualSettleResponse struct {
	TaskID      string     `json:"taskId"`
	AlreadyPaid bool       `json:"alreadyPaid"`
	SettledAt   *time.Time `json:"settledAt,omitempty"`
}

type statusResponse struct {
	TaskID               string            `json:"taskId"`
	CanSettle            bool              `json:"canSettle"`
	CurrentStatus        domain.TaskStatus `json:"currentStatus"`
	HasDispute           bool              `json:"hasDispute"`
	HoursUntilSettlement *float64          `json:"hoursUntilSettlement"`
	LastUpdated          time.Time         `json:"lastUpdated"`
}

type triggerResponse struct {
	Skipped bool `json:"skipped"`
	Matched int  `json:"matched"`
	Settled int  `json:"settled"`
	Failed  int  `json:"failed"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// handleManualSettle settles a single task on request.
// 200 on success (including the already-paid no-op), 400 with the
// specific reason when the task is not eligible, 404 when it is unknown.
func (s *Server) handleManualSettle(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid task id"})
		return
	}

	result, err := s.Settlements.ManualSettle(r.Context(), taskID)
	if err != nil {
		s.writeSettleError(w, taskID, err)
		return
	}

	resp := manualSettleResponse{
		TaskID:      result.TaskID.String(),
		AlreadyPaid: result.AlreadyPaid,
	}
	if !result.SettledAt.IsZero() {
		resp.SettledAt = &result.SettledAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCheckStatus returns a read-only eligibility snapshot
func (s *Server) handleCheckStatus(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid task id"})
		return
	}

	snapshot, err := s.Settlements.CheckStatus(r.Context(), taskID)
	if err != nil {
		s.writeSettleError(w, taskID, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		TaskID:               snapshot.TaskID.String(),
		CanSettle:            snapshot.CanSettle,
		CurrentStatus:        snapshot.CurrentStatus,
		HasDispute:           snapshot.HasDispute,
		HoursUntilSettlement: snapshot.HoursUntilSettlement,
		LastUpdated:          snapshot.LastUpdated,
	})
}

// handleSchedulerStatus exposes the scheduler state without side effects
func (s *Server) handleSchedulerStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Scheduler.Status())
}

// handleTriggerBatch runs a batch immediately, respecting the overlap guard
func (s *Server) handleTriggerBatch(w http.ResponseWriter, _ *http.Request) {
	outcome := s.Scheduler.TriggerNow()
	if outcome.Err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "settlement batch failed"})
		return
	}

	writeJSON(w, http.StatusOK, triggerResponse{
		Skipped: outcome.Skipped,
		Matched: len(outcome.Result),
		Settled: outcome.Result.SettledCount(),
		Failed:  outcome.Result.FailedCount(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeSettleError maps usecase errors onto status codes:
// unknown task -> 404, ineligible -> 400 with reason, anything else -> 500
func (s *Server) writeSettleError(w http.ResponseWriter, taskID uuid.UUID, err error) {
	if settlement.IsNotFound(err) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "task not found"})
		return
	}
	if ne, ok := domain.AsNotEligible(err); ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  "task is not eligible for settlement",
			Reason: string(ne.Reason),
		})
		return
	}

	s.Logger.Error("settlement request failed",
		slog.String("task_id", taskID.String()),
		slog.String("error", err.Error()),
	)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
