package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/errandlink/errandlink-backend/internal/domain"
	"github.com/errandlink/errandlink-backend/internal/usecase/scheduler"
	"github.com/errandlink/errandlink-backend/internal/usecase/settlement"
)

// MockSettlementService is a mock implementation of SettlementService for testing
type MockSettlementService struct {
	mock.Mock
}

func (m *MockSettlementService) ManualSettle(ctx context.Context, taskID uuid.UUID) (*settlement.SettleResult, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.SettleResult), args.Error(1)
}

func (m *MockSettlementService) CheckStatus(ctx context.Context, taskID uuid.UUID) (*settlement.StatusSnapshot, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.StatusSnapshot), args.Error(1)
}

// MockSchedulerControl is a mock implementation of SchedulerControl for testing
type MockSchedulerControl struct {
	mock.Mock
}

func (m *MockSchedulerControl) Status() scheduler.Status {
	args := m.Called()
	return args.Get(0).(scheduler.Status)
}

func (m *MockSchedulerControl) TriggerNow() scheduler.TriggerOutcome {
	args := m.Called()
	return args.Get(0).(scheduler.TriggerOutcome)
}

func newTestServer(settlements *MockSettlementService, sched *MockSchedulerControl) *Server {
	return NewServer(settlements, sched, slog.New(slog.DiscardHandler))
}

func TestManualSettle_Success(t *testing.T) {
	mockService := new(MockSettlementService)
	mockSched := new(MockSchedulerControl)
	server := newTestServer(mockService, mockSched)

	taskID := uuid.New()
	settledAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mockService.On("ManualSettle", mock.Anything, taskID).
		Return(&settlement.SettleResult{TaskID: taskID, SettledAt: settledAt}, nil)

	req := httptest.NewRequest(http.MethodPost, "/payments/"+taskID.String()+"/manual", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp manualSettleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, taskID.String(), resp.TaskID)
	assert.False(t, resp.AlreadyPaid)
	require.NotNil(t, resp.SettledAt)
	assert.True(t, settledAt.Equal(*resp.SettledAt))
}

func TestManualSettle_AlreadyPaidNoOp(t *testing.T) {
	mockService := new(MockSettlementService)
	mockSched := new(MockSchedulerControl)
	server := newTestServer(mockService, mockSched)

	taskID := uuid.New()
	mockService.On("ManualSettle", mock.Anything, taskID).
		Return(&settlement.SettleResult{TaskID: taskID, AlreadyPaid: true}, nil)

	req := httptest.NewRequest(http.MethodPost, "/payments/"+taskID.String()+"/manual", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp manualSettleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.AlreadyPaid)
	assert.Nil(t, resp.SettledAt)
}

func TestManualSettle_IneligibleReturns400WithReason(t *testing.T) {
	mockService := new(MockSettlementService)
	mockSched := new(MockSchedulerControl)
	server := newTestServer(mockService, mockSched)

	taskID := uuid.New()
	mockService.On("ManualSettle", mock.Anything, taskID).
		Return(nil, &domain.NotEligibleError{TaskID: taskID.String(), Reason: domain.ReasonDisputed})

	req := httptest.NewRequest(http.MethodPost, "/payments/"+taskID.String()+"/manual", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(domain.ReasonDisputed), resp.Reason)
}

func TestManualSettle_UnknownTaskReturns404(t *testing.T) {
	mockService := new(MockSettlementService)
	mockSched := new(MockSchedulerControl)
	server := newTestServer(mockService, mockSched)

	taskID := uuid.New()
	mockService.On("ManualSettle", mock.Anything, taskID).Return(nil, domain.ErrTaskNotFound)

	req := httptest.NewRequest(http.MethodPost, "/payments/"+taskID.String()+"/manual", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestManualSettle_InvalidID(t *testing.T) {
	mockService := new(MockSettlementService)
	mockSched := new(MockSchedulerControl)
	server := newTestServer(mockService, mockSched)

	req := httptest.NewRequest(http.MethodPost, "/payments/not-a-uuid/manual", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	mockService.AssertNotCalled(t, "ManualSettle")
}

func TestManualSettle_UnexpectedErrorReturns500(t *testing.T) {
	mockService := new(MockSettlementService)
	mockSched := new(MockSchedulerControl)
	server := newTestServer(mockService, mockSched)

	taskID := uuid.New()
	mockService.On("ManualSettle", mock.Anything, taskID).
		Return(nil, errors.New("connection reset"))

	req := httptest.NewRequest(http.MethodPost, "/payments/"+taskID.String()+"/manual", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCheckStatus_ReturnsSnapshot(t *testing.T) {
	mockService := new(MockSettlementService)
	mockSched := new(MockSchedulerControl)
	server := newTestServer(mockService, mockSched)

	taskID := uuid.New()
	hours := 14.0
	lastUpdated := time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC)
	mockService.On("CheckStatus", mock.Anything, taskID).Return(&settlement.StatusSnapshot{
		TaskID:               taskID,
		CanSettle:            false,
		CurrentStatus:        domain.TaskStatusCompleted,
		HasDispute:           false,
		HoursUntilSettlement: &hours,
		LastUpdated:          lastUpdated,
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/payments/"+taskID.String()+"/status", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.CanSettle)
	assert.Equal(t, domain.TaskStatusCompleted, resp.CurrentStatus)
	require.NotNil(t, resp.HoursUntilSettlement)
	assert.InDelta(t, 14.0, *resp.HoursUntilSettlement, 0.001)
}

func TestCheckStatus_UnknownTaskReturns404(t *testing.T) {
	mockService := new(MockSettlementService)
	mockSched := new(MockSchedulerControl)
	server := newTestServer(mockService, mockSched)

	taskID := uuid.New()
	mockService.On("CheckStatus", mock.Anything, taskID).Return(nil, domain.ErrTaskNotFound)

	req := httptest.NewRequest(http.MethodGet, "/payments/"+taskID.String()+"/status", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSchedulerStatus(t *testing.T) {
	mockService := new(MockSettlementService)
	mockSched := new(MockSchedulerControl)
	server := newTestServer(mockService, mockSched)

	mockSched.On("Status").Return(scheduler.Status{IsRunning: true, ActiveJobs: 2})

	req := httptest.NewRequest(http.MethodGet, "/payments/scheduler/status", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp scheduler.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.IsRunning)
	assert.Equal(t, 2, resp.ActiveJobs)
	assert.False(t, resp.BatchRunning)
}

func TestTriggerBatch_ReportsOutcome(t *testing.T) {
	mockService := new(MockSettlementService)
	mockSched := new(MockSchedulerControl)
	server := newTestServer(mockService, mockSched)

	mockSched.On("TriggerNow").Return(scheduler.TriggerOutcome{
		Result: settlement.BatchResult{
			{TaskID: uuid.New(), Settled: true},
			{TaskID: uuid.New(), Error: "connection reset"},
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/payments/scheduler/trigger", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp triggerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Skipped)
	assert.Equal(t, 2, resp.Matched)
	assert.Equal(t, 1, resp.Settled)
	assert.Equal(t, 1, resp.Failed)
}

func TestTriggerBatch_SkippedWhileBatchRunning(t *testing.T) {
	mockService := new(MockSettlementService)
	mockSched := new(MockSchedulerControl)
	server := newTestServer(mockService, mockSched)

	mockSched.On("TriggerNow").Return(scheduler.TriggerOutcome{Skipped: true})

	req := httptest.NewRequest(http.MethodPost, "/payments/scheduler/trigger", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp triggerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Skipped)
	assert.Equal(t, 0, resp.Matched)
}

func TestTriggerBatch_BatchErrorReturns500(t *testing.T) {
	mockService := new(MockSettlementService)
	mockSched := new(MockSchedulerControl)
	server := newTestServer(mockService, mockSched)

	mockSched.On("TriggerNow").Return(scheduler.TriggerOutcome{Err: errors.New("store offline")})

	req := httptest.NewRequest(http.MethodPost, "/payments/scheduler/trigger", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
