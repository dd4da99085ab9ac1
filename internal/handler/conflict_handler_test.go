package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-schedule-conflicts/internal/dto"
	"github.com/noah-isme/sma-schedule-conflicts/internal/middleware"
	"github.com/noah-isme/sma-schedule-conflicts/internal/models"
	appErrors "github.com/noah-isme/sma-schedule-conflicts/pkg/errors"
)

type conflictServiceMock struct {
	checkPlanID *int64
	checkClear  bool
	listQuery   dto.ConflictQuery
	applyReq    dto.ApplySuggestionRequest
	statusReq   dto.UpdateConflictStatusRequest
	getErr      error
	resolveResp *dto.ResolveConflictResponse
	autoPlan    *int64
}

func (m *conflictServiceMock) CheckPlan(_ context.Context, planID int64, clear bool) (*dto.PlanCheckResponse, error) {
	m.checkPlanID = &planID
	m.checkClear = clear
	return &dto.PlanCheckResponse{PlanID: planID, ConflictsFound: 2}, nil
}

func (m *conflictServiceMock) CheckActivePlan(_ context.Context, clear bool) (*dto.PlanCheckResponse, error) {
	m.checkClear = clear
	return nil, appErrors.ErrActivePlanNotFound
}

func (m *conflictServiceMock) List(_ context.Context, query dto.ConflictQuery) ([]models.Conflict, error) {
	m.listQuery = query
	return []models.Conflict{{ID: 1}, {ID: 2}}, nil
}

func (m *conflictServiceMock) Get(_ context.Context, id int64) (*models.Conflict, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return &models.Conflict{ID: id}, nil
}

func (m *conflictServiceMock) Suggestions(context.Context, int64) ([]dto.Suggestion, error) {
	return []dto.Suggestion{{Type: "time_change", Action: dto.ActionChangeTime, Priority: dto.PriorityHigh}}, nil
}

func (m *conflictServiceMock) Resolve(context.Context, int64) (*dto.ResolveConflictResponse, error) {
	return m.resolveResp, nil
}

func (m *conflictServiceMock) Apply(_ context.Context, id int64, req dto.ApplySuggestionRequest) (*models.Conflict, error) {
	m.applyReq = req
	return &models.Conflict{ID: id, Status: models.ConflictResolved}, nil
}

func (m *conflictServiceMock) UpdateStatus(_ context.Context, id int64, req dto.UpdateConflictStatusRequest) (*models.Conflict, error) {
	m.statusReq = req
	return &models.Conflict{ID: id, Status: req.Status}, nil
}

func (m *conflictServiceMock) AutoResolveAll(_ context.Context, planID *int64) (dto.AutoResolveStats, error) {
	m.autoPlan = planID
	return dto.AutoResolveStats{TotalConflicts: 3, AutoResolved: 1, ManualRequired: 2}, nil
}

func (m *conflictServiceMock) Summary(_ context.Context, planID *int64) (*dto.ConflictSummary, error) {
	return &dto.ConflictSummary{PlanID: planID, Total: 4}, nil
}

type scanServiceMock struct {
	req dto.ScanRequest
}

func (m *scanServiceMock) Enqueue(req dto.ScanRequest) (*dto.ScanJobResponse, error) {
	m.req = req
	return &dto.ScanJobResponse{JobID: "job-1", PlanID: req.PlanID}, nil
}

func (m *scanServiceMock) Status(jobID string) (*dto.ScanJobStatus, error) {
	if jobID != "job-1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "scan job not found")
	}
	return &dto.ScanJobStatus{JobID: jobID, Status: "succeeded"}, nil
}

type reportServiceMock struct {
	format dto.ExportFormat
}

func (m *reportServiceMock) Render(_ context.Context, _ *int64, format dto.ExportFormat) (*dto.ConflictExport, error) {
	m.format = format
	return &dto.ConflictExport{FileName: "conflicts.csv", ContentType: "text/csv", Content: []byte("ID\n1\n")}, nil
}

func (m *reportServiceMock) Archive(_ context.Context, _ *int64, format dto.ExportFormat) (*dto.ReportLink, error) {
	m.format = format
	return &dto.ReportLink{FileName: "conflicts.pdf", URL: "/download?token=abc"}, nil
}

type reportOpenerMock struct {
	path string
	err  error
}

func (m reportOpenerMock) OpenSigned(string) (*os.File, string, error) {
	if m.err != nil {
		return nil, "", m.err
	}
	f, err := os.Open(m.path)
	return f, filepath.Base(m.path), err
}

func newTestContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestConflictHandlerList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &conflictServiceMock{}
	h := NewConflictHandler(svc, nil, nil, nil)

	c, w := newTestContext(http.MethodGet, "/conflicts?plan=7&resolved=false&type=teacher", nil)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.listQuery.PlanID)
	assert.Equal(t, int64(7), *svc.listQuery.PlanID)
	require.NotNil(t, svc.listQuery.Resolved)
	assert.False(t, *svc.listQuery.Resolved)
	assert.Equal(t, "teacher", svc.listQuery.Type)
}

func TestConflictHandlerGetInvalidID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewConflictHandler(&conflictServiceMock{}, nil, nil, nil)

	c, w := newTestContext(http.MethodGet, "/conflicts/abc", nil)
	c.Params = gin.Params{{Key: "id", Value: "abc"}}
	h.Get(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConflictHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewConflictHandler(&conflictServiceMock{getErr: appErrors.Clone(appErrors.ErrNotFound, "conflict not found")}, nil, nil, nil)

	c, w := newTestContext(http.MethodGet, "/conflicts/9", nil)
	c.Params = gin.Params{{Key: "id", Value: "9"}}
	h.Get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConflictHandlerCheckPlan(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &conflictServiceMock{}
	h := NewConflictHandler(svc, nil, nil, nil)

	c, w := newTestContext(http.MethodPost, "/plans/3/conflicts/check?clear=true", nil)
	c.Params = gin.Params{{Key: "id", Value: "3"}}
	h.CheckPlan(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.checkPlanID)
	assert.Equal(t, int64(3), *svc.checkPlanID)
	assert.True(t, svc.checkClear)

	var body struct {
		Data dto.PlanCheckResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Data.ConflictsFound)
}

func TestConflictHandlerCheckWithoutActivePlan(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewConflictHandler(&conflictServiceMock{}, nil, nil, nil)

	c, w := newTestContext(http.MethodPost, "/conflicts/check", nil)
	h.Check(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConflictHandlerResolveManual(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &conflictServiceMock{resolveResp: &dto.ResolveConflictResponse{
		Resolved:    false,
		Message:     "requires manual resolution",
		Suggestions: []dto.Suggestion{{Type: "manual_resolution", Action: dto.ActionManualIntervention, Priority: dto.PriorityMedium}},
	}}
	h := NewConflictHandler(svc, nil, nil, nil)

	c, w := newTestContext(http.MethodPost, "/conflicts/5/resolve", nil)
	c.Params = gin.Params{{Key: "id", Value: "5"}}
	h.Resolve(c)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data dto.ResolveConflictResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Data.Resolved)
	assert.Len(t, body.Data.Suggestions, 1)
}

func TestConflictHandlerApplyDefaultsResolvedBy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &conflictServiceMock{}
	h := NewConflictHandler(svc, nil, nil, nil)

	payload, _ := json.Marshal(dto.ApplySuggestionRequest{SuggestionIndex: 1})
	c, w := newTestContext(http.MethodPost, "/conflicts/5/apply", payload)
	c.Params = gin.Params{{Key: "id", Value: "5"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u-1", Email: "planner@example.com", Role: models.RoleScheduler})
	h.Apply(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, svc.applyReq.SuggestionIndex)
	assert.Equal(t, "planner@example.com", svc.applyReq.ResolvedBy)
}

func TestConflictHandlerUpdateStatusRejectsBadBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewConflictHandler(&conflictServiceMock{}, nil, nil, nil)

	c, w := newTestContext(http.MethodPatch, "/conflicts/5/status", []byte("{"))
	c.Params = gin.Params{{Key: "id", Value: "5"}}
	h.UpdateStatus(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConflictHandlerUpdateStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &conflictServiceMock{}
	h := NewConflictHandler(svc, nil, nil, nil)

	payload, _ := json.Marshal(dto.UpdateConflictStatusRequest{Status: models.ConflictIgnored, Notes: "accepted", ResolvedBy: "ops"})
	c, w := newTestContext(http.MethodPatch, "/conflicts/5/status", payload)
	c.Params = gin.Params{{Key: "id", Value: "5"}}
	h.UpdateStatus(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ConflictIgnored, svc.statusReq.Status)
	assert.Equal(t, "ops", svc.statusReq.ResolvedBy)
}

func TestConflictHandlerAutoResolveInvalidPlan(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewConflictHandler(&conflictServiceMock{}, nil, nil, nil)

	c, w := newTestContext(http.MethodPost, "/conflicts/auto-resolve?plan=-1", nil)
	h.AutoResolve(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConflictHandlerAutoResolve(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &conflictServiceMock{}
	h := NewConflictHandler(svc, nil, nil, nil)

	c, w := newTestContext(http.MethodPost, "/conflicts/auto-resolve?plan=4", nil)
	h.AutoResolve(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.autoPlan)
	assert.Equal(t, int64(4), *svc.autoPlan)
}

func TestConflictHandlerScan(t *testing.T) {
	gin.SetMode(gin.TestMode)
	scans := &scanServiceMock{}
	h := NewConflictHandler(&conflictServiceMock{}, scans, nil, nil)

	c, w := newTestContext(http.MethodPost, "/conflicts/scan", []byte(`{"planId":2,"clearDetected":true}`))
	c.Request.ContentLength = int64(len(`{"planId":2,"clearDetected":true}`))
	h.Scan(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.NotNil(t, scans.req.PlanID)
	assert.Equal(t, int64(2), *scans.req.PlanID)
	assert.True(t, scans.req.ClearDetected)

	c, w = newTestContext(http.MethodGet, "/conflicts/scan/unknown", nil)
	c.Params = gin.Params{{Key: "jobId", Value: "unknown"}}
	h.ScanStatus(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConflictHandlerScanDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewConflictHandler(&conflictServiceMock{}, nil, nil, nil)

	c, w := newTestContext(http.MethodPost, "/conflicts/scan", nil)
	h.Scan(c)

	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestConflictHandlerExport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reports := &reportServiceMock{}
	h := NewConflictHandler(&conflictServiceMock{}, nil, reports, nil)

	c, w := newTestContext(http.MethodGet, "/conflicts/export?plan=1", nil)
	h.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.ExportCSV, reports.format)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "conflicts.csv")
	assert.Equal(t, "ID\n1\n", w.Body.String())
}

func TestConflictHandlerArchiveReport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reports := &reportServiceMock{}
	h := NewConflictHandler(&conflictServiceMock{}, nil, reports, nil)

	c, w := newTestContext(http.MethodPost, "/conflicts/reports?format=PDF", nil)
	h.ArchiveReport(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, dto.ExportPDF, reports.format)
}

func TestConflictHandlerDownloadReport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	path := filepath.Join(t.TempDir(), "conflicts.csv")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o600))
	h := NewConflictHandler(&conflictServiceMock{}, nil, nil, reportOpenerMock{path: path})

	c, w := newTestContext(http.MethodGet, "/conflicts/reports/download?token=abc", nil)
	h.DownloadReport(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "data", w.Body.String())
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
}

func TestConflictHandlerDownloadReportErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := NewConflictHandler(&conflictServiceMock{}, nil, nil, reportOpenerMock{err: os.ErrNotExist})
	c, w := newTestContext(http.MethodGet, "/conflicts/reports/download?token=abc", nil)
	h.DownloadReport(c)
	assert.Equal(t, http.StatusNotFound, w.Code)

	h = NewConflictHandler(&conflictServiceMock{}, nil, nil, reportOpenerMock{err: assert.AnError})
	c, w = newTestContext(http.MethodGet, "/conflicts/reports/download?token=abc", nil)
	h.DownloadReport(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	c, w = newTestContext(http.MethodGet, "/conflicts/reports/download", nil)
	h.DownloadReport(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
