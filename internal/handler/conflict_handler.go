package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-schedule-conflicts/internal/dto"
	"github.com/noah-isme/sma-schedule-conflicts/internal/models"
	appErrors "github.com/noah-isme/sma-schedule-conflicts/pkg/errors"
	"github.com/noah-isme/sma-schedule-conflicts/pkg/response"
)

type conflictAPI interface {
	CheckPlan(ctx context.Context, planID int64, clear bool) (*dto.PlanCheckResponse, error)
	CheckActivePlan(ctx context.Context, clear bool) (*dto.PlanCheckResponse, error)
	List(ctx context.Context, query dto.ConflictQuery) ([]models.Conflict, error)
	Get(ctx context.Context, id int64) (*models.Conflict, error)
	Suggestions(ctx context.Context, id int64) ([]dto.Suggestion, error)
	Resolve(ctx context.Context, id int64) (*dto.ResolveConflictResponse, error)
	Apply(ctx context.Context, id int64, req dto.ApplySuggestionRequest) (*models.Conflict, error)
	UpdateStatus(ctx context.Context, id int64, req dto.UpdateConflictStatusRequest) (*models.Conflict, error)
	AutoResolveAll(ctx context.Context, planID *int64) (dto.AutoResolveStats, error)
	Summary(ctx context.Context, planID *int64) (*dto.ConflictSummary, error)
}

type scanAPI interface {
	Enqueue(req dto.ScanRequest) (*dto.ScanJobResponse, error)
	Status(jobID string) (*dto.ScanJobStatus, error)
}

type reportAPI interface {
	Render(ctx context.Context, planID *int64, format dto.ExportFormat) (*dto.ConflictExport, error)
	Archive(ctx context.Context, planID *int64, format dto.ExportFormat) (*dto.ReportLink, error)
}

// reportOpener serves reports stored on local disk.
type reportOpener interface {
	OpenSigned(token string) (*os.File, string, error)
}

// ConflictHandler exposes conflict detection and resolution endpoints.
type ConflictHandler struct {
	conflicts conflictAPI
	scans     scanAPI
	reports   reportAPI
	downloads reportOpener
}

// NewConflictHandler constructs the handler. scans, reports and downloads may be nil.
func NewConflictHandler(conflicts conflictAPI, scans scanAPI, reports reportAPI, downloads reportOpener) *ConflictHandler {
	return &ConflictHandler{conflicts: conflicts, scans: scans, reports: reports, downloads: downloads}
}

// List godoc
// @Summary List conflicts
// @Tags Conflicts
// @Produce json
// @Param plan query int false "Schedule plan ID"
// @Param resolved query bool false "true for resolved/ignored, false for open conflicts"
// @Param type query string false "Conflict type name filter"
// @Param event query int false "Scheduled event ID"
// @Success 200 {object} response.Envelope
// @Router /conflicts [get]
func (h *ConflictHandler) List(c *gin.Context) {
	var query dto.ConflictQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	conflicts, err := h.conflicts.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflicts, nil, map[string]interface{}{"count": len(conflicts)})
}

// Get godoc
// @Summary Get conflict
// @Tags Conflicts
// @Produce json
// @Param id path int true "Conflict ID"
// @Success 200 {object} response.Envelope
// @Router /conflicts/{id} [get]
func (h *ConflictHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	conflict, err := h.conflicts.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflict, nil)
}

// Check godoc
// @Summary Scan the first active plan, or the plan given in the query
// @Tags Conflicts
// @Produce json
// @Param plan query int false "Schedule plan ID"
// @Param clear query bool false "Delete detected conflicts before scanning"
// @Success 200 {object} response.Envelope
// @Router /conflicts/check [post]
func (h *ConflictHandler) Check(c *gin.Context) {
	planID, ok := queryPlanID(c)
	if !ok {
		return
	}
	clear := c.Query("clear") == "true"

	var (
		result *dto.PlanCheckResponse
		err    error
	)
	if planID != nil {
		result, err = h.conflicts.CheckPlan(c.Request.Context(), *planID, clear)
	} else {
		result, err = h.conflicts.CheckActivePlan(c.Request.Context(), clear)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// CheckPlan godoc
// @Summary Scan a schedule plan for conflicts
// @Tags Conflicts
// @Produce json
// @Param id path int true "Schedule plan ID"
// @Param clear query bool false "Delete detected conflicts before scanning"
// @Success 200 {object} response.Envelope
// @Router /plans/{id}/conflicts/check [post]
func (h *ConflictHandler) CheckPlan(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	result, err := h.conflicts.CheckPlan(c.Request.Context(), id, c.Query("clear") == "true")
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Suggestions godoc
// @Summary Suggested solutions for a conflict
// @Tags Conflicts
// @Produce json
// @Param id path int true "Conflict ID"
// @Success 200 {object} response.Envelope
// @Router /conflicts/{id}/suggestions [get]
func (h *ConflictHandler) Suggestions(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	suggestions, err := h.conflicts.Suggestions(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, suggestions, nil)
}

// Resolve godoc
// @Summary Try to resolve a conflict automatically
// @Tags Conflicts
// @Produce json
// @Param id path int true "Conflict ID"
// @Success 200 {object} response.Envelope
// @Router /conflicts/{id}/resolve [post]
func (h *ConflictHandler) Resolve(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	result, err := h.conflicts.Resolve(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Apply godoc
// @Summary Apply one of the suggested solutions
// @Tags Conflicts
// @Accept json
// @Produce json
// @Param id path int true "Conflict ID"
// @Param payload body dto.ApplySuggestionRequest true "Suggestion index"
// @Success 200 {object} response.Envelope
// @Router /conflicts/{id}/apply [post]
func (h *ConflictHandler) Apply(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.ApplySuggestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	if req.ResolvedBy == "" {
		req.ResolvedBy = actorName(c)
	}
	conflict, err := h.conflicts.Apply(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflict, nil)
}

// UpdateStatus godoc
// @Summary Change the status of a conflict
// @Tags Conflicts
// @Accept json
// @Produce json
// @Param id path int true "Conflict ID"
// @Param payload body dto.UpdateConflictStatusRequest true "Status update"
// @Success 200 {object} response.Envelope
// @Router /conflicts/{id}/status [patch]
func (h *ConflictHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.UpdateConflictStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	if req.ResolvedBy == "" {
		req.ResolvedBy = actorName(c)
	}
	conflict, err := h.conflicts.UpdateStatus(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflict, nil)
}

// AutoResolve godoc
// @Summary Auto-resolve every eligible detected conflict
// @Tags Conflicts
// @Produce json
// @Param plan query int false "Schedule plan ID"
// @Success 200 {object} response.Envelope
// @Router /conflicts/auto-resolve [post]
func (h *ConflictHandler) AutoResolve(c *gin.Context) {
	planID, ok := queryPlanID(c)
	if !ok {
		return
	}
	stats, err := h.conflicts.AutoResolveAll(c.Request.Context(), planID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Summary godoc
// @Summary Conflict totals by status and severity
// @Tags Conflicts
// @Produce json
// @Param plan query int false "Schedule plan ID"
// @Success 200 {object} response.Envelope
// @Router /conflicts/summary [get]
func (h *ConflictHandler) Summary(c *gin.Context) {
	planID, ok := queryPlanID(c)
	if !ok {
		return
	}
	summary, err := h.conflicts.Summary(c.Request.Context(), planID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Scan godoc
// @Summary Enqueue an asynchronous conflict scan
// @Tags Conflicts
// @Accept json
// @Produce json
// @Param payload body dto.ScanRequest false "Scan options"
// @Success 202 {object} response.Envelope
// @Router /conflicts/scan [post]
func (h *ConflictHandler) Scan(c *gin.Context) {
	if h.scans == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrPreconditionFailed, "background scans are disabled"))
		return
	}
	var req dto.ScanRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
			return
		}
	}
	job, err := h.scans.Enqueue(req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// ScanStatus godoc
// @Summary Status of an asynchronous conflict scan
// @Tags Conflicts
// @Produce json
// @Param jobId path string true "Scan job ID"
// @Success 200 {object} response.Envelope
// @Router /conflicts/scan/{jobId} [get]
func (h *ConflictHandler) ScanStatus(c *gin.Context) {
	if h.scans == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrPreconditionFailed, "background scans are disabled"))
		return
	}
	status, err := h.scans.Status(c.Param("jobId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Export godoc
// @Summary Download a conflict report
// @Tags Conflicts
// @Produce octet-stream
// @Param plan query int false "Schedule plan ID"
// @Param format query string false "csv, pdf or xlsx"
// @Success 200 {file} file
// @Router /conflicts/export [get]
func (h *ConflictHandler) Export(c *gin.Context) {
	planID, format, ok := h.reportParams(c)
	if !ok {
		return
	}
	report, err := h.reports.Render(c.Request.Context(), planID, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", report.FileName))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, report.ContentType, report.Content)
}

// ArchiveReport godoc
// @Summary Store a conflict report and return a download link
// @Tags Conflicts
// @Produce json
// @Param plan query int false "Schedule plan ID"
// @Param format query string false "csv, pdf or xlsx"
// @Success 201 {object} response.Envelope
// @Router /conflicts/reports [post]
func (h *ConflictHandler) ArchiveReport(c *gin.Context) {
	planID, format, ok := h.reportParams(c)
	if !ok {
		return
	}
	link, err := h.reports.Archive(c.Request.Context(), planID, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, link)
}

// DownloadReport godoc
// @Summary Download a stored conflict report
// @Tags Conflicts
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Router /conflicts/reports/download [get]
func (h *ConflictHandler) DownloadReport(c *gin.Context) {
	if h.downloads == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "local report storage is not configured"))
		return
	}
	token := c.Query("token")
	if strings.TrimSpace(token) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, name, err := h.downloads.OpenSigned(token)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "report not found"))
			return
		}
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token"))
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read report"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", name))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), reportContentType(name), file, nil)
}

func (h *ConflictHandler) reportParams(c *gin.Context) (*int64, dto.ExportFormat, bool) {
	if h.reports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrPreconditionFailed, "conflict reports are disabled"))
		return nil, "", false
	}
	planID, ok := queryPlanID(c)
	if !ok {
		return nil, "", false
	}
	format := dto.ExportFormat(strings.ToLower(c.DefaultQuery("format", string(dto.ExportCSV))))
	return planID, format, true
}

func reportContentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(name, ".xlsx"):
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case strings.HasSuffix(name, ".csv"):
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid id"))
		return 0, false
	}
	return id, true
}

func queryPlanID(c *gin.Context) (*int64, bool) {
	raw := c.Query("plan")
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "plan must be a positive integer"))
		return nil, false
	}
	return &id, true
}
