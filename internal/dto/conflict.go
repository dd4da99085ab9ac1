package dto

import (
	"time"

	"github.com/noah-isme/sma-schedule-conflicts/internal/models"
)

// ConflictDescriptor is a single finding produced by detection, before persistence.
type ConflictDescriptor struct {
	Type               models.ConflictKind     `json:"type"`
	Severity           models.ConflictSeverity `json:"severity"`
	EventID            int64                   `json:"eventId"`
	Description        string                  `json:"description"`
	ConflictingEventID *int64                  `json:"conflictingEventId,omitempty"`
	Blocking           bool                    `json:"blocking"`
}

// SuggestionAction is the mutation a suggestion would perform.
type SuggestionAction string

const (
	ActionChangeTime         SuggestionAction = "change_time"
	ActionChangeTeacher      SuggestionAction = "change_teacher"
	ActionChangeRoom         SuggestionAction = "change_room"
	ActionManualIntervention SuggestionAction = "manual_intervention"
)

// SuggestionPriority ranks suggestions within a strategy.
type SuggestionPriority string

const (
	PriorityHigh   SuggestionPriority = "high"
	PriorityMedium SuggestionPriority = "medium"
	PriorityLow    SuggestionPriority = "low"
)

// TimeProposal is a candidate weekday and time window.
type TimeProposal struct {
	Weekday      int          `json:"weekday"`
	StartTime    models.Clock `json:"startTime"`
	EndTime      models.Clock `json:"endTime"`
	TimeSlotName string       `json:"timeSlotName"`
}

// Suggestion is a proposed remediation for a conflict.
type Suggestion struct {
	Type         string             `json:"type"`
	Description  string             `json:"description"`
	Action       SuggestionAction   `json:"action"`
	Priority     SuggestionPriority `json:"priority"`
	NewTime      *TimeProposal      `json:"newTime,omitempty"`
	NewTeacherID *int64             `json:"newTeacherId,omitempty"`
	NewRoomID    *int64             `json:"newRoomId,omitempty"`
}

// AutoResolveStats tallies a batch auto-resolution run.
type AutoResolveStats struct {
	TotalConflicts  int `json:"totalConflicts"`
	AutoResolved    int `json:"autoResolved"`
	ManualRequired  int `json:"manualRequired"`
	FailedToResolve int `json:"failedToResolve"`
}

// ConflictSummary counts stored conflicts by status and severity.
type ConflictSummary struct {
	PlanID     *int64                          `json:"planId,omitempty"`
	Total      int                             `json:"total"`
	ByStatus   map[models.ConflictStatus]int   `json:"byStatus"`
	BySeverity map[models.ConflictSeverity]int `json:"bySeverity"`
}

// PlanCheckResponse is returned after scanning a plan.
type PlanCheckResponse struct {
	PlanID         int64             `json:"planId"`
	ConflictsFound int               `json:"conflictsFound"`
	Conflicts      []models.Conflict `json:"conflicts"`
	Partial        bool              `json:"partial"`
}

// ResolveConflictResponse reports the outcome of resolving a single conflict.
type ResolveConflictResponse struct {
	Resolved    bool         `json:"resolved"`
	Message     string       `json:"message"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}

// ConflictQuery mirrors the list endpoint filters.
type ConflictQuery struct {
	PlanID   *int64 `form:"plan"`
	Resolved *bool  `form:"resolved"`
	Type     string `form:"type"`
	EventID  *int64 `form:"event"`
}

// ApplySuggestionRequest applies one of the current suggestions for a conflict.
type ApplySuggestionRequest struct {
	SuggestionIndex int    `json:"suggestionIndex" validate:"min=0"`
	ResolvedBy      string `json:"resolvedBy" validate:"omitempty,max=150"`
}

// UpdateConflictStatusRequest manually transitions a conflict.
type UpdateConflictStatusRequest struct {
	Status     models.ConflictStatus `json:"status" validate:"required,oneof=detected acknowledged in_progress resolved ignored"`
	Notes      string                `json:"notes" validate:"omitempty,max=2000"`
	ResolvedBy string                `json:"resolvedBy" validate:"omitempty,max=150"`
}

// ScanRequest enqueues an asynchronous scan.
type ScanRequest struct {
	PlanID        *int64 `json:"planId" validate:"omitempty,min=1"`
	ClearDetected bool   `json:"clearDetected"`
}

// ScanJobResponse acknowledges an enqueued scan.
type ScanJobResponse struct {
	JobID  string `json:"jobId"`
	PlanID *int64 `json:"planId,omitempty"`
}

// ExportFormat selects the conflict report encoding.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportPDF  ExportFormat = "pdf"
	ExportXLSX ExportFormat = "xlsx"
)

// ConflictExport is a rendered conflict report.
type ConflictExport struct {
	FileName    string
	ContentType string
	Content     []byte
}

// ReportLink points at an archived conflict report.
type ReportLink struct {
	FileName  string    `json:"fileName"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ScanJobStatus reports the progress of an asynchronous scan.
type ScanJobStatus struct {
	JobID          string     `json:"jobId"`
	PlanID         *int64     `json:"planId,omitempty"`
	Status         string     `json:"status"`
	ConflictsFound int        `json:"conflictsFound"`
	Partial        bool       `json:"partial"`
	Error          string     `json:"error,omitempty"`
	EnqueuedAt     time.Time  `json:"enqueuedAt"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
}
