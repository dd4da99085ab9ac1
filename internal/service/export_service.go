package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-schedule-conflicts/internal/dto"
	"github.com/noah-isme/sma-schedule-conflicts/internal/models"
	appErrors "github.com/noah-isme/sma-schedule-conflicts/pkg/errors"
	"github.com/noah-isme/sma-schedule-conflicts/pkg/export"
)

const (
	colID          = "ID"
	colType        = "Type"
	colSeverity    = "Severity"
	colStatus      = "Status"
	colEvent       = "Event"
	colDescription = "Description"
	colDetectedAt  = "Detected At"
	colResolvedAt  = "Resolved At"
	colResolvedBy  = "Resolved By"
	colNotes       = "Notes"

	reportTimeLayout = "2006-01-02 15:04"
)

var reportHeaders = []string{colID, colType, colSeverity, colStatus, colEvent, colDescription, colDetectedAt, colResolvedAt, colResolvedBy, colNotes}

type conflictLister interface {
	ListConflicts(ctx context.Context, filter models.ConflictFilter) ([]models.Conflict, error)
}

// reportStore is implemented by storage.LocalStorage and storage.MinIOStorage.
type reportStore interface {
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
	Link(ctx context.Context, name string) (string, time.Time, error)
}

// ExportService renders conflict reports and archives them.
type ExportService struct {
	conflicts conflictLister
	store     reportStore
	renderers map[dto.ExportFormat]export.Renderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService. store may be nil when archiving is unavailable.
func NewExportService(conflicts conflictLister, store reportStore, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		conflicts: conflicts,
		store:     store,
		renderers: map[dto.ExportFormat]export.Renderer{
			dto.ExportCSV:  export.NewCSVExporter(),
			dto.ExportPDF:  export.NewPDFExporter(colDescription, colNotes),
			dto.ExportXLSX: export.NewXLSXExporter(),
		},
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Render builds the conflict report for a plan, or all plans when planID is nil.
func (s *ExportService) Render(ctx context.Context, planID *int64, format dto.ExportFormat) (*dto.ConflictExport, error) {
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	conflicts, err := s.conflicts.ListConflicts(ctx, models.ConflictFilter{PlanID: planID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conflicts for export")
	}

	content, err := renderer.Render(buildConflictDataset(conflicts, planID))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render conflict report")
	}

	planPart := "all"
	if planID != nil {
		planPart = "plan-" + strconv.FormatInt(*planID, 10)
	}
	return &dto.ConflictExport{
		FileName:    fmt.Sprintf("conflicts_%s_%s.%s", planPart, s.now().Format("20060102_150405"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Content:     content,
	}, nil
}

// Archive renders the report, stores it and returns a time-limited link.
func (s *ExportService) Archive(ctx context.Context, planID *int64, format dto.ExportFormat) (*dto.ReportLink, error) {
	if s.store == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "report storage is not configured")
	}
	report, err := s.Render(ctx, planID, format)
	if err != nil {
		return nil, err
	}

	name := "reports/" + uuid.NewString() + "/" + report.FileName
	stored, err := s.store.Put(ctx, name, report.ContentType, report.Content)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store conflict report")
	}
	link, expiresAt, err := s.store.Link(ctx, stored)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link conflict report")
	}
	s.logger.Info("conflict report archived", zap.String("name", stored), zap.Int("bytes", len(report.Content)))
	return &dto.ReportLink{FileName: report.FileName, URL: link, ExpiresAt: expiresAt}, nil
}

func buildConflictDataset(conflicts []models.Conflict, planID *int64) export.Dataset {
	title := "Schedule conflicts - all plans"
	if planID != nil {
		title = fmt.Sprintf("Schedule conflicts - plan %d", *planID)
	}
	rows := make([]map[string]string, 0, len(conflicts))
	for _, c := range conflicts {
		row := map[string]string{
			colID:          strconv.FormatInt(c.ID, 10),
			colType:        c.TypeName,
			colSeverity:    string(c.TypeSeverity),
			colStatus:      string(c.Status),
			colDescription: c.Description,
			colDetectedAt:  c.DetectedAt.UTC().Format(reportTimeLayout),
			colNotes:       c.ResolutionNotes,
		}
		if c.ScheduledEventID != nil {
			row[colEvent] = strconv.FormatInt(*c.ScheduledEventID, 10)
		}
		if c.ResolvedAt != nil {
			row[colResolvedAt] = c.ResolvedAt.UTC().Format(reportTimeLayout)
		}
		if c.ResolvedBy != nil {
			row[colResolvedBy] = *c.ResolvedBy
		}
		rows = append(rows, row)
	}
	return export.Dataset{Title: title, Headers: reportHeaders, Rows: rows}
}
