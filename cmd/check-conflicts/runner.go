package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-schedule-conflicts/internal/dto"
	"github.com/noah-isme/sma-schedule-conflicts/internal/models"
	appErrors "github.com/noah-isme/sma-schedule-conflicts/pkg/errors"
)

const (
	suggestedConflicts     = 10
	suggestionsPerConflict = 3
)

type conflictChecker interface {
	Plan(ctx context.Context, planID int64) (*models.SchedulePlan, error)
	ClearStale(ctx context.Context, olderThan time.Duration) (int64, error)
	ClearDetected(ctx context.Context, planID *int64) (int64, error)
	DetectAndSave(ctx context.Context, planID *int64) ([]models.Conflict, bool, error)
	Suggestions(ctx context.Context, id int64) ([]dto.Suggestion, error)
	AutoResolveAll(ctx context.Context, planID *int64) (dto.AutoResolveStats, error)
	Summary(ctx context.Context, planID *int64) (*dto.ConflictSummary, error)
}

type reportRenderer interface {
	Render(ctx context.Context, planID *int64, format dto.ExportFormat) (*dto.ConflictExport, error)
	Archive(ctx context.Context, planID *int64, format dto.ExportFormat) (*dto.ReportLink, error)
}

// runner prints the textual report. Failures of single steps are reported and the run continues.
type runner struct {
	checker    conflictChecker
	reports    reportRenderer
	archive    bool
	out        io.Writer
	logger     *zap.Logger
	staleAfter time.Duration
	writeFile  func(name string, data []byte, perm os.FileMode) error
	now        func() time.Time
}

func (r *runner) printf(format string, args ...interface{}) {
	fmt.Fprintf(r.out, format, args...)
}

func (r *runner) run(ctx context.Context, opts options) {
	started := r.now()
	planID := opts.plan()

	if planID != nil {
		plan, err := r.checker.Plan(ctx, *planID)
		if err != nil {
			if appErrors.FromError(err).Status == http.StatusNotFound {
				r.printf("Schedule plan %d not found\n", *planID)
				return
			}
			r.printf("Failed to load schedule plan %d: %v\n", *planID, err)
			return
		}
		r.printf("Checking conflicts for plan: %s\n", plan.Name)
	} else {
		r.printf("Checking conflicts for all active events\n")
	}

	if opts.ClearOld {
		deleted, err := r.checker.ClearStale(ctx, r.staleAfter)
		if err != nil {
			r.logger.Warn("clearing stale conflicts failed", zap.Error(err))
		} else {
			r.printf("Cleared %d old resolved conflicts\n", deleted)
		}
	}

	if deleted, err := r.checker.ClearDetected(ctx, planID); err != nil {
		r.logger.Warn("clearing detected conflicts failed", zap.Error(err))
	} else if deleted > 0 {
		r.printf("Cleared %d previously detected conflicts\n", deleted)
	}

	conflicts, partial, err := r.checker.DetectAndSave(ctx, planID)
	if err != nil {
		r.logger.Warn("conflict detection failed", zap.Error(err))
	}
	r.printf("Found %d conflicts\n", len(conflicts))
	if partial {
		r.printf("Detection was interrupted; results are partial\n")
	}

	if opts.Verbose {
		for _, c := range conflicts {
			r.printf("  [%s] %s: %s\n", c.TypeSeverity, c.TypeName, c.Description)
		}
	}

	if opts.SuggestSolutions && len(conflicts) > 0 {
		r.printSuggestions(ctx, conflicts)
	}

	if opts.AutoResolve && len(conflicts) > 0 {
		stats, err := r.checker.AutoResolveAll(ctx, planID)
		if err != nil {
			r.logger.Warn("auto-resolve interrupted", zap.Error(err))
		}
		r.printf("\nAuto-resolution results:\n")
		r.printf("  Total conflicts: %d\n", stats.TotalConflicts)
		r.printf("  Auto-resolved: %d\n", stats.AutoResolved)
		r.printf("  Manual resolution required: %d\n", stats.ManualRequired)
		r.printf("  Failed to resolve: %d\n", stats.FailedToResolve)
	}

	r.printSummary(ctx, planID)

	if opts.ExportFormat != "" {
		r.export(ctx, planID, opts)
	}

	r.printf("\nConflict check completed in %s\n", r.now().Sub(started).Round(time.Millisecond))
}

func (r *runner) printSuggestions(ctx context.Context, conflicts []models.Conflict) {
	r.printf("\nSuggested solutions:\n")
	for i, c := range conflicts {
		if i == suggestedConflicts {
			break
		}
		suggestions, err := r.checker.Suggestions(ctx, c.ID)
		if err != nil {
			r.logger.Warn("suggestions failed", zap.Int64("conflict_id", c.ID), zap.Error(err))
			continue
		}
		r.printf("\nConflict: %s\n", c.Description)
		if len(suggestions) == 0 {
			r.printf("  No suggestions available\n")
			continue
		}
		for j, s := range suggestions {
			if j == suggestionsPerConflict {
				break
			}
			r.printf("  %d. %s (%s)\n", j+1, s.Description, s.Priority)
		}
	}
}

func (r *runner) printSummary(ctx context.Context, planID *int64) {
	summary, err := r.checker.Summary(ctx, planID)
	if err != nil {
		r.logger.Warn("summary failed", zap.Error(err))
		return
	}
	r.printf("\nConflict summary:\n")
	r.printf("  Total conflicts: %d\n", summary.Total)
	r.printf("  Detected: %d\n", summary.ByStatus[models.ConflictDetected])
	r.printf("  Resolved: %d\n", summary.ByStatus[models.ConflictResolved])
	r.printf("  Ignored: %d\n", summary.ByStatus[models.ConflictIgnored])
	r.printf("\nBy severity:\n")
	for _, severity := range models.Severities {
		if count := summary.BySeverity[severity]; count > 0 {
			r.printf("  %s: %d\n", severity, count)
		}
	}
}

func (r *runner) export(ctx context.Context, planID *int64, opts options) {
	format, err := opts.exportFormat()
	if err != nil {
		r.printf("\nExport skipped: %v\n", err)
		return
	}
	if r.archive {
		link, err := r.reports.Archive(ctx, planID, format)
		if err != nil {
			r.logger.Warn("report upload failed", zap.Error(err))
			return
		}
		r.printf("\nReport uploaded: %s (expires %s)\n", link.URL, link.ExpiresAt.Format(time.RFC3339))
		return
	}

	report, err := r.reports.Render(ctx, planID, format)
	if err != nil {
		r.logger.Warn("report rendering failed", zap.Error(err))
		return
	}
	path := filepath.Join(opts.ExportDir, report.FileName)
	if err := r.writeFile(path, report.Content, 0o644); err != nil {
		r.logger.Warn("report write failed", zap.String("path", path), zap.Error(err))
		return
	}
	r.printf("\nReport written to %s\n", path)
}
