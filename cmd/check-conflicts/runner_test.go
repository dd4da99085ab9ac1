package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-schedule-conflicts/internal/dto"
	"github.com/noah-isme/sma-schedule-conflicts/internal/models"
	appErrors "github.com/noah-isme/sma-schedule-conflicts/pkg/errors"
)

type checkerStub struct {
	planErr         error
	conflicts       []models.Conflict
	partial         bool
	clearedStale    bool
	clearedDetected bool
	autoResolved    bool
	suggestionCalls int
}

func (s *checkerStub) Plan(_ context.Context, planID int64) (*models.SchedulePlan, error) {
	if s.planErr != nil {
		return nil, s.planErr
	}
	return &models.SchedulePlan{ID: planID, Name: "Semester 1"}, nil
}

func (s *checkerStub) ClearStale(context.Context, time.Duration) (int64, error) {
	s.clearedStale = true
	return 4, nil
}

func (s *checkerStub) ClearDetected(context.Context, *int64) (int64, error) {
	s.clearedDetected = true
	return 0, nil
}

func (s *checkerStub) DetectAndSave(context.Context, *int64) ([]models.Conflict, bool, error) {
	return s.conflicts, s.partial, nil
}

func (s *checkerStub) Suggestions(context.Context, int64) ([]dto.Suggestion, error) {
	s.suggestionCalls++
	return []dto.Suggestion{
		{Description: "first", Priority: dto.PriorityHigh},
		{Description: "second", Priority: dto.PriorityHigh},
		{Description: "third", Priority: dto.PriorityMedium},
		{Description: "fourth", Priority: dto.PriorityLow},
	}, nil
}

func (s *checkerStub) AutoResolveAll(context.Context, *int64) (dto.AutoResolveStats, error) {
	s.autoResolved = true
	return dto.AutoResolveStats{TotalConflicts: len(s.conflicts), AutoResolved: 1, ManualRequired: len(s.conflicts) - 1}, nil
}

func (s *checkerStub) Summary(_ context.Context, planID *int64) (*dto.ConflictSummary, error) {
	return &dto.ConflictSummary{
		PlanID:     planID,
		Total:      len(s.conflicts),
		ByStatus:   map[models.ConflictStatus]int{models.ConflictDetected: len(s.conflicts)},
		BySeverity: map[models.ConflictSeverity]int{models.SeverityHigh: len(s.conflicts)},
	}, nil
}

type renderStub struct{}

func (renderStub) Render(context.Context, *int64, dto.ExportFormat) (*dto.ConflictExport, error) {
	return &dto.ConflictExport{FileName: "conflicts_plan-1.csv", Content: []byte("ID\n")}, nil
}

func (renderStub) Archive(context.Context, *int64, dto.ExportFormat) (*dto.ReportLink, error) {
	return &dto.ReportLink{URL: "https://minio.local/report", ExpiresAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}, nil
}

func newRunner(checker conflictChecker, out *bytes.Buffer) *runner {
	return &runner{
		checker:    checker,
		reports:    renderStub{},
		out:        out,
		logger:     zap.NewNop(),
		staleAfter: 30 * 24 * time.Hour,
		writeFile:  func(string, []byte, os.FileMode) error { return nil },
		now:        time.Now,
	}
}

func manyConflicts(n int) []models.Conflict {
	conflicts := make([]models.Conflict, n)
	for i := range conflicts {
		conflicts[i] = models.Conflict{ID: int64(i + 1), Description: "clash", TypeName: "Teacher Time Conflict", TypeSeverity: models.SeverityHigh}
	}
	return conflicts
}

func TestRunnerPlanNotFound(t *testing.T) {
	var out bytes.Buffer
	stub := &checkerStub{planErr: appErrors.Clone(appErrors.ErrNotFound, "schedule plan 9 not found")}
	newRunner(stub, &out).run(context.Background(), options{PlanID: 9})

	assert.Contains(t, out.String(), "Schedule plan 9 not found")
	assert.False(t, stub.clearedDetected)
}

func TestRunnerFullReport(t *testing.T) {
	var out bytes.Buffer
	stub := &checkerStub{conflicts: manyConflicts(12)}
	newRunner(stub, &out).run(context.Background(), options{
		PlanID:           1,
		ClearOld:         true,
		SuggestSolutions: true,
		AutoResolve:      true,
		ExportFormat:     "csv",
		ExportDir:        "/tmp",
	})

	text := out.String()
	assert.True(t, stub.clearedStale)
	assert.True(t, stub.clearedDetected)
	assert.True(t, stub.autoResolved)
	assert.Equal(t, suggestedConflicts, stub.suggestionCalls)
	assert.Contains(t, text, "Checking conflicts for plan: Semester 1")
	assert.Contains(t, text, "Cleared 4 old resolved conflicts")
	assert.Contains(t, text, "Found 12 conflicts")
	assert.Contains(t, text, "3. third (medium)")
	assert.NotContains(t, text, "fourth")
	assert.Contains(t, text, "Auto-resolved: 1")
	assert.Contains(t, text, "Total conflicts: 12")
	assert.Contains(t, text, "high: 12")
	assert.Contains(t, text, "Report written to /tmp/conflicts_plan-1.csv")
}

func TestRunnerPartialScanAndArchive(t *testing.T) {
	var out bytes.Buffer
	stub := &checkerStub{conflicts: manyConflicts(1), partial: true}
	r := newRunner(stub, &out)
	r.archive = true
	r.run(context.Background(), options{ExportFormat: "pdf"})

	text := out.String()
	assert.Contains(t, text, "Checking conflicts for all active events")
	assert.Contains(t, text, "results are partial")
	assert.Contains(t, text, "Report uploaded: https://minio.local/report")
	assert.False(t, stub.autoResolved)
}

func TestRunnerRejectsUnknownExportFormat(t *testing.T) {
	var out bytes.Buffer
	newRunner(&checkerStub{}, &out).run(context.Background(), options{ExportFormat: "docx"})
	require.Contains(t, out.String(), `Export skipped: unsupported export format "docx"`)
}

func TestExecuteReportsSetupFailure(t *testing.T) {
	var out bytes.Buffer
	setup := func(context.Context, options, io.Writer) (*runner, func(), error) {
		return nil, nil, errors.New("connect to postgres: dial tcp 127.0.0.1:5432: connection refused")
	}

	execute(context.Background(), options{PlanID: 1}, &out, setup)

	assert.Equal(t, "Conflict check aborted: connect to postgres: dial tcp 127.0.0.1:5432: connection refused\n", out.String())
}

func TestExecuteRunsAndCleansUp(t *testing.T) {
	var out bytes.Buffer
	stub := &checkerStub{conflicts: manyConflicts(2)}
	cleaned := false
	setup := func(_ context.Context, _ options, w io.Writer) (*runner, func(), error) {
		r := newRunner(stub, &out)
		r.out = w
		return r, func() { cleaned = true }, nil
	}

	execute(context.Background(), options{PlanID: 1}, &out, setup)

	assert.Contains(t, out.String(), "Found 2 conflicts")
	assert.True(t, cleaned)
}
