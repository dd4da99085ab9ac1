package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-schedule-conflicts/internal/dto"
	"github.com/noah-isme/sma-schedule-conflicts/internal/models"
	appErrors "github.com/noah-isme/sma-schedule-conflicts/pkg/errors"
)

const (
	conflictCachePattern = "conflicts:*"
	suggestionCacheKey   = "conflicts:suggestions:%d"
	summaryCacheKey      = "conflicts:summary:%v"
)

var openStatuses = []models.ConflictStatus{models.ConflictDetected, models.ConflictAcknowledged, models.ConflictInProgress}

var closedStatuses = []models.ConflictStatus{models.ConflictResolved, models.ConflictIgnored}

type planStore interface {
	GetPlan(ctx context.Context, id int64) (*models.SchedulePlan, error)
	ListActivePlans(ctx context.Context) ([]models.SchedulePlan, error)
}

type conflictReadStore interface {
	GetConflict(ctx context.Context, id int64) (*models.Conflict, error)
	ListConflicts(ctx context.Context, filter models.ConflictFilter) ([]models.Conflict, error)
	UpdateConflictStatus(ctx context.Context, update models.ConflictStatusUpdate) error
	DeleteConflicts(ctx context.Context, filter models.ConflictDeleteFilter) (int64, error)
	CountConflicts(ctx context.Context, planID *int64) ([]models.ConflictCount, error)
}

type conflictScanner interface {
	DetectAndSave(ctx context.Context, planID *int64) ([]models.Conflict, error)
}

type conflictResolution interface {
	SuggestSolutions(ctx context.Context, conflict *models.Conflict) ([]dto.Suggestion, error)
	CanAutoResolve(conflict *models.Conflict) bool
	AutoResolveConflict(ctx context.Context, conflict *models.Conflict) bool
	ApplySuggestion(ctx context.Context, conflict *models.Conflict, suggestion dto.Suggestion) error
	AutoResolveAll(ctx context.Context, planID *int64) (dto.AutoResolveStats, error)
}

// ConflictServiceConfig tunes the façade.
type ConflictServiceConfig struct {
	ScanTimeout        time.Duration
	SuggestionCacheTTL time.Duration
}

// ConflictService exposes detection and resolution to the API and the CLI.
type ConflictService struct {
	plans     planStore
	conflicts conflictReadStore
	scanner   conflictScanner
	resolver  conflictResolution
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ConflictServiceConfig
	now       func() time.Time
}

// NewConflictService constructs the conflict façade.
func NewConflictService(plans planStore, conflicts conflictReadStore, scanner conflictScanner, resolver conflictResolution, cache *CacheService, validate *validator.Validate, logger *zap.Logger, cfg ConflictServiceConfig) *ConflictService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SuggestionCacheTTL <= 0 {
		cfg.SuggestionCacheTTL = 5 * time.Minute
	}
	return &ConflictService{
		plans:     plans,
		conflicts: conflicts,
		scanner:   scanner,
		resolver:  resolver,
		cache:     cache,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CheckPlan scans one plan and returns its open conflicts. With clear set, previously detected
// conflicts of the plan are removed first.
func (s *ConflictService) CheckPlan(ctx context.Context, planID int64, clear bool) (*dto.PlanCheckResponse, error) {
	if _, err := s.loadPlan(ctx, planID); err != nil {
		return nil, err
	}
	if clear {
		if _, err := s.ClearDetected(ctx, &planID); err != nil {
			return nil, err
		}
	}

	created, partial, err := s.DetectAndSave(ctx, &planID)
	if err != nil {
		return nil, err
	}

	open, err := s.conflicts.ListConflicts(ctx, models.ConflictFilter{PlanID: &planID, Statuses: openStatuses})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list plan conflicts")
	}
	if open == nil {
		open = []models.Conflict{}
	}
	return &dto.PlanCheckResponse{PlanID: planID, ConflictsFound: len(created), Conflicts: open, Partial: partial}, nil
}

// CheckActivePlan scans the first active plan.
func (s *ConflictService) CheckActivePlan(ctx context.Context, clear bool) (*dto.PlanCheckResponse, error) {
	plan, err := s.FirstActivePlan(ctx)
	if err != nil {
		return nil, err
	}
	return s.CheckPlan(ctx, plan.ID, clear)
}

// FirstActivePlan returns the active plan with the lowest id.
func (s *ConflictService) FirstActivePlan(ctx context.Context) (*models.SchedulePlan, error) {
	plans, err := s.plans.ListActivePlans(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list active plans")
	}
	if len(plans) == 0 {
		return nil, appErrors.ErrActivePlanNotFound
	}
	return &plans[0], nil
}

// ActivePlans lists active plans.
func (s *ConflictService) ActivePlans(ctx context.Context) ([]models.SchedulePlan, error) {
	plans, err := s.plans.ListActivePlans(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list active plans")
	}
	return plans, nil
}

// Plan returns a plan by id.
func (s *ConflictService) Plan(ctx context.Context, planID int64) (*models.SchedulePlan, error) {
	return s.loadPlan(ctx, planID)
}

// DetectAndSave runs a bounded scan. A scan cut short by the timeout or caller cancellation
// reports partial=true and still returns the conflicts it stored.
func (s *ConflictService) DetectAndSave(ctx context.Context, planID *int64) ([]models.Conflict, bool, error) {
	scanCtx := ctx
	if s.cfg.ScanTimeout > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, s.cfg.ScanTimeout)
		defer cancel()
	}

	created, err := s.scanner.DetectAndSave(scanCtx, planID)
	s.invalidate(ctx)
	if err != nil {
		if isContextError(err) {
			s.logger.Warn("conflict scan interrupted", zap.Any("plan_id", planIDField(planID)), zap.Int("stored", len(created)), zap.Error(err))
			return created, true, nil
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to detect conflicts")
	}
	return created, false, nil
}

// List returns conflicts matching the query, newest first.
func (s *ConflictService) List(ctx context.Context, query dto.ConflictQuery) ([]models.Conflict, error) {
	filter := models.ConflictFilter{PlanID: query.PlanID, TypeName: strings.TrimSpace(query.Type)}
	if query.EventID != nil {
		filter.EventIDs = []int64{*query.EventID}
	}
	if query.Resolved != nil {
		if *query.Resolved {
			filter.Statuses = closedStatuses
		} else {
			filter.Statuses = openStatuses
		}
	}
	conflicts, err := s.conflicts.ListConflicts(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list conflicts")
	}
	if conflicts == nil {
		conflicts = []models.Conflict{}
	}
	return conflicts, nil
}

// Get returns a conflict by id.
func (s *ConflictService) Get(ctx context.Context, id int64) (*models.Conflict, error) {
	conflict, err := s.conflicts.GetConflict(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "conflict not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conflict")
	}
	return conflict, nil
}

// Suggestions returns remediation proposals for a conflict, served from cache when fresh.
func (s *ConflictService) Suggestions(ctx context.Context, id int64) ([]dto.Suggestion, error) {
	conflict, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.suggestionsFor(ctx, conflict)
}

func (s *ConflictService) suggestionsFor(ctx context.Context, conflict *models.Conflict) ([]dto.Suggestion, error) {
	key := fmt.Sprintf(suggestionCacheKey, conflict.ID)
	return remember(ctx, s.cache, key, s.cfg.SuggestionCacheTTL, func() ([]dto.Suggestion, error) {
		suggestions, err := s.resolver.SuggestSolutions(ctx, conflict)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build suggestions")
		}
		return suggestions, nil
	})
}

// Resolve auto-resolves the conflict when its type allows it; otherwise it returns suggestions.
func (s *ConflictService) Resolve(ctx context.Context, id int64) (*dto.ResolveConflictResponse, error) {
	conflict, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if conflict.Status.IsClosed() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "conflict is already closed")
	}

	if s.resolver.CanAutoResolve(conflict) && s.resolver.AutoResolveConflict(ctx, conflict) {
		s.invalidate(ctx)
		return &dto.ResolveConflictResponse{Resolved: true, Message: "conflict resolved automatically"}, nil
	}

	s.invalidate(ctx)
	suggestions, err := s.suggestionsFor(ctx, conflict)
	if err != nil {
		return nil, err
	}
	return &dto.ResolveConflictResponse{Resolved: false, Message: appErrors.ErrNoSuggestion.Message, Suggestions: suggestions}, nil
}

// Apply performs the suggestion at the requested index and marks the conflict resolved.
func (s *ConflictService) Apply(ctx context.Context, id int64, req dto.ApplySuggestionRequest) (*models.Conflict, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid apply payload")
	}
	conflict, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if conflict.Status.IsClosed() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "conflict is already closed")
	}

	suggestions, err := s.suggestionsFor(ctx, conflict)
	if err != nil {
		return nil, err
	}
	if req.SuggestionIndex >= len(suggestions) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "suggestion index out of range")
	}
	suggestion := suggestions[req.SuggestionIndex]
	if suggestion.Action == dto.ActionManualIntervention {
		return nil, appErrors.Clone(appErrors.ErrNoSuggestion, "suggestion requires manual intervention")
	}

	if err := s.resolver.ApplySuggestion(ctx, conflict, suggestion); err != nil {
		s.invalidate(ctx)
		if appErr := appErrors.FromError(err); appErr.Code == appErrors.ErrEventLocked.Code {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "suggestion could not be applied")
	}
	s.invalidate(ctx)

	resolvedAt := s.now()
	update := models.ConflictStatusUpdate{
		ID:              conflict.ID,
		Status:          models.ConflictResolved,
		ResolvedAt:      &resolvedAt,
		ResolvedBy:      optionalString(req.ResolvedBy),
		ResolutionNotes: "Resolved: " + suggestion.Description,
	}
	if err := s.conflicts.UpdateConflictStatus(ctx, update); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update conflict")
	}
	applyUpdate(conflict, update)
	return conflict, nil
}

// UpdateStatus transitions a conflict manually. resolved_at is set exactly when the new status is
// resolved or ignored.
func (s *ConflictService) UpdateStatus(ctx context.Context, id int64, req dto.UpdateConflictStatusRequest) (*models.Conflict, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	conflict, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	update := models.ConflictStatusUpdate{
		ID:              conflict.ID,
		Status:          req.Status,
		ResolutionNotes: conflict.ResolutionNotes,
	}
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		update.ResolutionNotes = notes
	}
	if req.Status.IsClosed() {
		resolvedAt := s.now()
		update.ResolvedAt = &resolvedAt
		update.ResolvedBy = optionalString(req.ResolvedBy)
	}

	if err := s.conflicts.UpdateConflictStatus(ctx, update); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "conflict not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update conflict")
	}
	s.invalidate(ctx)
	applyUpdate(conflict, update)
	return conflict, nil
}

// AutoResolveAll resolves every detected auto-resolvable conflict, optionally within one plan.
func (s *ConflictService) AutoResolveAll(ctx context.Context, planID *int64) (dto.AutoResolveStats, error) {
	if planID != nil {
		if _, err := s.loadPlan(ctx, *planID); err != nil {
			return dto.AutoResolveStats{}, err
		}
	}
	stats, err := s.resolver.AutoResolveAll(ctx, planID)
	s.invalidate(ctx)
	if err != nil && !isContextError(err) {
		return stats, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to auto-resolve conflicts")
	}
	return stats, nil
}

// Summary counts conflicts by status and severity.
func (s *ConflictService) Summary(ctx context.Context, planID *int64) (*dto.ConflictSummary, error) {
	key := fmt.Sprintf(summaryCacheKey, planIDField(planID))
	return remember(ctx, s.cache, key, s.cfg.SuggestionCacheTTL, func() (*dto.ConflictSummary, error) {
		counts, err := s.conflicts.CountConflicts(ctx, planID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise conflicts")
		}
		return buildSummary(planID, counts), nil
	})
}

func buildSummary(planID *int64, counts []models.ConflictCount) *dto.ConflictSummary {
	summary := &dto.ConflictSummary{
		PlanID:     planID,
		ByStatus:   make(map[models.ConflictStatus]int, len(models.ConflictStatuses)),
		BySeverity: make(map[models.ConflictSeverity]int, len(models.Severities)),
	}
	for _, status := range models.ConflictStatuses {
		summary.ByStatus[status] = 0
	}
	for _, severity := range models.Severities {
		summary.BySeverity[severity] = 0
	}
	for _, count := range counts {
		summary.Total += count.Total
		summary.ByStatus[count.Status] += count.Total
		summary.BySeverity[count.Severity] += count.Total
	}
	return summary
}

// ClearDetected deletes conflicts still in detected status, optionally within one plan.
func (s *ConflictService) ClearDetected(ctx context.Context, planID *int64) (int64, error) {
	deleted, err := s.conflicts.DeleteConflicts(ctx, models.ConflictDeleteFilter{
		PlanID:   planID,
		Statuses: []models.ConflictStatus{models.ConflictDetected},
	})
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear detected conflicts")
	}
	s.invalidate(ctx)
	return deleted, nil
}

// ClearStale deletes closed conflicts resolved longer than olderThan ago.
func (s *ConflictService) ClearStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan)
	deleted, err := s.conflicts.DeleteConflicts(ctx, models.ConflictDeleteFilter{
		Statuses:       closedStatuses,
		ResolvedBefore: &cutoff,
	})
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear stale conflicts")
	}
	if deleted > 0 {
		s.logger.Info("stale conflicts removed", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
		s.invalidate(ctx)
	}
	return deleted, nil
}

func (s *ConflictService) loadPlan(ctx context.Context, planID int64) (*models.SchedulePlan, error) {
	plan, err := s.plans.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("schedule plan %d not found", planID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule plan")
	}
	return plan, nil
}

func (s *ConflictService) invalidate(ctx context.Context) {
	_ = s.cache.Invalidate(context.WithoutCancel(ctx), conflictCachePattern)
}

func applyUpdate(conflict *models.Conflict, update models.ConflictStatusUpdate) {
	conflict.Status = update.Status
	conflict.ResolvedAt = update.ResolvedAt
	conflict.ResolvedBy = update.ResolvedBy
	conflict.ResolutionNotes = update.ResolutionNotes
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
