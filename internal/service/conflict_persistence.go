package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-schedule-conflicts/internal/dto"
	"github.com/noah-isme/sma-schedule-conflicts/internal/models"
)

// conflictStore persists conflict types and conflicts.
type conflictStore interface {
	FindConflictTypeByName(ctx context.Context, name string) (*models.ConflictType, error)
	CreateConflictType(ctx context.Context, conflictType *models.ConflictType) error
	CreateConflict(ctx context.Context, conflict *models.Conflict) error
	GetConflict(ctx context.Context, id int64) (*models.Conflict, error)
	UpdateConflictStatus(ctx context.Context, update models.ConflictStatusUpdate) error
	ListConflicts(ctx context.Context, filter models.ConflictFilter) ([]models.Conflict, error)
	DeleteConflicts(ctx context.Context, filter models.ConflictDeleteFilter) (int64, error)
}

type conflictDetector interface {
	Detect(ctx context.Context, planID *int64) ([]dto.ConflictDescriptor, error)
}

// persistGrace bounds how long findings of a cancelled scan may take to store.
const persistGrace = 30 * time.Second

// ConflictRecorder turns detector findings into stored conflicts.
type ConflictRecorder struct {
	detector  conflictDetector
	store     conflictStore
	logger    *zap.Logger
	typeLocks *keyedMutex
	now       func() time.Time
}

// NewConflictRecorder constructs the persistence bridge.
func NewConflictRecorder(detector conflictDetector, store conflictStore, logger *zap.Logger) *ConflictRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictRecorder{
		detector:  detector,
		store:     store,
		logger:    logger,
		typeLocks: newKeyedMutex(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// DetectAndSave runs detection and stores every finding as a detected conflict. Findings that fail
// to store are logged and skipped. A cancelled scan still stores what it found and returns the
// context error alongside the stored conflicts.
func (r *ConflictRecorder) DetectAndSave(ctx context.Context, planID *int64) ([]models.Conflict, error) {
	found, detectErr := r.detector.Detect(ctx, planID)
	if detectErr != nil && !isContextError(detectErr) {
		return nil, detectErr
	}

	persistCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		persistCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), persistGrace)
		defer cancel()
	}

	return r.Save(persistCtx, found), detectErr
}

// Save stores descriptors, creating missing conflict types on the way.
func (r *ConflictRecorder) Save(ctx context.Context, found []dto.ConflictDescriptor) []models.Conflict {
	created := make([]models.Conflict, 0, len(found))
	for _, descriptor := range found {
		conflict, err := r.saveOne(ctx, descriptor)
		if err != nil {
			r.logger.Warn("failed to store detected conflict",
				zap.String("type", string(descriptor.Type)),
				zap.Int64("event_id", descriptor.EventID),
				zap.Error(err),
			)
			continue
		}
		created = append(created, *conflict)
	}
	return created
}

func (r *ConflictRecorder) saveOne(ctx context.Context, descriptor dto.ConflictDescriptor) (*models.Conflict, error) {
	conflictType, err := r.resolveType(ctx, descriptor)
	if err != nil {
		return nil, err
	}

	eventID := descriptor.EventID
	conflict := &models.Conflict{
		ConflictTypeID:   conflictType.ID,
		ScheduledEventID: &eventID,
		Description:      descriptor.Description,
		Status:           models.ConflictDetected,
		DetectedAt:       r.now(),
		TypeName:         conflictType.Name,
		TypeSeverity:     conflictType.Severity,
		TypeIsBlocking:   conflictType.IsBlocking,
		TypeAutoResolve:  conflictType.AutoResolve,
	}
	if err := r.store.CreateConflict(ctx, conflict); err != nil {
		return nil, fmt.Errorf("create conflict: %w", err)
	}
	return conflict, nil
}

// resolveType looks up the conflict type by name and creates it when absent. Lookups for one
// name are serialised so concurrent scans do not race to create the same type.
func (r *ConflictRecorder) resolveType(ctx context.Context, descriptor dto.ConflictDescriptor) (*models.ConflictType, error) {
	name := string(descriptor.Type)
	unlock := r.typeLocks.Lock(strings.ToLower(name))
	defer unlock()

	existing, err := r.store.FindConflictTypeByName(ctx, name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find conflict type %s: %w", name, err)
	}

	severity := descriptor.Severity
	if severity == "" {
		severity = models.SeverityMedium
	}
	conflictType := &models.ConflictType{
		Name:        name,
		Description: fmt.Sprintf("Auto-created conflict type: %s", name),
		Severity:    severity,
		IsBlocking:  descriptor.Blocking,
		AutoResolve: false,
		IsActive:    true,
	}
	if err := r.store.CreateConflictType(ctx, conflictType); err != nil {
		return nil, fmt.Errorf("create conflict type %s: %w", name, err)
	}
	r.logger.Info("conflict type created", zap.String("name", name), zap.Int64("id", conflictType.ID))
	return conflictType, nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
