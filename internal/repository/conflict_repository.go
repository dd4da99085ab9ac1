package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-schedule-conflicts/internal/models"
)

const (
	conflictTypeColumns = `id, name, COALESCE(description, '') AS description, severity, is_blocking, auto_resolve, is_active`
	conflictSelect      = `SELECT c.id, c.conflict_type_id, c.scheduled_event_id, c.description, c.status, c.detected_at, c.resolved_at, c.resolved_by, COALESCE(c.resolution_notes, '') AS resolution_notes, ct.name AS type_name, ct.severity AS type_severity, ct.is_blocking AS type_is_blocking, ct.auto_resolve AS type_auto_resolve FROM conflicts c JOIN conflict_types ct ON ct.id = c.conflict_type_id`
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ConflictRepository persists conflict types and conflicts.
type ConflictRepository struct {
	db *sqlx.DB
}

// NewConflictRepository constructs a ConflictRepository.
func NewConflictRepository(db *sqlx.DB) *ConflictRepository {
	return &ConflictRepository{db: db}
}

// FindConflictTypeByName returns the type whose name contains name, case-insensitively, preferring
// the shortest match. sql.ErrNoRows is returned when nothing matches.
func (r *ConflictRepository) FindConflictTypeByName(ctx context.Context, name string) (*models.ConflictType, error) {
	query := `SELECT ` + conflictTypeColumns + ` FROM conflict_types WHERE name ILIKE $1 ORDER BY length(name), id LIMIT 1`
	var conflictType models.ConflictType
	if err := r.db.GetContext(ctx, &conflictType, query, containsPattern(name)); err != nil {
		return nil, err
	}
	return &conflictType, nil
}

// CreateConflictType inserts a type. A concurrent insert of the same name yields the stored row.
func (r *ConflictRepository) CreateConflictType(ctx context.Context, conflictType *models.ConflictType) error {
	const query = `INSERT INTO conflict_types (name, description, severity, is_blocking, auto_resolve, is_active) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name RETURNING id, severity, is_blocking, auto_resolve`
	row := r.db.QueryRowxContext(ctx, query,
		conflictType.Name,
		conflictType.Description,
		conflictType.Severity,
		conflictType.IsBlocking,
		conflictType.AutoResolve,
		conflictType.IsActive,
	)
	if err := row.Scan(&conflictType.ID, &conflictType.Severity, &conflictType.IsBlocking, &conflictType.AutoResolve); err != nil {
		return fmt.Errorf("create conflict type: %w", err)
	}
	return nil
}

// CreateConflict inserts a conflict and fills its id.
func (r *ConflictRepository) CreateConflict(ctx context.Context, conflict *models.Conflict) error {
	const query = `INSERT INTO conflicts (conflict_type_id, scheduled_event_id, description, status, detected_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		conflict.ConflictTypeID,
		conflict.ScheduledEventID,
		conflict.Description,
		conflict.Status,
		conflict.DetectedAt,
	).Scan(&conflict.ID); err != nil {
		return fmt.Errorf("create conflict: %w", err)
	}
	return nil
}

// GetConflict fetches a conflict with its type attributes.
func (r *ConflictRepository) GetConflict(ctx context.Context, id int64) (*models.Conflict, error) {
	var conflict models.Conflict
	if err := r.db.GetContext(ctx, &conflict, conflictSelect+" WHERE c.id = $1", id); err != nil {
		return nil, err
	}
	return &conflict, nil
}

// ListConflicts returns conflicts matching the filter, newest first.
func (r *ConflictRepository) ListConflicts(ctx context.Context, filter models.ConflictFilter) ([]models.Conflict, error) {
	var conditions []string
	var args []interface{}

	if filter.PlanID != nil {
		args = append(args, *filter.PlanID)
		conditions = append(conditions, fmt.Sprintf("c.scheduled_event_id IN (SELECT id FROM scheduled_events WHERE schedule_plan_id = $%d)", len(args)))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, pq.Array(statusStrings(filter.Statuses)))
		conditions = append(conditions, fmt.Sprintf("c.status = ANY($%d)", len(args)))
	}
	if filter.TypeName != "" {
		args = append(args, containsPattern(filter.TypeName))
		conditions = append(conditions, fmt.Sprintf("ct.name ILIKE $%d", len(args)))
	}
	if len(filter.EventIDs) > 0 {
		args = append(args, pq.Array(filter.EventIDs))
		conditions = append(conditions, fmt.Sprintf("c.scheduled_event_id = ANY($%d)", len(args)))
	}

	query := conflictSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY c.detected_at DESC, c.id DESC"

	var conflicts []models.Conflict
	if err := r.db.SelectContext(ctx, &conflicts, query, args...); err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	return conflicts, nil
}

// UpdateConflictStatus writes a status transition. sql.ErrNoRows is returned for unknown ids.
func (r *ConflictRepository) UpdateConflictStatus(ctx context.Context, update models.ConflictStatusUpdate) error {
	const query = `UPDATE conflicts SET status = $1, resolved_at = $2, resolved_by = $3, resolution_notes = $4 WHERE id = $5`
	result, err := r.db.ExecContext(ctx, query, update.Status, update.ResolvedAt, update.ResolvedBy, update.ResolutionNotes, update.ID)
	if err != nil {
		return fmt.Errorf("update conflict status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update conflict status: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteConflicts removes conflicts matching the filter and reports how many were deleted.
func (r *ConflictRepository) DeleteConflicts(ctx context.Context, filter models.ConflictDeleteFilter) (int64, error) {
	var conditions []string
	var args []interface{}

	if filter.PlanID != nil {
		args = append(args, *filter.PlanID)
		conditions = append(conditions, fmt.Sprintf("scheduled_event_id IN (SELECT id FROM scheduled_events WHERE schedule_plan_id = $%d)", len(args)))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, pq.Array(statusStrings(filter.Statuses)))
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.ResolvedBefore != nil {
		args = append(args, *filter.ResolvedBefore)
		conditions = append(conditions, fmt.Sprintf("resolved_at < $%d", len(args)))
	}

	query := "DELETE FROM conflicts"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete conflicts: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete conflicts: %w", err)
	}
	return affected, nil
}

// CountConflicts groups stored conflicts by status and type severity.
func (r *ConflictRepository) CountConflicts(ctx context.Context, planID *int64) ([]models.ConflictCount, error) {
	query := `SELECT c.status, ct.severity, COUNT(*) AS total FROM conflicts c JOIN conflict_types ct ON ct.id = c.conflict_type_id`
	var args []interface{}
	if planID != nil {
		query += " WHERE c.scheduled_event_id IN (SELECT id FROM scheduled_events WHERE schedule_plan_id = $1)"
		args = append(args, *planID)
	}
	query += " GROUP BY c.status, ct.severity"

	var counts []models.ConflictCount
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("count conflicts: %w", err)
	}
	return counts, nil
}

func containsPattern(value string) string {
	return "%" + likeEscaper.Replace(value) + "%"
}

func statusStrings(statuses []models.ConflictStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
