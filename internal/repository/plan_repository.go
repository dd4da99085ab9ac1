package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-schedule-conflicts/internal/models"
)

const planColumns = `id, name, subsidiary_id, start_date, end_date, is_active`

// PlanRepository reads schedule plans.
type PlanRepository struct {
	db *sqlx.DB
}

// NewPlanRepository constructs a PlanRepository.
func NewPlanRepository(db *sqlx.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// GetPlan fetches a plan by id.
func (r *PlanRepository) GetPlan(ctx context.Context, id int64) (*models.SchedulePlan, error) {
	var plan models.SchedulePlan
	if err := r.db.GetContext(ctx, &plan, `SELECT `+planColumns+` FROM schedule_plans WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &plan, nil
}

// ListActivePlans returns active plans ordered by id.
func (r *PlanRepository) ListActivePlans(ctx context.Context) ([]models.SchedulePlan, error) {
	var plans []models.SchedulePlan
	if err := r.db.SelectContext(ctx, &plans, `SELECT `+planColumns+` FROM schedule_plans WHERE is_active = TRUE ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list active plans: %w", err)
	}
	return plans, nil
}
