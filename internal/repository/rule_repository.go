package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-schedule-conflicts/internal/models"
)

// RuleRepository reads working periods, availability rules and the time slot catalog.
type RuleRepository struct {
	db *sqlx.DB
}

// NewRuleRepository constructs a RuleRepository.
func NewRuleRepository(db *sqlx.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// ListWorkingPeriodRules returns active rules of the subsidiary plus global ones, highest priority first.
func (r *RuleRepository) ListWorkingPeriodRules(ctx context.Context, subsidiaryID int64) ([]models.WorkingPeriodRule, error) {
	const query = `SELECT id, name, subsidiary_id, rule_type, start_date, end_date, recurrence, weekdays, start_time, end_time, priority, is_active FROM working_period_rules WHERE is_active = TRUE AND (subsidiary_id = $1 OR subsidiary_id IS NULL) ORDER BY priority DESC, id`
	var rules []models.WorkingPeriodRule
	if err := r.db.SelectContext(ctx, &rules, query, subsidiaryID); err != nil {
		return nil, fmt.Errorf("list working period rules: %w", err)
	}
	return rules, nil
}

// ListTeacherAvailability returns the teacher's active availability periods.
func (r *RuleRepository) ListTeacherAvailability(ctx context.Context, teacherID int64) ([]models.TeacherAvailabilityPeriod, error) {
	const query = `SELECT id, teacher_id, availability_type, start_date, end_date, start_time, end_time, weekdays, max_hours_per_day, max_hours_per_week, COALESCE(notes, '') AS notes, is_active FROM teacher_availability_periods WHERE is_active = TRUE AND teacher_id = $1 ORDER BY start_date, id`
	var periods []models.TeacherAvailabilityPeriod
	if err := r.db.SelectContext(ctx, &periods, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher availability: %w", err)
	}
	return periods, nil
}

// ListRoomAvailability returns the room's active availability rules.
func (r *RuleRepository) ListRoomAvailability(ctx context.Context, roomID int64) ([]models.RoomAvailabilityRule, error) {
	const query = `SELECT id, room_id, start_date, end_date, start_time, end_time, weekdays, is_available, COALESCE(reason, '') AS reason, is_active FROM room_availability_rules WHERE is_active = TRUE AND room_id = $1 ORDER BY start_date, id`
	var rules []models.RoomAvailabilityRule
	if err := r.db.SelectContext(ctx, &rules, query, roomID); err != nil {
		return nil, fmt.Errorf("list room availability: %w", err)
	}
	return rules, nil
}

// ListTimeSlots returns active slots of the subsidiary plus global ones in catalog order.
func (r *RuleRepository) ListTimeSlots(ctx context.Context, subsidiaryID int64) ([]models.TimeSlot, error) {
	const query = `SELECT id, name, subsidiary_id, start_time, end_time, sort_order, is_active FROM time_slots WHERE is_active = TRUE AND (subsidiary_id = $1 OR subsidiary_id IS NULL) ORDER BY sort_order, id`
	var slots []models.TimeSlot
	if err := r.db.SelectContext(ctx, &slots, query, subsidiaryID); err != nil {
		return nil, fmt.Errorf("list time slots: %w", err)
	}
	return slots, nil
}
