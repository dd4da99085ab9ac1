package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-schedule-conflicts/internal/models"
)

const eventSelect = `SELECT e.id, e.schedule_plan_id, gc.group_id, e.group_course_id, e.room_id, e.event_type, e.weekday, e.specific_date, e.start_time, e.end_time, e.duration_minutes, e.academic_hours, e.is_active, e.updated_at, p.subsidiary_id AS plan_subsidiary_id, p.start_date AS plan_start_date, c.subject_id, c.name AS course_name, g.name AS group_name, r.name AS room_name, r.capacity AS room_capacity, r.subsidiary_id AS room_subsidiary_id FROM scheduled_events e JOIN schedule_plans p ON p.id = e.schedule_plan_id JOIN group_courses gc ON gc.id = e.group_course_id JOIN courses c ON c.id = gc.course_id JOIN groups g ON g.id = gc.group_id JOIN rooms r ON r.id = e.room_id`

const eventTeachersSelect = `SELECT et.scheduled_event_id, t.id, t.full_name, t.subsidiary_id, COALESCE(t.max_hours_per_week, 40) AS max_hours_per_week, t.is_active FROM scheduled_event_teachers et JOIN teachers t ON t.id = et.teacher_id WHERE et.scheduled_event_id = ANY($1) ORDER BY et.scheduled_event_id, t.id`

// EventRepository reads and updates scheduled events together with their teacher sets.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// ListActiveEvents returns active events, optionally restricted to one plan, with teachers attached.
func (r *EventRepository) ListActiveEvents(ctx context.Context, planID *int64) ([]models.ScheduledEvent, error) {
	query := eventSelect + " WHERE e.is_active = TRUE"
	var args []interface{}
	if planID != nil {
		query += " AND e.schedule_plan_id = $1"
		args = append(args, *planID)
	}
	query += " ORDER BY e.id"

	var events []models.ScheduledEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("list active events: %w", err)
	}
	if err := r.attachTeachers(ctx, events); err != nil {
		return nil, err
	}
	return events, nil
}

// GetEvent fetches one event regardless of its active flag.
func (r *EventRepository) GetEvent(ctx context.Context, id int64) (*models.ScheduledEvent, error) {
	var event models.ScheduledEvent
	if err := r.db.GetContext(ctx, &event, eventSelect+" WHERE e.id = $1", id); err != nil {
		return nil, err
	}
	events := []models.ScheduledEvent{event}
	if err := r.attachTeachers(ctx, events); err != nil {
		return nil, err
	}
	return &events[0], nil
}

// SaveEvent persists the mutable placement of an event and replaces its teacher set.
func (r *EventRepository) SaveEvent(ctx context.Context, event *models.ScheduledEvent) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save event: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	event.UpdatedAt = time.Now().UTC()
	const update = `UPDATE scheduled_events SET weekday = $1, specific_date = $2, start_time = $3, end_time = $4, duration_minutes = $5, room_id = $6, updated_at = $7 WHERE id = $8`
	if _, err = tx.ExecContext(ctx, update, event.Weekday, event.SpecificDate, event.StartTime, event.EndTime, event.DurationMinutes, event.RoomID, event.UpdatedAt, event.ID); err != nil {
		return fmt.Errorf("update scheduled event: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM scheduled_event_teachers WHERE scheduled_event_id = $1`, event.ID); err != nil {
		return fmt.Errorf("clear event teachers: %w", err)
	}
	for _, teacher := range event.Teachers {
		if _, err = tx.ExecContext(ctx, `INSERT INTO scheduled_event_teachers (scheduled_event_id, teacher_id) VALUES ($1, $2)`, event.ID, teacher.ID); err != nil {
			return fmt.Errorf("assign event teacher: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save event: %w", err)
	}
	return nil
}

func (r *EventRepository) attachTeachers(ctx context.Context, events []models.ScheduledEvent) error {
	if len(events) == 0 {
		return nil
	}
	ids := make([]int64, len(events))
	index := make(map[int64]int, len(events))
	for i := range events {
		ids[i] = events[i].ID
		index[events[i].ID] = i
		events[i].Teachers = []models.Teacher{}
	}

	var rows []models.EventTeacher
	if err := r.db.SelectContext(ctx, &rows, eventTeachersSelect, pq.Array(ids)); err != nil {
		return fmt.Errorf("list event teachers: %w", err)
	}
	for _, row := range rows {
		if i, ok := index[row.ScheduledEventID]; ok {
			events[i].Teachers = append(events[i].Teachers, row.Teacher)
		}
	}
	return nil
}
