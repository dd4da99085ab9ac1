package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-schedule-conflicts/internal/models"
)

const (
	teacherColumns = `t.id, t.full_name, t.subsidiary_id, COALESCE(t.max_hours_per_week, 40) AS max_hours_per_week, t.is_active`
	roomColumns    = `id, name, subsidiary_id, capacity, is_active`
)

// ReferenceRepository reads teachers, rooms and group rosters.
type ReferenceRepository struct {
	db *sqlx.DB
}

// NewReferenceRepository constructs a ReferenceRepository.
func NewReferenceRepository(db *sqlx.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

// ListTeachers returns teachers of the subsidiary qualified for the subject.
func (r *ReferenceRepository) ListTeachers(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, error) {
	query := `SELECT ` + teacherColumns + ` FROM teachers t JOIN teacher_subjects ts ON ts.teacher_id = t.id WHERE ts.subject_id = $1 AND t.subsidiary_id = $2 ORDER BY t.id`
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query, filter.SubjectID, filter.SubsidiaryID); err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	return teachers, nil
}

// ListRooms returns every room of the subsidiary.
func (r *ReferenceRepository) ListRooms(ctx context.Context, subsidiaryID int64) ([]models.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE subsidiary_id = $1 ORDER BY id`
	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, query, subsidiaryID); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// GetTeacher fetches a teacher by id.
func (r *ReferenceRepository) GetTeacher(ctx context.Context, id int64) (*models.Teacher, error) {
	query := `SELECT ` + teacherColumns + ` FROM teachers t WHERE t.id = $1`
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, id); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// GetRoom fetches a room by id.
func (r *ReferenceRepository) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1`
	var room models.Room
	if err := r.db.GetContext(ctx, &room, query, id); err != nil {
		return nil, err
	}
	return &room, nil
}

// CountActiveStudents counts active students with an active membership in the group.
func (r *ReferenceRepository) CountActiveStudents(ctx context.Context, groupID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM group_students gs JOIN students s ON s.id = gs.student_id WHERE gs.group_id = $1 AND gs.is_active = TRUE AND s.is_active = TRUE`
	var total int
	if err := r.db.GetContext(ctx, &total, query, groupID); err != nil {
		return 0, fmt.Errorf("count group students: %w", err)
	}
	return total, nil
}
