package models

import "time"

// EventType distinguishes recurring lessons from one-off ones.
type EventType string

const (
	EventTypeWeekly EventType = "weekly"
	EventTypeSingle EventType = "single"
)

// SchedulePlan is a named scheduling horizon scoped to one subsidiary.
type SchedulePlan struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	SubsidiaryID int64     `db:"subsidiary_id" json:"subsidiary_id"`
	StartDate    time.Time `db:"start_date" json:"start_date"`
	EndDate      time.Time `db:"end_date" json:"end_date"`
	IsActive     bool      `db:"is_active" json:"is_active"`
}

// ScheduledEvent is a weekly or single lesson with its joined plan, course and room context.
type ScheduledEvent struct {
	ID              int64      `db:"id" json:"id"`
	SchedulePlanID  int64      `db:"schedule_plan_id" json:"schedule_plan_id"`
	GroupID         int64      `db:"group_id" json:"group_id"`
	GroupCourseID   int64      `db:"group_course_id" json:"group_course_id"`
	RoomID          int64      `db:"room_id" json:"room_id"`
	EventType       EventType  `db:"event_type" json:"event_type"`
	Weekday         *int       `db:"weekday" json:"weekday,omitempty"`
	SpecificDate    *time.Time `db:"specific_date" json:"specific_date,omitempty"`
	StartTime       Clock      `db:"start_time" json:"start_time"`
	EndTime         Clock      `db:"end_time" json:"end_time"`
	DurationMinutes int        `db:"duration_minutes" json:"duration_minutes"`
	AcademicHours   int        `db:"academic_hours" json:"academic_hours"`
	IsActive        bool       `db:"is_active" json:"is_active"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`

	PlanSubsidiaryID int64     `db:"plan_subsidiary_id" json:"plan_subsidiary_id"`
	PlanStartDate    time.Time `db:"plan_start_date" json:"plan_start_date"`
	SubjectID        int64     `db:"subject_id" json:"subject_id"`
	CourseName       string    `db:"course_name" json:"course_name"`
	GroupName        string    `db:"group_name" json:"group_name"`
	RoomName         string    `db:"room_name" json:"room_name"`
	RoomCapacity     *int      `db:"room_capacity" json:"room_capacity,omitempty"`
	RoomSubsidiaryID int64     `db:"room_subsidiary_id" json:"room_subsidiary_id"`

	Teachers []Teacher `db:"-" json:"teachers"`
}

// TeacherIDs returns the ids of the teachers assigned to the event.
func (e *ScheduledEvent) TeacherIDs() []int64 {
	ids := make([]int64, 0, len(e.Teachers))
	for _, t := range e.Teachers {
		ids = append(ids, t.ID)
	}
	return ids
}

// HasTeacher reports whether teacherID teaches the event.
func (e *ScheduledEvent) HasTeacher(teacherID int64) bool {
	for _, t := range e.Teachers {
		if t.ID == teacherID {
			return true
		}
	}
	return false
}

// Label renders a short human description used in conflict texts.
func (e *ScheduledEvent) Label() string {
	label := e.CourseName
	if e.GroupName != "" {
		label += " (" + e.GroupName + ")"
	}
	if label == "" {
		label = "event"
	}
	return label + " " + e.StartTime.String() + "-" + e.EndTime.String()
}
