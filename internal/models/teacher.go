package models

// Teacher represents an instructor who can be assigned to scheduled events.
type Teacher struct {
	ID              int64  `db:"id" json:"id"`
	FullName        string `db:"full_name" json:"full_name"`
	SubsidiaryID    int64  `db:"subsidiary_id" json:"subsidiary_id"`
	MaxHoursPerWeek int    `db:"max_hours_per_week" json:"max_hours_per_week"`
	IsActive        bool   `db:"is_active" json:"is_active"`
}

// TeacherFilter narrows reference lookups for alternative teachers.
type TeacherFilter struct {
	SubjectID    int64
	SubsidiaryID int64
}

// EventTeacher is a join row between events and their teachers.
type EventTeacher struct {
	ScheduledEventID int64 `db:"scheduled_event_id"`
	Teacher
}
