package models

import (
	"strings"
	"time"
)

// ConflictSeverity grades how serious a conflict is.
type ConflictSeverity string

const (
	SeverityLow      ConflictSeverity = "low"
	SeverityMedium   ConflictSeverity = "medium"
	SeverityHigh     ConflictSeverity = "high"
	SeverityCritical ConflictSeverity = "critical"
)

// Severities lists severities from most to least serious.
var Severities = []ConflictSeverity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// ConflictStatus tracks the lifecycle of a stored conflict.
type ConflictStatus string

const (
	ConflictDetected     ConflictStatus = "detected"
	ConflictAcknowledged ConflictStatus = "acknowledged"
	ConflictInProgress   ConflictStatus = "in_progress"
	ConflictResolved     ConflictStatus = "resolved"
	ConflictIgnored      ConflictStatus = "ignored"
)

// ConflictStatuses lists every status in lifecycle order.
var ConflictStatuses = []ConflictStatus{ConflictDetected, ConflictAcknowledged, ConflictInProgress, ConflictResolved, ConflictIgnored}

// IsClosed reports whether the status carries a resolution timestamp.
func (s ConflictStatus) IsClosed() bool {
	return s == ConflictResolved || s == ConflictIgnored
}

// Valid reports whether s is a known status.
func (s ConflictStatus) Valid() bool {
	for _, known := range ConflictStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ConflictKind is the closed set of rule violations produced by detection.
type ConflictKind string

const (
	KindUnknown              ConflictKind = ""
	KindTeacherTime          ConflictKind = "teacher_time_conflict"
	KindRoomTime             ConflictKind = "room_time_conflict"
	KindTeacherUnavailable   ConflictKind = "teacher_unavailable"
	KindTeacherNotInSchedule ConflictKind = "teacher_not_in_schedule"
	KindRoomUnavailable      ConflictKind = "room_unavailable"
	KindNonWorkingTime       ConflictKind = "non_working_time"
	KindOutsideWorkingHours  ConflictKind = "outside_working_hours"
	KindTeacherWorkload      ConflictKind = "teacher_workload_exceeded"
	KindTeacherDailyWorkload ConflictKind = "teacher_daily_workload_exceeded"
	KindRoomCapacityExceeded ConflictKind = "room_capacity_exceeded"
)

var knownKinds = []ConflictKind{
	KindTeacherTime,
	KindRoomTime,
	KindTeacherUnavailable,
	KindTeacherNotInSchedule,
	KindRoomUnavailable,
	KindNonWorkingTime,
	KindOutsideWorkingHours,
	KindTeacherWorkload,
	KindTeacherDailyWorkload,
	KindRoomCapacityExceeded,
}

// ParseConflictKind maps a conflict type name onto a kind. Exact names win; names curated by
// administrators fall back to keyword classification in a fixed order.
func ParseConflictKind(name string) ConflictKind {
	lowered := strings.ToLower(strings.TrimSpace(name))
	for _, kind := range knownKinds {
		if lowered == string(kind) {
			return kind
		}
	}

	switch {
	case strings.Contains(lowered, "teacher") && strings.Contains(lowered, "time"):
		return KindTeacherTime
	case strings.Contains(lowered, "room") && strings.Contains(lowered, "time"):
		return KindRoomTime
	case strings.Contains(lowered, "teacher_unavailable"):
		return KindTeacherUnavailable
	case strings.Contains(lowered, "room_unavailable"):
		return KindRoomUnavailable
	case strings.Contains(lowered, "workload"):
		return KindTeacherWorkload
	case strings.Contains(lowered, "capacity"):
		return KindRoomCapacityExceeded
	case strings.Contains(lowered, "working"):
		return KindOutsideWorkingHours
	}
	return KindUnknown
}

// ConflictType is admin-curated reference data describing a class of conflicts.
type ConflictType struct {
	ID          int64            `db:"id" json:"id"`
	Name        string           `db:"name" json:"name"`
	Description string           `db:"description" json:"description"`
	Severity    ConflictSeverity `db:"severity" json:"severity"`
	IsBlocking  bool             `db:"is_blocking" json:"is_blocking"`
	AutoResolve bool             `db:"auto_resolve" json:"auto_resolve"`
	IsActive    bool             `db:"is_active" json:"is_active"`
}

// Kind classifies the type by name.
func (t ConflictType) Kind() ConflictKind {
	return ParseConflictKind(t.Name)
}

// Conflict is a stored rule violation loosely referencing a scheduled event by id.
type Conflict struct {
	ID               int64          `db:"id" json:"id"`
	ConflictTypeID   int64          `db:"conflict_type_id" json:"conflict_type_id"`
	ScheduledEventID *int64         `db:"scheduled_event_id" json:"scheduled_event_id,omitempty"`
	Description      string         `db:"description" json:"description"`
	Status           ConflictStatus `db:"status" json:"status"`
	DetectedAt       time.Time      `db:"detected_at" json:"detected_at"`
	ResolvedAt       *time.Time     `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy       *string        `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolutionNotes  string         `db:"resolution_notes" json:"resolution_notes"`

	TypeName        string           `db:"type_name" json:"type_name"`
	TypeSeverity    ConflictSeverity `db:"type_severity" json:"severity"`
	TypeIsBlocking  bool             `db:"type_is_blocking" json:"is_blocking"`
	TypeAutoResolve bool             `db:"type_auto_resolve" json:"auto_resolve"`
}

// Kind classifies the conflict by its type name.
func (c Conflict) Kind() ConflictKind {
	return ParseConflictKind(c.TypeName)
}

// ConflictFilter narrows conflict listings.
type ConflictFilter struct {
	PlanID   *int64
	Statuses []ConflictStatus
	TypeName string
	EventIDs []int64
}

// ConflictDeleteFilter scopes bulk removal of stored conflicts.
type ConflictDeleteFilter struct {
	PlanID         *int64
	Statuses       []ConflictStatus
	ResolvedBefore *time.Time
}

// ConflictStatusUpdate transitions a conflict.
type ConflictStatusUpdate struct {
	ID              int64
	Status          ConflictStatus
	ResolvedAt      *time.Time
	ResolvedBy      *string
	ResolutionNotes string
}

// ConflictCount is one bucket of a status/severity breakdown.
type ConflictCount struct {
	Status   ConflictStatus   `db:"status"`
	Severity ConflictSeverity `db:"severity"`
	Total    int              `db:"total"`
}
