package models

import (
	"time"

	"github.com/lib/pq"
)

// WorkingRuleType classifies a working period rule.
type WorkingRuleType string

const (
	WorkingRuleWorkingDay WorkingRuleType = "working_day"
	WorkingRuleHoliday    WorkingRuleType = "holiday"
	WorkingRuleWeekend    WorkingRuleType = "weekend"
	WorkingRuleVacation   WorkingRuleType = "vacation"
	WorkingRuleSpecial    WorkingRuleType = "special"
)

// Recurrence describes how a working period rule repeats.
type Recurrence string

const (
	RecurrenceOnce    Recurrence = "once"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
	RecurrenceYearly  Recurrence = "yearly"
)

// AvailabilityType classifies a teacher availability period.
type AvailabilityType string

const (
	AvailabilityAvailable   AvailabilityType = "available"
	AvailabilityUnavailable AvailabilityType = "unavailable"
	AvailabilityPreferred   AvailabilityType = "preferred"
	AvailabilityLimited     AvailabilityType = "limited"
)

// WorkingPeriodRule declares working days, holidays and vacations for a subsidiary or globally.
// Weekdays use 0 = Monday .. 6 = Sunday; an empty set matches every day.
type WorkingPeriodRule struct {
	ID           int64           `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	SubsidiaryID *int64          `db:"subsidiary_id" json:"subsidiary_id,omitempty"`
	RuleType     WorkingRuleType `db:"rule_type" json:"rule_type"`
	StartDate    time.Time       `db:"start_date" json:"start_date"`
	EndDate      *time.Time      `db:"end_date" json:"end_date,omitempty"`
	Recurrence   Recurrence      `db:"recurrence" json:"recurrence"`
	Weekdays     pq.Int64Array   `db:"weekdays" json:"weekdays"`
	StartTime    *Clock          `db:"start_time" json:"start_time,omitempty"`
	EndTime      *Clock          `db:"end_time" json:"end_time,omitempty"`
	Priority     int             `db:"priority" json:"priority"`
	IsActive     bool            `db:"is_active" json:"is_active"`
}

// TeacherAvailabilityPeriod restricts or allows a teacher over a date range and time window.
type TeacherAvailabilityPeriod struct {
	ID               int64            `db:"id" json:"id"`
	TeacherID        int64            `db:"teacher_id" json:"teacher_id"`
	AvailabilityType AvailabilityType `db:"availability_type" json:"availability_type"`
	StartDate        time.Time        `db:"start_date" json:"start_date"`
	EndDate          *time.Time       `db:"end_date" json:"end_date,omitempty"`
	StartTime        Clock            `db:"start_time" json:"start_time"`
	EndTime          Clock            `db:"end_time" json:"end_time"`
	Weekdays         pq.Int64Array    `db:"weekdays" json:"weekdays"`
	MaxHoursPerDay   *int             `db:"max_hours_per_day" json:"max_hours_per_day,omitempty"`
	MaxHoursPerWeek  *int             `db:"max_hours_per_week" json:"max_hours_per_week,omitempty"`
	Notes            string           `db:"notes" json:"notes"`
	IsActive         bool             `db:"is_active" json:"is_active"`
}

// RoomAvailabilityRule blocks or allows a room over a date range and time window.
type RoomAvailabilityRule struct {
	ID          int64         `db:"id" json:"id"`
	RoomID      int64         `db:"room_id" json:"room_id"`
	StartDate   time.Time     `db:"start_date" json:"start_date"`
	EndDate     *time.Time    `db:"end_date" json:"end_date,omitempty"`
	StartTime   Clock         `db:"start_time" json:"start_time"`
	EndTime     Clock         `db:"end_time" json:"end_time"`
	Weekdays    pq.Int64Array `db:"weekdays" json:"weekdays"`
	IsAvailable bool          `db:"is_available" json:"is_available"`
	Reason      string        `db:"reason" json:"reason"`
	IsActive    bool          `db:"is_active" json:"is_active"`
}

// TimeSlot is a catalog entry of a candidate lesson slot.
type TimeSlot struct {
	ID           int64  `db:"id" json:"id"`
	Name         string `db:"name" json:"name"`
	SubsidiaryID *int64 `db:"subsidiary_id" json:"subsidiary_id,omitempty"`
	StartTime    Clock  `db:"start_time" json:"start_time"`
	EndTime      Clock  `db:"end_time" json:"end_time"`
	Order        int    `db:"sort_order" json:"order"`
	IsActive     bool   `db:"is_active" json:"is_active"`
}
