package service

import (
	"time"

	"github.com/noah-isme/sma-schedule-conflicts/internal/models"
)

// Weekdays are numbered 0 = Monday .. 6 = Sunday throughout the conflict engine.
const (
	weekdayMonday = 0
	weekdayFriday = 4
	daysPerWeek   = 7
)

// overlaps reports whether [startA, endA) and [startB, endB) intersect. Touching ranges do not overlap.
func overlaps(startA, endA, startB, endB models.Clock) bool {
	return startA < endB && startB < endA
}

// isoWeekday converts a date to the Monday-first weekday index.
func isoWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % daysPerWeek
}

// dateOnly truncates t to midnight UTC of its calendar date.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// effectiveDate projects an event onto a concrete date: single events use their date, weekly events
// the first date on or after planStart falling on their weekday.
func effectiveDate(event *models.ScheduledEvent, planStart time.Time) time.Time {
	if event.EventType == models.EventTypeSingle && event.SpecificDate != nil {
		return dateOnly(*event.SpecificDate)
	}
	start := dateOnly(planStart)
	if event.Weekday == nil {
		return start
	}
	offset := (*event.Weekday - isoWeekday(start) + daysPerWeek) % daysPerWeek
	return start.AddDate(0, 0, offset)
}

// eventDate is effectiveDate anchored to the event's own plan.
func eventDate(event *models.ScheduledEvent) time.Time {
	return effectiveDate(event, event.PlanStartDate)
}

// weekStart returns the Monday of the ISO week containing date.
func weekStart(date time.Time) time.Time {
	d := dateOnly(date)
	return d.AddDate(0, 0, -isoWeekday(d))
}

// eventWeekday returns the weekday an event occurs on.
func eventWeekday(event *models.ScheduledEvent) int {
	if event.EventType == models.EventTypeWeekly && event.Weekday != nil {
		return *event.Weekday
	}
	return isoWeekday(eventDate(event))
}

// eventsOverlap reports whether two events occupy the same time. When samePlan is set, events in
// different plans never overlap.
func eventsOverlap(a, b *models.ScheduledEvent, samePlan bool) bool {
	if samePlan && a.SchedulePlanID != b.SchedulePlanID {
		return false
	}
	if !overlaps(a.StartTime, a.EndTime, b.StartTime, b.EndTime) {
		return false
	}

	aWeekly := a.EventType == models.EventTypeWeekly
	bWeekly := b.EventType == models.EventTypeWeekly
	switch {
	case aWeekly && bWeekly:
		return a.Weekday != nil && b.Weekday != nil && *a.Weekday == *b.Weekday
	case !aWeekly && !bWeekly:
		return a.SpecificDate != nil && b.SpecificDate != nil && dateOnly(*a.SpecificDate).Equal(dateOnly(*b.SpecificDate))
	case aWeekly:
		return a.Weekday != nil && b.SpecificDate != nil && isoWeekday(*b.SpecificDate) == *a.Weekday
	default:
		return b.Weekday != nil && a.SpecificDate != nil && isoWeekday(*a.SpecificDate) == *b.Weekday
	}
}

// inDateRange reports whether date falls within [start, end]; a nil end is open-ended.
func inDateRange(date, start time.Time, end *time.Time) bool {
	d := dateOnly(date)
	if d.Before(dateOnly(start)) {
		return false
	}
	if end != nil && d.After(dateOnly(*end)) {
		return false
	}
	return true
}

// weekdayAllowed reports whether weekday is in set; an empty set allows every day.
func weekdayAllowed(set []int64, weekday int) bool {
	if len(set) == 0 {
		return true
	}
	for _, d := range set {
		if int(d) == weekday {
			return true
		}
	}
	return false
}

// minutesToHours converts a minute total to fractional hours.
func minutesToHours(minutes int) float64 {
	return float64(minutes) / 60
}
