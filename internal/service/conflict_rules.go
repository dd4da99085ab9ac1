package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-schedule-conflicts/internal/dto"
	"github.com/noah-isme/sma-schedule-conflicts/internal/models"
)

func newDescriptor(kind models.ConflictKind, severity models.ConflictSeverity, event *models.ScheduledEvent, blocking bool, description string) dto.ConflictDescriptor {
	return dto.ConflictDescriptor{
		Type:        kind,
		Severity:    severity,
		EventID:     event.ID,
		Description: description,
		Blocking:    blocking,
	}
}

// availabilityCovers reports whether a teacher availability period applies to the date and window.
func availabilityCovers(p models.TeacherAvailabilityPeriod, date time.Time, start, end models.Clock) bool {
	if !inDateRange(date, p.StartDate, p.EndDate) {
		return false
	}
	if !weekdayAllowed(p.Weekdays, isoWeekday(date)) {
		return false
	}
	return overlaps(start, end, p.StartTime, p.EndTime)
}

// roomRuleCovers reports whether a room availability rule applies to the date and window.
func roomRuleCovers(r models.RoomAvailabilityRule, date time.Time, start, end models.Clock) bool {
	if !inDateRange(date, r.StartDate, r.EndDate) {
		return false
	}
	if !weekdayAllowed(r.Weekdays, isoWeekday(date)) {
		return false
	}
	return overlaps(start, end, r.StartTime, r.EndTime)
}

// workingRuleCovers applies recurrence-specific date checks, then the optional time window.
// Recurrences other than once and weekly match any date.
func workingRuleCovers(r models.WorkingPeriodRule, date time.Time, start, end models.Clock) bool {
	switch r.Recurrence {
	case models.RecurrenceOnce:
		if !inDateRange(date, r.StartDate, r.EndDate) {
			return false
		}
	case models.RecurrenceWeekly:
		if !weekdayAllowed(r.Weekdays, isoWeekday(date)) {
			return false
		}
	}
	return ruleWindowOverlaps(r, start, end)
}

// slotInWorkingRule checks a candidate weekday/slot against a rule's weekday set and window.
func slotInWorkingRule(r models.WorkingPeriodRule, weekday int, slot models.TimeSlot) bool {
	if !weekdayAllowed(r.Weekdays, weekday) {
		return false
	}
	return ruleWindowOverlaps(r, slot.StartTime, slot.EndTime)
}

func ruleWindowOverlaps(r models.WorkingPeriodRule, start, end models.Clock) bool {
	if r.StartTime == nil || r.EndTime == nil {
		return true
	}
	return overlaps(start, end, *r.StartTime, *r.EndTime)
}

func (d *ConflictDetector) checkTeacherConflicts(snap *scheduleSnapshot, event *models.ScheduledEvent) []dto.ConflictDescriptor {
	var found []dto.ConflictDescriptor
	for _, teacher := range event.Teachers {
		for _, other := range snap.byTeacher[teacher.ID] {
			if other.ID == event.ID || !eventsOverlap(event, other, true) {
				continue
			}
			desc := newDescriptor(models.KindTeacherTime, models.SeverityCritical, event, true,
				fmt.Sprintf("Teacher %s is busy elsewhere: %s in room %s", teacher.FullName, other.Label(), other.RoomName))
			otherID := other.ID
			desc.ConflictingEventID = &otherID
			found = append(found, desc)
		}
	}
	return found
}

// checkRoomConflicts compares against bookings of the room in every plan.
func (d *ConflictDetector) checkRoomConflicts(snap *scheduleSnapshot, event *models.ScheduledEvent) []dto.ConflictDescriptor {
	var found []dto.ConflictDescriptor
	for _, other := range snap.byRoom[event.RoomID] {
		if other.ID == event.ID || !eventsOverlap(event, other, false) {
			continue
		}
		desc := newDescriptor(models.KindRoomTime, models.SeverityCritical, event, true,
			fmt.Sprintf("Room %s is occupied by another group: %s", event.RoomName, other.Label()))
		otherID := other.ID
		desc.ConflictingEventID = &otherID
		found = append(found, desc)
	}
	return found
}

func (d *ConflictDetector) checkTeacherAvailability(ctx context.Context, snap *scheduleSnapshot, event *models.ScheduledEvent) []dto.ConflictDescriptor {
	var found []dto.ConflictDescriptor
	date := eventDate(event)
	for _, teacher := range event.Teachers {
		periods, err := snap.teacherAvailability(ctx, teacher.ID)
		if err != nil {
			d.logger.Warn("teacher availability lookup failed", zap.Int64("event_id", event.ID), zap.Int64("teacher_id", teacher.ID), zap.Error(err))
			continue
		}
		if len(periods) == 0 {
			continue
		}

		available := false
		for _, period := range periods {
			if !availabilityCovers(period, date, event.StartTime, event.EndTime) {
				continue
			}
			if period.AvailabilityType == models.AvailabilityAvailable {
				available = true
				continue
			}
			if period.AvailabilityType == models.AvailabilityUnavailable {
				notes := period.Notes
				if notes == "" {
					notes = "no details"
				}
				found = append(found, newDescriptor(models.KindTeacherUnavailable, models.SeverityHigh, event, false,
					fmt.Sprintf("Teacher %s is unavailable at this time: %s", teacher.FullName, notes)))
				break
			}
		}

		if !available {
			found = append(found, newDescriptor(models.KindTeacherNotInSchedule, models.SeverityMedium, event, false,
				fmt.Sprintf("Event time is outside the working schedule of teacher %s", teacher.FullName)))
		}
	}
	return found
}

func (d *ConflictDetector) checkRoomAvailability(ctx context.Context, snap *scheduleSnapshot, event *models.ScheduledEvent) []dto.ConflictDescriptor {
	rules, err := snap.roomAvailability(ctx, event.RoomID)
	if err != nil {
		d.logger.Warn("room availability lookup failed", zap.Int64("event_id", event.ID), zap.Int64("room_id", event.RoomID), zap.Error(err))
		return nil
	}

	var found []dto.ConflictDescriptor
	date := eventDate(event)
	for _, rule := range rules {
		if rule.IsAvailable || !roomRuleCovers(rule, date, event.StartTime, event.EndTime) {
			continue
		}
		reason := rule.Reason
		if reason == "" {
			reason = "no details"
		}
		found = append(found, newDescriptor(models.KindRoomUnavailable, models.SeverityHigh, event, true,
			fmt.Sprintf("Room %s is unavailable: %s", event.RoomName, reason)))
	}
	return found
}

func (d *ConflictDetector) checkWorkingHours(ctx context.Context, snap *scheduleSnapshot, event *models.ScheduledEvent) []dto.ConflictDescriptor {
	rules, err := snap.workingPeriodRules(ctx, event.PlanSubsidiaryID)
	if err != nil {
		d.logger.Warn("working period lookup failed", zap.Int64("event_id", event.ID), zap.Error(err))
		return nil
	}

	date := eventDate(event)
	for _, rule := range rules {
		if !workingRuleCovers(rule, date, event.StartTime, event.EndTime) {
			continue
		}
		switch rule.RuleType {
		case models.WorkingRuleWorkingDay:
			return nil
		case models.WorkingRuleHoliday, models.WorkingRuleWeekend, models.WorkingRuleVacation:
			return []dto.ConflictDescriptor{newDescriptor(models.KindNonWorkingTime, models.SeverityMedium, event, false,
				fmt.Sprintf("Event is scheduled during non-working time: %s", rule.Name))}
		}
	}

	return []dto.ConflictDescriptor{newDescriptor(models.KindOutsideWorkingHours, models.SeverityMedium, event, false,
		"Event is scheduled outside working hours")}
}

func (d *ConflictDetector) checkTeacherWorkload(ctx context.Context, snap *scheduleSnapshot, event *models.ScheduledEvent) []dto.ConflictDescriptor {
	var found []dto.ConflictDescriptor
	date := eventDate(event)
	monday := weekStart(date)
	sunday := monday.AddDate(0, 0, daysPerWeek-1)

	for _, teacher := range event.Teachers {
		weeklyMinutes, dailyMinutes := 0, 0
		for _, other := range snap.byTeacher[teacher.ID] {
			if other.SchedulePlanID != event.SchedulePlanID {
				continue
			}
			otherDate := eventDate(other)
			if inDateRange(otherDate, monday, &sunday) {
				weeklyMinutes += other.DurationMinutes
			}
			if otherDate.Equal(date) {
				dailyMinutes += other.DurationMinutes
			}
		}

		weeklyHours := minutesToHours(weeklyMinutes)
		if teacher.MaxHoursPerWeek > 0 && weeklyHours > float64(teacher.MaxHoursPerWeek) {
			found = append(found, newDescriptor(models.KindTeacherWorkload, models.SeverityHigh, event, false,
				fmt.Sprintf("Weekly workload of teacher %s exceeded: %.1f hours (max %d)", teacher.FullName, weeklyHours, teacher.MaxHoursPerWeek)))
		}

		periods, err := snap.teacherAvailability(ctx, teacher.ID)
		if err != nil {
			d.logger.Warn("teacher availability lookup failed", zap.Int64("event_id", event.ID), zap.Int64("teacher_id", teacher.ID), zap.Error(err))
			continue
		}
		dailyHours := minutesToHours(dailyMinutes)
		for _, period := range periods {
			if period.MaxHoursPerDay == nil || !availabilityCovers(period, date, event.StartTime, event.EndTime) {
				continue
			}
			if dailyHours > float64(*period.MaxHoursPerDay) {
				found = append(found, newDescriptor(models.KindTeacherDailyWorkload, models.SeverityMedium, event, false,
					fmt.Sprintf("Daily workload of teacher %s exceeded: %.1f hours (max %d)", teacher.FullName, dailyHours, *period.MaxHoursPerDay)))
			}
		}
	}
	return found
}

func (d *ConflictDetector) checkRoomCapacity(ctx context.Context, snap *scheduleSnapshot, event *models.ScheduledEvent) []dto.ConflictDescriptor {
	if event.RoomCapacity == nil || *event.RoomCapacity <= 0 {
		return nil
	}
	students, err := snap.groupSize(ctx, event.GroupID)
	if err != nil {
		d.logger.Warn("group size lookup failed", zap.Int64("event_id", event.ID), zap.Int64("group_id", event.GroupID), zap.Error(err))
		return nil
	}
	if students <= *event.RoomCapacity {
		return nil
	}
	return []dto.ConflictDescriptor{newDescriptor(models.KindRoomCapacityExceeded, models.SeverityMedium, event, false,
		fmt.Sprintf("Room %s capacity exceeded: %d students (max %d)", event.RoomName, students, *event.RoomCapacity))}
}
