package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-schedule-conflicts/internal/dto"
	"github.com/noah-isme/sma-schedule-conflicts/internal/models"
)

const (
	resolutionResolved = "resolved"
	resolutionManual   = "manual"
	resolutionFailed   = "failed"

	maxSlotCandidates      = 10
	maxAlternativeTeachers = 5
	maxAlternativeRooms    = 5
	maxLargerRooms         = 3
	maxLowerWorkload       = 3
	maxWeekAlternatives    = 5

	splitGroupThreshold = 10
)

var (
	errNoEvent              = errors.New("conflict has no scheduled event")
	errIncompleteSuggestion = errors.New("suggestion cannot be applied")
)

var weekdayNames = [daysPerWeek]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// resolutionStrategy builds suggestions for one kind of conflict.
type resolutionStrategy func(r *ConflictResolver, ctx context.Context, snap *scheduleSnapshot, event *models.ScheduledEvent) []dto.Suggestion

var resolutionStrategies = map[models.ConflictKind]resolutionStrategy{
	models.KindTeacherTime:          (*ConflictResolver).suggestTeacherTime,
	models.KindRoomTime:             (*ConflictResolver).suggestRoomTime,
	models.KindTeacherUnavailable:   (*ConflictResolver).suggestTeacherAvailability,
	models.KindRoomUnavailable:      (*ConflictResolver).suggestRoomAvailability,
	models.KindTeacherWorkload:      (*ConflictResolver).suggestWorkload,
	models.KindTeacherDailyWorkload: (*ConflictResolver).suggestWorkload,
	models.KindRoomCapacityExceeded: (*ConflictResolver).suggestCapacity,
	models.KindNonWorkingTime:       (*ConflictResolver).suggestWorkingTime,
	models.KindOutsideWorkingHours:  (*ConflictResolver).suggestWorkingTime,
}

// ConflictResolver proposes and applies remediations for stored conflicts.
type ConflictResolver struct {
	events    conflictEventStore
	rules     schedulingRuleStore
	refs      schedulingReferenceStore
	conflicts conflictStore
	locker    EventLocker
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewConflictResolver constructs a resolver. A nil locker falls back to an in-process lock.
func NewConflictResolver(events conflictEventStore, rules schedulingRuleStore, refs schedulingReferenceStore, conflicts conflictStore, locker EventLocker, metrics *MetricsService, logger *zap.Logger) *ConflictResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = NewLocalEventLocker()
	}
	return &ConflictResolver{
		events:    events,
		rules:     rules,
		refs:      refs,
		conflicts: conflicts,
		locker:    locker,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SuggestSolutions returns remediations in construction order. Conflicts without a resolvable
// event, or of a kind without a strategy, yield no suggestions.
func (r *ConflictResolver) SuggestSolutions(ctx context.Context, conflict *models.Conflict) ([]dto.Suggestion, error) {
	if conflict == nil || conflict.ScheduledEventID == nil {
		return []dto.Suggestion{}, nil
	}
	strategy, ok := resolutionStrategies[conflict.Kind()]
	if !ok {
		return []dto.Suggestion{}, nil
	}

	event, err := r.events.GetEvent(ctx, *conflict.ScheduledEventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []dto.Suggestion{}, nil
		}
		return nil, fmt.Errorf("load event %d: %w", *conflict.ScheduledEventID, err)
	}

	universe, err := r.events.ListActiveEvents(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list active events: %w", err)
	}
	snap := newScheduleSnapshot(universe, r.rules, r.refs)

	suggestions := strategy(r, ctx, snap, event)
	if suggestions == nil {
		suggestions = []dto.Suggestion{}
	}
	return suggestions, nil
}

// CanAutoResolve reports whether the conflict's type allows unattended resolution.
func (r *ConflictResolver) CanAutoResolve(conflict *models.Conflict) bool {
	return conflict != nil && conflict.TypeAutoResolve
}

// AutoResolveConflict applies the first high priority suggestion and marks the conflict resolved.
// It returns false, leaving the event untouched, when no such suggestion exists.
func (r *ConflictResolver) AutoResolveConflict(ctx context.Context, conflict *models.Conflict) bool {
	outcome := r.autoResolve(ctx, conflict)
	r.metrics.RecordResolution(outcome)
	return outcome == resolutionResolved
}

func (r *ConflictResolver) autoResolve(ctx context.Context, conflict *models.Conflict) string {
	suggestions, err := r.SuggestSolutions(ctx, conflict)
	if err != nil {
		r.logger.Warn("suggestion lookup failed", zap.Int64("conflict_id", conflict.ID), zap.Error(err))
		return resolutionFailed
	}
	suggestion, ok := firstHighPriority(suggestions)
	if !ok {
		return resolutionManual
	}
	if !r.ApplySolution(ctx, conflict, suggestion) {
		return resolutionFailed
	}
	if err := r.markResolved(ctx, conflict, "Auto-resolved: "+suggestion.Description, nil); err != nil {
		r.logger.Warn("failed to mark conflict resolved", zap.Int64("conflict_id", conflict.ID), zap.Error(err))
		return resolutionFailed
	}
	return resolutionResolved
}

// AutoResolveAll resolves every detected conflict whose type allows it, optionally scoped to a plan.
func (r *ConflictResolver) AutoResolveAll(ctx context.Context, planID *int64) (dto.AutoResolveStats, error) {
	var stats dto.AutoResolveStats

	conflicts, err := r.conflicts.ListConflicts(ctx, models.ConflictFilter{
		PlanID:   planID,
		Statuses: []models.ConflictStatus{models.ConflictDetected},
	})
	if err != nil {
		return stats, fmt.Errorf("list detected conflicts: %w", err)
	}

	for i := range conflicts {
		conflict := &conflicts[i]
		if !r.CanAutoResolve(conflict) {
			continue
		}
		stats.TotalConflicts++
		if ctx.Err() != nil {
			stats.FailedToResolve++
			continue
		}

		outcome := r.autoResolve(ctx, conflict)
		r.metrics.RecordResolution(outcome)
		switch outcome {
		case resolutionResolved:
			stats.AutoResolved++
		case resolutionManual:
			stats.ManualRequired++
		default:
			stats.FailedToResolve++
		}
	}

	r.logger.Sugar().Infow("auto-resolution finished",
		"plan_id", planIDField(planID),
		"total", stats.TotalConflicts,
		"resolved", stats.AutoResolved,
		"manual", stats.ManualRequired,
		"failed", stats.FailedToResolve,
	)
	return stats, ctx.Err()
}

// ApplySolution mutates the conflict's event according to the suggestion. Missing entities and
// store failures yield false.
func (r *ConflictResolver) ApplySolution(ctx context.Context, conflict *models.Conflict, suggestion dto.Suggestion) bool {
	return r.ApplySuggestion(ctx, conflict, suggestion) == nil
}

// ApplySuggestion is ApplySolution reporting why the change was not made. Lock errors are wrapped,
// so an EVENT_LOCKED error from the locker stays visible to errors.As.
func (r *ConflictResolver) ApplySuggestion(ctx context.Context, conflict *models.Conflict, suggestion dto.Suggestion) error {
	if conflict == nil || conflict.ScheduledEventID == nil {
		return errNoEvent
	}
	eventID := *conflict.ScheduledEventID
	log := r.logger.With(zap.Int64("conflict_id", conflict.ID), zap.Int64("event_id", eventID), zap.String("action", string(suggestion.Action)))

	unlock, err := r.locker.LockEvent(ctx, eventID)
	if err != nil {
		log.Warn("event lock not acquired", zap.Error(err))
		return fmt.Errorf("lock event %d: %w", eventID, err)
	}
	defer unlock()

	event, err := r.events.GetEvent(ctx, eventID)
	if err != nil {
		log.Warn("event lookup failed", zap.Error(err))
		return fmt.Errorf("load event %d: %w", eventID, err)
	}

	switch suggestion.Action {
	case dto.ActionChangeTime:
		if suggestion.NewTime == nil {
			return errIncompleteSuggestion
		}
		applyTime(event, *suggestion.NewTime)
	case dto.ActionChangeTeacher:
		if suggestion.NewTeacherID == nil {
			return errIncompleteSuggestion
		}
		teacher, err := r.refs.GetTeacher(ctx, *suggestion.NewTeacherID)
		if err != nil {
			log.Warn("teacher lookup failed", zap.Int64("teacher_id", *suggestion.NewTeacherID), zap.Error(err))
			return fmt.Errorf("load teacher %d: %w", *suggestion.NewTeacherID, err)
		}
		event.Teachers = []models.Teacher{*teacher}
	case dto.ActionChangeRoom:
		if suggestion.NewRoomID == nil {
			return errIncompleteSuggestion
		}
		room, err := r.refs.GetRoom(ctx, *suggestion.NewRoomID)
		if err != nil {
			log.Warn("room lookup failed", zap.Int64("room_id", *suggestion.NewRoomID), zap.Error(err))
			return fmt.Errorf("load room %d: %w", *suggestion.NewRoomID, err)
		}
		event.RoomID = room.ID
		event.RoomName = room.Name
		event.RoomCapacity = room.Capacity
		event.RoomSubsidiaryID = room.SubsidiaryID
	default:
		return fmt.Errorf("%w: action %q", errIncompleteSuggestion, suggestion.Action)
	}

	if err := r.events.SaveEvent(ctx, event); err != nil {
		log.Warn("event save failed", zap.Error(err))
		return fmt.Errorf("save event %d: %w", eventID, err)
	}
	log.Info("conflict solution applied")
	return nil
}

// applyTime moves the event to the proposed weekday and window. Single events keep their ISO week.
func applyTime(event *models.ScheduledEvent, proposal dto.TimeProposal) {
	if event.EventType == models.EventTypeSingle && event.SpecificDate != nil {
		moved := weekStart(*event.SpecificDate).AddDate(0, 0, proposal.Weekday)
		event.SpecificDate = &moved
	} else {
		weekday := proposal.Weekday
		event.Weekday = &weekday
	}
	event.StartTime = proposal.StartTime
	event.EndTime = proposal.EndTime
	event.DurationMinutes = proposal.EndTime.Sub(proposal.StartTime)
}

func (r *ConflictResolver) markResolved(ctx context.Context, conflict *models.Conflict, notes string, resolvedBy *string) error {
	resolvedAt := r.now()
	if err := r.conflicts.UpdateConflictStatus(ctx, models.ConflictStatusUpdate{
		ID:              conflict.ID,
		Status:          models.ConflictResolved,
		ResolvedAt:      &resolvedAt,
		ResolvedBy:      resolvedBy,
		ResolutionNotes: notes,
	}); err != nil {
		return err
	}
	conflict.Status = models.ConflictResolved
	conflict.ResolvedAt = &resolvedAt
	conflict.ResolvedBy = resolvedBy
	conflict.ResolutionNotes = notes
	return nil
}

func firstHighPriority(suggestions []dto.Suggestion) (dto.Suggestion, bool) {
	for _, s := range suggestions {
		if s.Priority == dto.PriorityHigh {
			return s, true
		}
	}
	return dto.Suggestion{}, false
}

// --- Strategies ---

func (r *ConflictResolver) suggestTeacherTime(ctx context.Context, snap *scheduleSnapshot, event *models.ScheduledEvent) []dto.Suggestion {
	if len(event.Teachers) == 0 {
		return nil
	}
	var out []dto.Suggestion
	primary := event.Teachers[0]
	for _, slot := range limit(r.freeTeacherSlots(ctx, snap, primary.ID, event), 3) {
		out = append(out, timeSuggestion("reschedule_time", "Move to "+formatSlot(slot), slot, dto.PriorityHigh))
	}
	for _, teacher := range limit(r.alternativeTeachers(ctx, snap, event), 2) {
		out = append(out, teacherSuggestion("change_teacher", "Replace teacher with "+teacher.FullName, teacher, dto.PriorityMedium))
	}
	return out
}

func (r *ConflictResolver) suggestRoomTime(ctx context.Context, snap *scheduleSnapshot, event *models.ScheduledEvent) []dto.Suggestion {
	var out []dto.Suggestion
	for _, room := range limit(r.alternativeRooms(ctx, snap, event), 3) {
		out = append(out, roomSuggestion("change_room", "Move to room "+room.Name, room, dto.PriorityHigh))
	}
	for _, slot := range limit(r.freeRoomSlots(ctx, snap, event), 2) {
		out = append(out, timeSuggestion("reschedule_time", "Move to "+formatSlot(slot), slot, dto.PriorityMedium))
	}
	return out
}

func (r *ConflictResolver) suggestTeacherAvailability(ctx context.Context, snap *scheduleSnapshot, event *models.ScheduledEvent) []dto.Suggestion {
	if len(event.Teachers) == 0 {
		return nil
	}
	var out []dto.Suggestion
	primary := event.Teachers[0]
	for _, slot := range limit(r.teacherAvailableSlots(ctx, snap, primary.ID, event), 3) {
		out = append(out, timeSuggestion("reschedule_to_available_time", "Move to available time: "+formatSlot(slot), slot, dto.PriorityHigh))
	}
	for _, teacher := range limit(r.alternativeTeachers(ctx, snap, event), 2) {
		out = append(out, teacherSuggestion("change_teacher", "Replace teacher with "+teacher.FullName, teacher, dto.PriorityMedium))
	}
	return out
}

func (r *ConflictResolver) suggestRoomAvailability(ctx context.Context, snap *scheduleSnapshot, event *models.ScheduledEvent) []dto.Suggestion {
	var out []dto.Suggestion
	for _, room := range limit(r.alternativeRooms(ctx, snap, event), 3) {
		out = append(out, roomSuggestion("change_room", "Move to available room "+room.Name, room, dto.PriorityHigh))
	}
	return out
}

func (r *ConflictResolver) suggestWorkload(ctx context.Context, snap *scheduleSnapshot, event *models.ScheduledEvent) []dto.Suggestion {
	var out []dto.Suggestion
	for _, teacher := range limit(r.lowerWorkloadTeachers(ctx, snap, event), 2) {
		out = append(out, teacherSuggestion("change_teacher_workload", "Replace teacher with "+teacher.FullName+" (lower workload)", teacher, dto.PriorityMedium))
	}
	for _, slot := range limit(r.alternativeWeekTimes(ctx, snap, event), 2) {
		out = append(out, timeSuggestion("redistribute_workload", "Move to "+formatSlot(slot), slot, dto.PriorityLow))
	}
	return out
}

func (r *ConflictResolver) suggestCapacity(ctx context.Context, snap *scheduleSnapshot, event *models.ScheduledEvent) []dto.Suggestion {
	var out []dto.Suggestion
	for _, room := range r.largerRooms(ctx, snap, event) {
		out = append(out, roomSuggestion("change_to_larger_room", "Move to a larger room: "+room.Name, room, dto.PriorityHigh))
	}
	size, err := snap.groupSize(ctx, event.GroupID)
	if err != nil {
		r.logger.Warn("group size lookup failed", zap.Int64("event_id", event.ID), zap.Error(err))
		return out
	}
	if size > splitGroupThreshold {
		out = append(out, dto.Suggestion{
			Type:        "split_group",
			Description: "Consider splitting the group into subgroups",
			Action:      dto.ActionManualIntervention,
			Priority:    dto.PriorityLow,
		})
	}
	return out
}

func (r *ConflictResolver) suggestWorkingTime(ctx context.Context, snap *scheduleSnapshot, event *models.ScheduledEvent) []dto.Suggestion {
	var out []dto.Suggestion
	for _, slot := range limit(r.workingTimeSlots(ctx, snap, event.PlanSubsidiaryID), 3) {
		out = append(out, timeSuggestion("move_to_working_time", "Move to working time: "+formatSlot(slot), slot, dto.PriorityHigh))
	}
	return out
}

// --- Candidate searches ---

func (r *ConflictResolver) slots(ctx context.Context, snap *scheduleSnapshot, subsidiaryID int64) []models.TimeSlot {
	slots, err := snap.slotsFor(ctx, subsidiaryID)
	if err != nil {
		r.logger.Warn("time slot lookup failed", zap.Int64("subsidiary_id", subsidiaryID), zap.Error(err))
		return nil
	}
	return slots
}

// freeTeacherSlots scans Monday to Friday for slots without a weekly booking of the teacher.
func (r *ConflictResolver) freeTeacherSlots(ctx context.Context, snap *scheduleSnapshot, teacherID int64, event *models.ScheduledEvent) []dto.TimeProposal {
	var out []dto.TimeProposal
	slots := r.slots(ctx, snap, event.PlanSubsidiaryID)
	for weekday := weekdayMonday; weekday <= weekdayFriday; weekday++ {
		for _, slot := range slots {
			if snap.teacherFreeAt(teacherID, event.SchedulePlanID, weekday, slot.StartTime, slot.EndTime) {
				out = append(out, proposal(weekday, slot))
				if len(out) == maxSlotCandidates {
					return out
				}
			}
		}
	}
	return out
}

// freeRoomSlots scans Monday to Friday using the room's own subsidiary slot catalog.
func (r *ConflictResolver) freeRoomSlots(ctx context.Context, snap *scheduleSnapshot, event *models.ScheduledEvent) []dto.TimeProposal {
	var out []dto.TimeProposal
	slots := r.slots(ctx, snap, event.RoomSubsidiaryID)
	for weekday := weekdayMonday; weekday <= weekdayFriday; weekday++ {
		for _, slot := range slots {
			if snap.roomFreeAt(event.RoomID, event.SchedulePlanID, weekday, slot.StartTime, slot.EndTime) {
				out = append(out, proposal(weekday, slot))
				if len(out) == maxSlotCandidates {
					return out
				}
			}
		}
	}
	return out
}

// teacherAvailableSlots lists slots inside the teacher's available periods where the teacher is free.
func (r *ConflictResolver) teacherAvailableSlots(ctx context.Context, snap *scheduleSnapshot, teacherID int64, event *models.ScheduledEvent) []dto.TimeProposal {
	periods, err := snap.teacherAvailability(ctx, teacherID)
	if err != nil {
		r.logger.Warn("teacher availability lookup failed", zap.Int64("teacher_id", teacherID), zap.Error(err))
		return nil
	}
	var available []models.TeacherAvailabilityPeriod
	for _, p := range periods {
		if p.AvailabilityType == models.AvailabilityAvailable {
			available = append(available, p)
		}
	}
	if len(available) == 0 {
		return nil
	}

	var out []dto.TimeProposal
	slots := r.slots(ctx, snap, event.PlanSubsidiaryID)
	for _, period := range available {
		for _, weekday := range periodWeekdays(period.Weekdays) {
			for _, slot := range slots {
				if !overlaps(slot.StartTime, slot.EndTime, period.StartTime, period.EndTime) {
					continue
				}
				if snap.teacherFreeAt(teacherID, event.SchedulePlanID, weekday, slot.StartTime, slot.EndTime) {
					out = append(out, proposal(weekday, slot))
					if len(out) == maxSlotCandidates {
						return out
					}
				}
			}
		}
	}
	return out
}

// alternativeTeachers lists same-subject teachers at the plan's subsidiary free at the event's time.
func (r *ConflictResolver) alternativeTeachers(ctx context.Context, snap *scheduleSnapshot, event *models.ScheduledEvent) []models.Teacher {
	candidates := r.candidateTeachers(ctx, event)
	var out []models.Teacher
	for _, teacher := range candidates {
		if !snap.teacherFreeForEvent(teacher.ID, event) {
			continue
		}
		out = append(out, teacher)
		if len(out) == maxAlternativeTeachers {
			break
		}
	}
	return out
}

// lowerWorkloadTeachers orders same-subject teachers by their event count in the plan.
func (r *ConflictResolver) lowerWorkloadTeachers(ctx context.Context, snap *scheduleSnapshot, event *models.ScheduledEvent) []models.Teacher {
	candidates := r.candidateTeachers(ctx, event)
	loads := make(map[int64]int, len(candidates))
	for _, teacher := range candidates {
		loads[teacher.ID] = snap.planEventCount(teacher.ID, event.SchedulePlanID)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return loads[candidates[i].ID] < loads[candidates[j].ID]
	})
	return limit(candidates, maxLowerWorkload)
}

func (r *ConflictResolver) candidateTeachers(ctx context.Context, event *models.ScheduledEvent) []models.Teacher {
	teachers, err := r.refs.ListTeachers(ctx, models.TeacherFilter{SubjectID: event.SubjectID, SubsidiaryID: event.PlanSubsidiaryID})
	if err != nil {
		r.logger.Warn("teacher lookup failed", zap.Int64("event_id", event.ID), zap.Error(err))
		return nil
	}
	var out []models.Teacher
	for _, teacher := range teachers {
		if !teacher.IsActive || event.HasTeacher(teacher.ID) {
			continue
		}
		out = append(out, teacher)
	}
	return out
}

// alternativeRooms lists other rooms at the subsidiary large enough for the group and free at the event's time.
func (r *ConflictResolver) alternativeRooms(ctx context.Context, snap *scheduleSnapshot, event *models.ScheduledEvent) []models.Room {
	rooms, size, ok := r.candidateRooms(ctx, snap, event)
	if !ok {
		return nil
	}
	var out []models.Room
	for _, room := range rooms {
		if room.Capacity != nil && *room.Capacity < size {
			continue
		}
		if !snap.roomFreeForEvent(room.ID, event) {
			continue
		}
		out = append(out, room)
		if len(out) == maxAlternativeRooms {
			break
		}
	}
	return out
}

// largerRooms lists rooms strictly larger than both the current room and the group, smallest first.
func (r *ConflictResolver) largerRooms(ctx context.Context, snap *scheduleSnapshot, event *models.ScheduledEvent) []models.Room {
	rooms, size, ok := r.candidateRooms(ctx, snap, event)
	if !ok {
		return nil
	}
	current := 0
	if event.RoomCapacity != nil {
		current = *event.RoomCapacity
	}
	threshold := max(current, size)

	var larger []models.Room
	for _, room := range rooms {
		if room.Capacity != nil && *room.Capacity > threshold {
			larger = append(larger, room)
		}
	}
	sort.SliceStable(larger, func(i, j int) bool { return *larger[i].Capacity < *larger[j].Capacity })

	var out []models.Room
	for _, room := range larger {
		if !snap.roomFreeForEvent(room.ID, event) {
			continue
		}
		out = append(out, room)
		if len(out) == maxLargerRooms {
			break
		}
	}
	return out
}

func (r *ConflictResolver) candidateRooms(ctx context.Context, snap *scheduleSnapshot, event *models.ScheduledEvent) ([]models.Room, int, bool) {
	rooms, err := r.refs.ListRooms(ctx, event.PlanSubsidiaryID)
	if err != nil {
		r.logger.Warn("room lookup failed", zap.Int64("event_id", event.ID), zap.Error(err))
		return nil, 0, false
	}
	size, err := snap.groupSize(ctx, event.GroupID)
	if err != nil {
		r.logger.Warn("group size lookup failed", zap.Int64("event_id", event.ID), zap.Error(err))
		return nil, 0, false
	}
	var out []models.Room
	for _, room := range rooms {
		if room.IsActive && room.ID != event.RoomID {
			out = append(out, room)
		}
	}
	return out, size, true
}

// alternativeWeekTimes lists Monday to Friday slots on other weekdays where every teacher and the room are free.
func (r *ConflictResolver) alternativeWeekTimes(ctx context.Context, snap *scheduleSnapshot, event *models.ScheduledEvent) []dto.TimeProposal {
	var out []dto.TimeProposal
	slots := r.slots(ctx, snap, event.PlanSubsidiaryID)
	for weekday := weekdayMonday; weekday <= weekdayFriday; weekday++ {
		if event.Weekday != nil && *event.Weekday == weekday {
			continue
		}
		for _, slot := range slots {
			free := true
			for _, teacher := range event.Teachers {
				if !snap.teacherFreeAt(teacher.ID, event.SchedulePlanID, weekday, slot.StartTime, slot.EndTime) {
					free = false
					break
				}
			}
			if !free || !snap.roomFreeAt(event.RoomID, event.SchedulePlanID, weekday, slot.StartTime, slot.EndTime) {
				continue
			}
			out = append(out, proposal(weekday, slot))
			if len(out) == maxWeekAlternatives {
				return out
			}
		}
	}
	return out
}

// workingTimeSlots lists Monday to Friday slots covered by an active working_day rule.
func (r *ConflictResolver) workingTimeSlots(ctx context.Context, snap *scheduleSnapshot, subsidiaryID int64) []dto.TimeProposal {
	rules, err := snap.workingPeriodRules(ctx, subsidiaryID)
	if err != nil {
		r.logger.Warn("working period lookup failed", zap.Int64("subsidiary_id", subsidiaryID), zap.Error(err))
		return nil
	}
	var workingDays []models.WorkingPeriodRule
	for _, rule := range rules {
		if rule.RuleType == models.WorkingRuleWorkingDay {
			workingDays = append(workingDays, rule)
		}
	}

	var out []dto.TimeProposal
	slots := r.slots(ctx, snap, subsidiaryID)
	for weekday := weekdayMonday; weekday <= weekdayFriday; weekday++ {
		for _, slot := range slots {
			for _, rule := range workingDays {
				if slotInWorkingRule(rule, weekday, slot) {
					out = append(out, proposal(weekday, slot))
					break
				}
			}
			if len(out) == maxSlotCandidates {
				return out
			}
		}
	}
	return out
}

// --- Helpers ---

func periodWeekdays(set []int64) []int {
	if len(set) == 0 {
		days := make([]int, daysPerWeek)
		for i := range days {
			days[i] = i
		}
		return days
	}
	days := make([]int, 0, len(set))
	for _, d := range set {
		if d >= 0 && d < daysPerWeek {
			days = append(days, int(d))
		}
	}
	return days
}

func proposal(weekday int, slot models.TimeSlot) dto.TimeProposal {
	return dto.TimeProposal{Weekday: weekday, StartTime: slot.StartTime, EndTime: slot.EndTime, TimeSlotName: slot.Name}
}

func formatSlot(p dto.TimeProposal) string {
	name := "?"
	if p.Weekday >= 0 && p.Weekday < daysPerWeek {
		name = weekdayNames[p.Weekday]
	}
	window := p.StartTime.String() + "-" + p.EndTime.String()
	if p.TimeSlotName != "" {
		return fmt.Sprintf("%s, %s (%s)", name, p.TimeSlotName, window)
	}
	return fmt.Sprintf("%s, %s", name, window)
}

func timeSuggestion(kind, description string, slot dto.TimeProposal, priority dto.SuggestionPriority) dto.Suggestion {
	s := slot
	return dto.Suggestion{Type: kind, Description: description, Action: dto.ActionChangeTime, NewTime: &s, Priority: priority}
}

func teacherSuggestion(kind, description string, teacher models.Teacher, priority dto.SuggestionPriority) dto.Suggestion {
	id := teacher.ID
	return dto.Suggestion{Type: kind, Description: description, Action: dto.ActionChangeTeacher, NewTeacherID: &id, Priority: priority}
}

func roomSuggestion(kind, description string, room models.Room, priority dto.SuggestionPriority) dto.Suggestion {
	id := room.ID
	return dto.Suggestion{Type: kind, Description: description, Action: dto.ActionChangeRoom, NewRoomID: &id, Priority: priority}
}

func limit[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}
