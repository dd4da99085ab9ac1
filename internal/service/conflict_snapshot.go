package service

import (
	"context"
	"sort"
	"sync"

	"github.com/noah-isme/sma-schedule-conflicts/internal/models"
)

// conflictEventStore loads and persists scheduled events.
type conflictEventStore interface {
	ListActiveEvents(ctx context.Context, planID *int64) ([]models.ScheduledEvent, error)
	GetEvent(ctx context.Context, id int64) (*models.ScheduledEvent, error)
	SaveEvent(ctx context.Context, event *models.ScheduledEvent) error
}

// schedulingRuleStore exposes the rule tables consulted by detection and resolution.
type schedulingRuleStore interface {
	ListWorkingPeriodRules(ctx context.Context, subsidiaryID int64) ([]models.WorkingPeriodRule, error)
	ListTeacherAvailability(ctx context.Context, teacherID int64) ([]models.TeacherAvailabilityPeriod, error)
	ListRoomAvailability(ctx context.Context, roomID int64) ([]models.RoomAvailabilityRule, error)
	ListTimeSlots(ctx context.Context, subsidiaryID int64) ([]models.TimeSlot, error)
}

// schedulingReferenceStore exposes teachers, rooms and rosters.
type schedulingReferenceStore interface {
	ListTeachers(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, error)
	ListRooms(ctx context.Context, subsidiaryID int64) ([]models.Room, error)
	GetTeacher(ctx context.Context, id int64) (*models.Teacher, error)
	GetRoom(ctx context.Context, id int64) (*models.Room, error)
	CountActiveStudents(ctx context.Context, groupID int64) (int, error)
}

// scheduleSnapshot indexes the active events of one run and memoizes rule lookups so every
// event evaluation reads the same data. It is safe for concurrent use.
type scheduleSnapshot struct {
	events    []models.ScheduledEvent
	byTeacher map[int64][]*models.ScheduledEvent
	byRoom    map[int64][]*models.ScheduledEvent
	byPlan    map[int64][]*models.ScheduledEvent

	rules schedulingRuleStore
	refs  schedulingReferenceStore

	mu           sync.Mutex
	workingRules map[int64][]models.WorkingPeriodRule
	teacherAvail map[int64][]models.TeacherAvailabilityPeriod
	roomRules    map[int64][]models.RoomAvailabilityRule
	timeSlots    map[int64][]models.TimeSlot
	groupSizes   map[int64]int
}

func newScheduleSnapshot(events []models.ScheduledEvent, rules schedulingRuleStore, refs schedulingReferenceStore) *scheduleSnapshot {
	snap := &scheduleSnapshot{
		events:       events,
		byTeacher:    make(map[int64][]*models.ScheduledEvent),
		byRoom:       make(map[int64][]*models.ScheduledEvent),
		byPlan:       make(map[int64][]*models.ScheduledEvent),
		rules:        rules,
		refs:         refs,
		workingRules: make(map[int64][]models.WorkingPeriodRule),
		teacherAvail: make(map[int64][]models.TeacherAvailabilityPeriod),
		roomRules:    make(map[int64][]models.RoomAvailabilityRule),
		timeSlots:    make(map[int64][]models.TimeSlot),
		groupSizes:   make(map[int64]int),
	}
	for i := range snap.events {
		event := &snap.events[i]
		if !event.IsActive {
			continue
		}
		for _, teacher := range event.Teachers {
			snap.byTeacher[teacher.ID] = append(snap.byTeacher[teacher.ID], event)
		}
		snap.byRoom[event.RoomID] = append(snap.byRoom[event.RoomID], event)
		snap.byPlan[event.SchedulePlanID] = append(snap.byPlan[event.SchedulePlanID], event)
	}
	return snap
}

func memoize[K comparable, V any](mu *sync.Mutex, cache map[K]V, key K, load func() (V, error)) (V, error) {
	mu.Lock()
	if v, ok := cache[key]; ok {
		mu.Unlock()
		return v, nil
	}
	mu.Unlock()

	v, err := load()
	if err != nil {
		var zero V
		return zero, err
	}

	mu.Lock()
	cache[key] = v
	mu.Unlock()
	return v, nil
}

// workingPeriodRules returns active rules for the subsidiary or global, highest priority first.
func (s *scheduleSnapshot) workingPeriodRules(ctx context.Context, subsidiaryID int64) ([]models.WorkingPeriodRule, error) {
	return memoize(&s.mu, s.workingRules, subsidiaryID, func() ([]models.WorkingPeriodRule, error) {
		rules, err := s.rules.ListWorkingPeriodRules(ctx, subsidiaryID)
		if err != nil {
			return nil, err
		}
		active := rules[:0:0]
		for _, rule := range rules {
			if rule.IsActive {
				active = append(active, rule)
			}
		}
		sort.SliceStable(active, func(i, j int) bool { return active[i].Priority > active[j].Priority })
		return active, nil
	})
}

func (s *scheduleSnapshot) teacherAvailability(ctx context.Context, teacherID int64) ([]models.TeacherAvailabilityPeriod, error) {
	return memoize(&s.mu, s.teacherAvail, teacherID, func() ([]models.TeacherAvailabilityPeriod, error) {
		periods, err := s.rules.ListTeacherAvailability(ctx, teacherID)
		if err != nil {
			return nil, err
		}
		active := periods[:0:0]
		for _, p := range periods {
			if p.IsActive {
				active = append(active, p)
			}
		}
		return active, nil
	})
}

func (s *scheduleSnapshot) roomAvailability(ctx context.Context, roomID int64) ([]models.RoomAvailabilityRule, error) {
	return memoize(&s.mu, s.roomRules, roomID, func() ([]models.RoomAvailabilityRule, error) {
		rules, err := s.rules.ListRoomAvailability(ctx, roomID)
		if err != nil {
			return nil, err
		}
		active := rules[:0:0]
		for _, r := range rules {
			if r.IsActive {
				active = append(active, r)
			}
		}
		return active, nil
	})
}

// slotsFor returns active time slots for the subsidiary or global, in catalog order.
func (s *scheduleSnapshot) slotsFor(ctx context.Context, subsidiaryID int64) ([]models.TimeSlot, error) {
	return memoize(&s.mu, s.timeSlots, subsidiaryID, func() ([]models.TimeSlot, error) {
		slots, err := s.rules.ListTimeSlots(ctx, subsidiaryID)
		if err != nil {
			return nil, err
		}
		active := slots[:0:0]
		for _, slot := range slots {
			if slot.IsActive {
				active = append(active, slot)
			}
		}
		sort.SliceStable(active, func(i, j int) bool { return active[i].Order < active[j].Order })
		return active, nil
	})
}

func (s *scheduleSnapshot) groupSize(ctx context.Context, groupID int64) (int, error) {
	return memoize(&s.mu, s.groupSizes, groupID, func() (int, error) {
		return s.refs.CountActiveStudents(ctx, groupID)
	})
}

// teacherFreeAt reports whether the teacher has no weekly event in the plan on weekday overlapping [start, end).
func (s *scheduleSnapshot) teacherFreeAt(teacherID, planID int64, weekday int, start, end models.Clock) bool {
	return weeklyFree(s.byTeacher[teacherID], planID, weekday, start, end)
}

// roomFreeAt reports whether the room has no weekly event in the plan on weekday overlapping [start, end).
func (s *scheduleSnapshot) roomFreeAt(roomID, planID int64, weekday int, start, end models.Clock) bool {
	return weeklyFree(s.byRoom[roomID], planID, weekday, start, end)
}

func weeklyFree(events []*models.ScheduledEvent, planID int64, weekday int, start, end models.Clock) bool {
	for _, e := range events {
		if e.SchedulePlanID != planID || e.EventType != models.EventTypeWeekly || e.Weekday == nil || *e.Weekday != weekday {
			continue
		}
		if overlaps(e.StartTime, e.EndTime, start, end) {
			return false
		}
	}
	return true
}

// singleFree reports whether no single event in events shares the date and overlaps [start, end).
func singleFree(events []*models.ScheduledEvent, event *models.ScheduledEvent) bool {
	if event.SpecificDate == nil {
		return true
	}
	day := dateOnly(*event.SpecificDate)
	for _, e := range events {
		if e.EventType != models.EventTypeSingle || e.SpecificDate == nil || !dateOnly(*e.SpecificDate).Equal(day) {
			continue
		}
		if overlaps(event.StartTime, event.EndTime, e.StartTime, e.EndTime) {
			return false
		}
	}
	return true
}

// teacherFreeForEvent checks the teacher against the event's own weekday or date.
func (s *scheduleSnapshot) teacherFreeForEvent(teacherID int64, event *models.ScheduledEvent) bool {
	if event.EventType == models.EventTypeWeekly && event.Weekday != nil {
		return s.teacherFreeAt(teacherID, event.SchedulePlanID, *event.Weekday, event.StartTime, event.EndTime)
	}
	return singleFree(s.byTeacher[teacherID], event)
}

// roomFreeForEvent checks the room against the event's own weekday or date.
func (s *scheduleSnapshot) roomFreeForEvent(roomID int64, event *models.ScheduledEvent) bool {
	if event.EventType == models.EventTypeWeekly && event.Weekday != nil {
		return s.roomFreeAt(roomID, event.SchedulePlanID, *event.Weekday, event.StartTime, event.EndTime)
	}
	return singleFree(s.byRoom[roomID], event)
}

// planEventCount counts the teacher's active events in the plan.
func (s *scheduleSnapshot) planEventCount(teacherID, planID int64) int {
	count := 0
	for _, e := range s.byTeacher[teacherID] {
		if e.SchedulePlanID == planID {
			count++
		}
	}
	return count
}
