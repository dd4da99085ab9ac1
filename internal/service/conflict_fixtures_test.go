package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/sma-schedule-conflicts/internal/models"
)

var planMonday = time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC)

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func teacherFixture(id int64, name string) models.Teacher {
	return models.Teacher{ID: id, FullName: name, SubsidiaryID: 1, IsActive: true}
}

func weeklyEvent(id, planID, roomID int64, weekday int, start, end string, teachers ...models.Teacher) models.ScheduledEvent {
	startClock, endClock := models.MustClock(start), models.MustClock(end)
	return models.ScheduledEvent{
		ID:               id,
		SchedulePlanID:   planID,
		GroupID:          id,
		GroupCourseID:    id,
		RoomID:           roomID,
		EventType:        models.EventTypeWeekly,
		Weekday:          intPtr(weekday),
		StartTime:        startClock,
		EndTime:          endClock,
		DurationMinutes:  endClock.Sub(startClock),
		IsActive:         true,
		PlanSubsidiaryID: 1,
		PlanStartDate:    planMonday,
		SubjectID:        7,
		CourseName:       "Math",
		RoomName:         fmt.Sprintf("Room %d", roomID),
		RoomSubsidiaryID: 1,
		Teachers:         teachers,
	}
}

func singleEvent(id, planID, roomID int64, date time.Time, start, end string, teachers ...models.Teacher) models.ScheduledEvent {
	event := weeklyEvent(id, planID, roomID, 0, start, end, teachers...)
	event.EventType = models.EventTypeSingle
	event.Weekday = nil
	event.SpecificDate = &date
	return event
}

// eventStoreFake keeps events in memory. Reads return copies.
type eventStoreFake struct {
	mu       sync.Mutex
	events   map[int64]models.ScheduledEvent
	saved    []models.ScheduledEvent
	saveErr  map[int64]error
	listErr  error
	listHook func()
}

func newEventStoreFake(events ...models.ScheduledEvent) *eventStoreFake {
	store := &eventStoreFake{events: make(map[int64]models.ScheduledEvent), saveErr: make(map[int64]error)}
	for _, e := range events {
		store.events[e.ID] = e
	}
	return store
}

func (f *eventStoreFake) ListActiveEvents(_ context.Context, planID *int64) ([]models.ScheduledEvent, error) {
	if f.listHook != nil {
		f.listHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.ScheduledEvent
	for _, e := range f.events {
		if !e.IsActive || (planID != nil && e.SchedulePlanID != *planID) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *eventStoreFake) GetEvent(_ context.Context, id int64) (*models.ScheduledEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	e.Teachers = append([]models.Teacher(nil), e.Teachers...)
	return &e, nil
}

func (f *eventStoreFake) SaveEvent(_ context.Context, event *models.ScheduledEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.saveErr[event.ID]; err != nil {
		return err
	}
	f.events[event.ID] = *event
	f.saved = append(f.saved, *event)
	return nil
}

func (f *eventStoreFake) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

// ruleStoreFake serves rule tables and counts lookups.
type ruleStoreFake struct {
	mu           sync.Mutex
	working      []models.WorkingPeriodRule
	teacherAvail map[int64][]models.TeacherAvailabilityPeriod
	roomRules    map[int64][]models.RoomAvailabilityRule
	slots        []models.TimeSlot
	calls        map[string]int
}

func newRuleStoreFake() *ruleStoreFake {
	return &ruleStoreFake{
		teacherAvail: make(map[int64][]models.TeacherAvailabilityPeriod),
		roomRules:    make(map[int64][]models.RoomAvailabilityRule),
		calls:        make(map[string]int),
	}
}

func (f *ruleStoreFake) count(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *ruleStoreFake) ListWorkingPeriodRules(_ context.Context, _ int64) ([]models.WorkingPeriodRule, error) {
	f.count("working")
	return f.working, nil
}

func (f *ruleStoreFake) ListTeacherAvailability(_ context.Context, teacherID int64) ([]models.TeacherAvailabilityPeriod, error) {
	f.count("teacher")
	return f.teacherAvail[teacherID], nil
}

func (f *ruleStoreFake) ListRoomAvailability(_ context.Context, roomID int64) ([]models.RoomAvailabilityRule, error) {
	f.count("room")
	return f.roomRules[roomID], nil
}

func (f *ruleStoreFake) ListTimeSlots(_ context.Context, _ int64) ([]models.TimeSlot, error) {
	f.count("slots")
	return f.slots, nil
}

func schoolSlots() []models.TimeSlot {
	return []models.TimeSlot{
		{ID: 1, Name: "Period 1", StartTime: models.MustClock("08:00"), EndTime: models.MustClock("08:45"), Order: 1, IsActive: true},
		{ID: 2, Name: "Period 2", StartTime: models.MustClock("09:00"), EndTime: models.MustClock("09:45"), Order: 2, IsActive: true},
	}
}

// referenceStoreFake serves teachers, rooms and group sizes.
type referenceStoreFake struct {
	teachers   []models.Teacher
	rooms      []models.Room
	groupSizes map[int64]int
}

func (f *referenceStoreFake) ListTeachers(_ context.Context, filter models.TeacherFilter) ([]models.Teacher, error) {
	var out []models.Teacher
	for _, t := range f.teachers {
		if filter.SubsidiaryID == 0 || t.SubsidiaryID == filter.SubsidiaryID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *referenceStoreFake) ListRooms(_ context.Context, subsidiaryID int64) ([]models.Room, error) {
	var out []models.Room
	for _, r := range f.rooms {
		if r.SubsidiaryID == subsidiaryID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *referenceStoreFake) GetTeacher(_ context.Context, id int64) (*models.Teacher, error) {
	for _, t := range f.teachers {
		if t.ID == id {
			teacher := t
			return &teacher, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *referenceStoreFake) GetRoom(_ context.Context, id int64) (*models.Room, error) {
	for _, r := range f.rooms {
		if r.ID == id {
			room := r
			return &room, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *referenceStoreFake) CountActiveStudents(_ context.Context, groupID int64) (int, error) {
	return f.groupSizes[groupID], nil
}

// conflictStoreFake implements conflictStore and conflictReadStore.
type conflictStoreFake struct {
	mu          sync.Mutex
	types       map[string]*models.ConflictType
	conflicts   map[int64]*models.Conflict
	nextID      int64
	typeCreates int
	createErr   map[int64]error
	updates     []models.ConflictStatusUpdate
	deletes     []models.ConflictDeleteFilter
	counts      []models.ConflictCount
	countCalls  int
	findDelay   time.Duration
}

func newConflictStoreFake() *conflictStoreFake {
	return &conflictStoreFake{
		types:     make(map[string]*models.ConflictType),
		conflicts: make(map[int64]*models.Conflict),
		createErr: make(map[int64]error),
	}
}

func (f *conflictStoreFake) FindConflictTypeByName(_ context.Context, name string) (*models.ConflictType, error) {
	if f.findDelay > 0 {
		time.Sleep(f.findDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.types[strings.ToLower(name)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *t
	return &copied, nil
}

func (f *conflictStoreFake) CreateConflictType(_ context.Context, conflictType *models.ConflictType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.typeCreates++
	conflictType.ID = f.nextID
	copied := *conflictType
	f.types[strings.ToLower(conflictType.Name)] = &copied
	return nil
}

func (f *conflictStoreFake) CreateConflict(_ context.Context, conflict *models.Conflict) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conflict.ScheduledEventID != nil {
		if err := f.createErr[*conflict.ScheduledEventID]; err != nil {
			return err
		}
	}
	f.nextID++
	conflict.ID = f.nextID
	copied := *conflict
	f.conflicts[conflict.ID] = &copied
	return nil
}

func (f *conflictStoreFake) add(conflict models.Conflict) *models.Conflict {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conflict.ID == 0 {
		f.nextID++
		conflict.ID = f.nextID
	}
	if conflict.Status == "" {
		conflict.Status = models.ConflictDetected
	}
	f.conflicts[conflict.ID] = &conflict
	return &conflict
}

func (f *conflictStoreFake) GetConflict(_ context.Context, id int64) (*models.Conflict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conflicts[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *c
	return &copied, nil
}

func (f *conflictStoreFake) UpdateConflictStatus(_ context.Context, update models.ConflictStatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conflicts[update.ID]
	if !ok {
		return sql.ErrNoRows
	}
	f.updates = append(f.updates, update)
	c.Status = update.Status
	c.ResolvedAt = update.ResolvedAt
	c.ResolvedBy = update.ResolvedBy
	c.ResolutionNotes = update.ResolutionNotes
	return nil
}

func (f *conflictStoreFake) ListConflicts(_ context.Context, filter models.ConflictFilter) ([]models.Conflict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Conflict
	for _, c := range f.conflicts {
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, c.Status) {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *conflictStoreFake) DeleteConflicts(_ context.Context, filter models.ConflictDeleteFilter) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, filter)
	var deleted int64
	for id, c := range f.conflicts {
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, c.Status) {
			continue
		}
		if filter.ResolvedBefore != nil && (c.ResolvedAt == nil || !c.ResolvedAt.Before(*filter.ResolvedBefore)) {
			continue
		}
		delete(f.conflicts, id)
		deleted++
	}
	return deleted, nil
}

func (f *conflictStoreFake) CountConflicts(_ context.Context, _ *int64) ([]models.ConflictCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countCalls++
	return f.counts, nil
}

func (f *conflictStoreFake) conflictsList() []models.Conflict {
	out, _ := f.ListConflicts(context.Background(), models.ConflictFilter{})
	return out
}

func containsStatus(set []models.ConflictStatus, status models.ConflictStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

var errStoreDown = errors.New("store down")
