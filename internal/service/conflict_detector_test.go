package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-schedule-conflicts/internal/dto"
	"github.com/noah-isme/sma-schedule-conflicts/internal/models"
)

func newDetectorFixture(workers int, events ...models.ScheduledEvent) (*ConflictDetector, *eventStoreFake, *ruleStoreFake, *referenceStoreFake) {
	store := newEventStoreFake(events...)
	rules := newRuleStoreFake()
	refs := &referenceStoreFake{groupSizes: map[int64]int{}}
	detector := NewConflictDetector(store, rules, refs, nil, zap.NewNop(), ConflictDetectorConfig{Workers: workers})
	return detector, store, rules, refs
}

func descriptorsOfKind(found []dto.ConflictDescriptor, kind models.ConflictKind) []dto.ConflictDescriptor {
	var out []dto.ConflictDescriptor
	for _, d := range found {
		if d.Type == kind {
			out = append(out, d)
		}
	}
	return out
}

func kindsForEvent(found []dto.ConflictDescriptor, eventID int64) []models.ConflictKind {
	var out []models.ConflictKind
	for _, d := range found {
		if d.EventID == eventID {
			out = append(out, d.Type)
		}
	}
	return out
}

func TestDetectTeacherDoubleBookingIsReportedForBothEvents(t *testing.T) {
	alice := teacherFixture(1, "Alice")
	detector, _, _, _ := newDetectorFixture(4,
		weeklyEvent(1, 1, 10, 0, "08:00", "09:00", alice),
		weeklyEvent(2, 1, 11, 0, "08:30", "09:30", alice),
	)

	found, err := detector.Detect(context.Background(), int64Ptr(1))
	require.NoError(t, err)

	teacher := descriptorsOfKind(found, models.KindTeacherTime)
	require.Len(t, teacher, 2)
	assert.Equal(t, int64(1), teacher[0].EventID)
	assert.Equal(t, int64(2), *teacher[0].ConflictingEventID)
	assert.Equal(t, int64(2), teacher[1].EventID)
	assert.Equal(t, int64(1), *teacher[1].ConflictingEventID)
	assert.Equal(t, models.SeverityCritical, teacher[0].Severity)
	assert.True(t, teacher[0].Blocking)
	assert.Contains(t, teacher[0].Description, "Alice")
	assert.Empty(t, descriptorsOfKind(found, models.KindRoomTime))
}

func TestDetectTouchingRangesDoNotConflict(t *testing.T) {
	alice := teacherFixture(1, "Alice")
	detector, _, _, _ := newDetectorFixture(2,
		weeklyEvent(1, 1, 10, 0, "08:00", "09:00", alice),
		weeklyEvent(2, 1, 10, 0, "09:00", "10:00", alice),
		weeklyEvent(3, 1, 10, 1, "08:00", "09:00", alice),
	)

	found, err := detector.Detect(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, descriptorsOfKind(found, models.KindTeacherTime))
	assert.Empty(t, descriptorsOfKind(found, models.KindRoomTime))
}

func TestDetectRoomConflictsSpanPlansButTeacherConflictsDoNot(t *testing.T) {
	alice := teacherFixture(1, "Alice")
	detector, _, _, _ := newDetectorFixture(2,
		weeklyEvent(1, 1, 10, 0, "08:00", "09:00", alice),
		weeklyEvent(2, 2, 10, 0, "08:30", "09:30", alice),
	)

	found, err := detector.Detect(context.Background(), int64Ptr(1))
	require.NoError(t, err)

	room := descriptorsOfKind(found, models.KindRoomTime)
	require.Len(t, room, 1)
	assert.Equal(t, int64(1), room[0].EventID)
	assert.Equal(t, int64(2), *room[0].ConflictingEventID)
	assert.Empty(t, descriptorsOfKind(found, models.KindTeacherTime))
	for _, d := range found {
		assert.Equal(t, int64(1), d.EventID, "only events of the requested plan are evaluated")
	}
}

func TestDetectWeeklyAgainstSingleOnSameWeekday(t *testing.T) {
	wednesday := time.Date(2024, 9, 11, 0, 0, 0, 0, time.UTC)
	detector, _, _, _ := newDetectorFixture(2,
		weeklyEvent(1, 1, 10, 2, "10:00", "11:00"),
		singleEvent(2, 1, 10, wednesday, "10:30", "11:30"),
		singleEvent(3, 1, 10, wednesday.AddDate(0, 0, 1), "10:30", "11:30"),
	)

	found, err := detector.Detect(context.Background(), nil)
	require.NoError(t, err)

	room := descriptorsOfKind(found, models.KindRoomTime)
	require.Len(t, room, 2)
	assert.Equal(t, int64(1), room[0].EventID)
	assert.Equal(t, int64(2), room[1].EventID)
}

func TestDetectWorkingPeriodRules(t *testing.T) {
	detector, _, rules, _ := newDetectorFixture(1,
		weeklyEvent(1, 1, 10, 0, "08:00", "09:00"),
		weeklyEvent(2, 1, 11, 1, "08:00", "09:00"),
		weeklyEvent(3, 1, 12, 1, "16:00", "17:00"),
	)
	holiday := planMonday
	rules.working = []models.WorkingPeriodRule{
		{
			ID: 1, Name: "School week", RuleType: models.WorkingRuleWorkingDay, Recurrence: models.RecurrenceWeekly,
			StartDate: planMonday, Weekdays: []int64{0, 1, 2, 3, 4},
			StartTime: clockPtr("07:00"), EndTime: clockPtr("15:00"), Priority: 1, IsActive: true,
		},
		{
			ID: 2, Name: "Founders Day", RuleType: models.WorkingRuleHoliday, Recurrence: models.RecurrenceOnce,
			StartDate: planMonday, EndDate: &holiday, Priority: 10, IsActive: true,
		},
		{
			ID: 3, Name: "Disabled closure", RuleType: models.WorkingRuleVacation, Recurrence: models.RecurrenceDaily,
			StartDate: planMonday, Priority: 99, IsActive: false,
		},
	}

	found, err := detector.Detect(context.Background(), int64Ptr(1))
	require.NoError(t, err)

	nonWorking := descriptorsOfKind(found, models.KindNonWorkingTime)
	require.Len(t, nonWorking, 1)
	assert.Equal(t, int64(1), nonWorking[0].EventID)
	assert.Contains(t, nonWorking[0].Description, "Founders Day")

	outside := descriptorsOfKind(found, models.KindOutsideWorkingHours)
	require.Len(t, outside, 1)
	assert.Equal(t, int64(3), outside[0].EventID)

	assert.Empty(t, kindsForEvent(found, 2))
	assert.Equal(t, 1, rules.calls["working"], "rules are loaded once per scan")
}

func TestDetectTeacherAvailability(t *testing.T) {
	alice := teacherFixture(1, "Alice")
	bob := teacherFixture(2, "Bob")
	detector, _, rules, _ := newDetectorFixture(2,
		weeklyEvent(1, 1, 10, 0, "08:00", "09:00", alice),
		weeklyEvent(2, 1, 11, 0, "08:00", "09:00", bob),
	)
	rules.working = []models.WorkingPeriodRule{{Name: "Always", RuleType: models.WorkingRuleWorkingDay, Recurrence: models.RecurrenceDaily, IsActive: true}}
	rules.teacherAvail[1] = []models.TeacherAvailabilityPeriod{{
		TeacherID: 1, AvailabilityType: models.AvailabilityUnavailable, StartDate: planMonday,
		StartTime: models.MustClock("08:00"), EndTime: models.MustClock("12:00"), Notes: "Training", IsActive: true,
	}}
	rules.teacherAvail[2] = []models.TeacherAvailabilityPeriod{{
		TeacherID: 2, AvailabilityType: models.AvailabilityAvailable, StartDate: planMonday, Weekdays: []int64{0, 1, 2, 3, 4},
		StartTime: models.MustClock("07:00"), EndTime: models.MustClock("15:00"), IsActive: true,
	}}

	found, err := detector.Detect(context.Background(), nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []models.ConflictKind{models.KindTeacherUnavailable, models.KindTeacherNotInSchedule}, kindsForEvent(found, 1))
	assert.Empty(t, kindsForEvent(found, 2))

	unavailable := descriptorsOfKind(found, models.KindTeacherUnavailable)
	require.Len(t, unavailable, 1)
	assert.Equal(t, models.SeverityHigh, unavailable[0].Severity)
	assert.Contains(t, unavailable[0].Description, "Training")
}

func TestDetectRoomUnavailable(t *testing.T) {
	detector, _, rules, _ := newDetectorFixture(1, weeklyEvent(1, 1, 10, 0, "08:00", "09:00"))
	rules.working = []models.WorkingPeriodRule{{Name: "Always", RuleType: models.WorkingRuleWorkingDay, Recurrence: models.RecurrenceDaily, IsActive: true}}
	rules.roomRules[10] = []models.RoomAvailabilityRule{
		{RoomID: 10, StartDate: planMonday, StartTime: models.MustClock("07:00"), EndTime: models.MustClock("12:00"), IsAvailable: false, Reason: "Renovation", IsActive: true},
		{RoomID: 10, StartDate: planMonday, StartTime: models.MustClock("07:00"), EndTime: models.MustClock("12:00"), IsAvailable: true, IsActive: true},
	}

	found, err := detector.Detect(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, found, 1)
	assert.Equal(t, models.KindRoomUnavailable, found[0].Type)
	assert.True(t, found[0].Blocking)
	assert.Contains(t, found[0].Description, "Renovation")
}

func TestDetectTeacherWorkload(t *testing.T) {
	alice := teacherFixture(1, "Alice")
	alice.MaxHoursPerWeek = 2
	detector, _, rules, _ := newDetectorFixture(3,
		weeklyEvent(1, 1, 10, 0, "08:00", "09:00", alice),
		weeklyEvent(2, 1, 10, 0, "10:00", "11:00", alice),
		weeklyEvent(3, 1, 10, 1, "08:00", "09:00", alice),
	)
	rules.working = []models.WorkingPeriodRule{{Name: "Always", RuleType: models.WorkingRuleWorkingDay, Recurrence: models.RecurrenceDaily, IsActive: true}}
	rules.teacherAvail[1] = []models.TeacherAvailabilityPeriod{{
		TeacherID: 1, AvailabilityType: models.AvailabilityAvailable, StartDate: planMonday,
		StartTime: models.MustClock("07:00"), EndTime: models.MustClock("15:00"), MaxHoursPerDay: intPtr(1), IsActive: true,
	}}

	found, err := detector.Detect(context.Background(), nil)
	require.NoError(t, err)

	weekly := descriptorsOfKind(found, models.KindTeacherWorkload)
	require.Len(t, weekly, 3)
	assert.Contains(t, weekly[0].Description, "3.0 hours (max 2)")

	daily := descriptorsOfKind(found, models.KindTeacherDailyWorkload)
	require.Len(t, daily, 2)
	assert.Equal(t, int64(1), daily[0].EventID)
	assert.Equal(t, int64(2), daily[1].EventID)
}

func TestDetectRoomCapacity(t *testing.T) {
	small := weeklyEvent(1, 1, 10, 0, "08:00", "09:00")
	small.RoomCapacity = intPtr(20)
	uncapped := weeklyEvent(2, 1, 11, 0, "08:00", "09:00")
	zero := weeklyEvent(3, 1, 12, 0, "08:00", "09:00")
	zero.RoomCapacity = intPtr(0)

	detector, _, rules, refs := newDetectorFixture(2, small, uncapped, zero)
	rules.working = []models.WorkingPeriodRule{{Name: "Always", RuleType: models.WorkingRuleWorkingDay, Recurrence: models.RecurrenceDaily, IsActive: true}}
	refs.groupSizes = map[int64]int{1: 25, 2: 100, 3: 100}

	found, err := detector.Detect(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, found, 1)
	assert.Equal(t, models.KindRoomCapacityExceeded, found[0].Type)
	assert.Equal(t, int64(1), found[0].EventID)
	assert.Contains(t, found[0].Description, "25 students (max 20)")
}

func TestDetectCancelledReturnsContextError(t *testing.T) {
	detector, _, _, _ := newDetectorFixture(1, weeklyEvent(1, 1, 10, 0, "08:00", "09:00"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	found, err := detector.Detect(ctx, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, found)
}

func TestDetectListFailure(t *testing.T) {
	detector, store, _, _ := newDetectorFixture(1)
	store.listErr = errStoreDown

	_, err := detector.Detect(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errStoreDown)
}

func clockPtr(raw string) *models.Clock {
	c := models.MustClock(raw)
	return &c
}

func TestOverlapsIsHalfOpen(t *testing.T) {
	eight, nine, ten := models.MustClock("08:00"), models.MustClock("09:00"), models.MustClock("10:00")
	assert.True(t, overlaps(eight, ten, nine, ten))
	assert.True(t, overlaps(eight, nine, eight, nine))
	assert.False(t, overlaps(eight, nine, nine, ten))
	assert.False(t, overlaps(nine, ten, eight, nine))
}

func TestEffectiveDate(t *testing.T) {
	wednesday := weeklyEvent(1, 1, 1, 2, "08:00", "09:00")
	assert.Equal(t, time.Date(2024, 9, 4, 0, 0, 0, 0, time.UTC), effectiveDate(&wednesday, planMonday))

	thursdayStart := time.Date(2024, 9, 5, 0, 0, 0, 0, time.UTC)
	monday := weeklyEvent(2, 1, 1, 0, "08:00", "09:00")
	assert.Equal(t, time.Date(2024, 9, 9, 0, 0, 0, 0, time.UTC), effectiveDate(&monday, thursdayStart))

	day := time.Date(2024, 10, 1, 13, 30, 0, 0, time.UTC)
	single := singleEvent(3, 1, 1, day, "08:00", "09:00")
	assert.Equal(t, time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), effectiveDate(&single, planMonday))
	assert.Equal(t, 1, eventWeekday(&single))
}

func TestEventsOverlapRespectsPlanScope(t *testing.T) {
	a := weeklyEvent(1, 1, 1, 3, "08:00", "09:00")
	b := weeklyEvent(2, 2, 1, 3, "08:30", "09:30")
	assert.True(t, eventsOverlap(&a, &b, false))
	assert.False(t, eventsOverlap(&a, &b, true))

	friday := time.Date(2024, 9, 13, 0, 0, 0, 0, time.UTC)
	c := singleEvent(3, 1, 1, friday, "08:30", "09:30")
	assert.False(t, eventsOverlap(&a, &c, false))
}

func TestWeekStart(t *testing.T) {
	sunday := time.Date(2024, 9, 8, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, planMonday, weekStart(sunday))
	assert.Equal(t, planMonday, weekStart(planMonday))
}
