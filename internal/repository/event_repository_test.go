package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-schedule-conflicts/internal/models"
)

var eventRowColumns = []string{"id", "schedule_plan_id", "group_id", "group_course_id", "room_id", "event_type", "weekday", "specific_date", "start_time", "end_time", "duration_minutes", "academic_hours", "is_active", "updated_at", "plan_subsidiary_id", "plan_start_date", "subject_id", "course_name", "group_name", "room_name", "room_capacity", "room_subsidiary_id"}

var eventTeacherColumns = []string{"scheduled_event_id", "id", "full_name", "subsidiary_id", "max_hours_per_week", "is_active"}

func TestEventRepositoryListActiveEventsAttachesTeachers(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewEventRepository(db)
	planStart := time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC)
	updated := planStart.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(eventSelect + " WHERE e.is_active = TRUE AND e.schedule_plan_id = $1 ORDER BY e.id")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(eventRowColumns).
			AddRow(10, 1, 3, 30, 5, "weekly", 1, nil, "08:00:00", "08:45:00", 45, 1, true, updated, 1, planStart, 7, "Math", "10A", "R5", 30, 1).
			AddRow(11, 1, 4, 31, 6, "single", nil, planStart, "09:00:00", "09:45:00", 45, 1, true, updated, 1, planStart, 8, "Physics", "10B", "Lab", nil, 1))
	mock.ExpectQuery(regexp.QuoteMeta(eventTeachersSelect)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(eventTeacherColumns).
			AddRow(10, 100, "Alice", 1, 24, true).
			AddRow(10, 101, "Bob", 1, 40, true))

	planID := int64(1)
	events, err := repo.ListActiveEvents(context.Background(), &planID)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, models.EventTypeWeekly, events[0].EventType)
	require.NotNil(t, events[0].Weekday)
	assert.Equal(t, 1, *events[0].Weekday)
	assert.Equal(t, models.NewClock(8, 0), events[0].StartTime)
	assert.Equal(t, []int64{100, 101}, events[0].TeacherIDs())
	require.NotNil(t, events[0].RoomCapacity)
	assert.Equal(t, 30, *events[0].RoomCapacity)

	assert.Nil(t, events[1].Weekday)
	assert.Nil(t, events[1].RoomCapacity)
	assert.NotNil(t, events[1].Teachers)
	assert.Empty(t, events[1].Teachers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryListActiveEventsEmptySkipsTeacherQuery(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewEventRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(eventSelect + " WHERE e.is_active = TRUE ORDER BY e.id")).
		WillReturnRows(sqlmock.NewRows(eventRowColumns))

	events, err := repo.ListActiveEvents(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositorySaveEventReplacesTeachers(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewEventRepository(db)
	weekday := 2

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE scheduled_events SET weekday").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "09:00:00", "09:45:00", 45, int64(6), sqlmock.AnyArg(), int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM scheduled_event_teachers WHERE scheduled_event_id = $1")).
		WithArgs(int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO scheduled_event_teachers").
		WithArgs(int64(10), int64(102)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	event := &models.ScheduledEvent{
		ID:              10,
		RoomID:          6,
		EventType:       models.EventTypeWeekly,
		Weekday:         &weekday,
		StartTime:       models.NewClock(9, 0),
		EndTime:         models.NewClock(9, 45),
		DurationMinutes: 45,
		Teachers:        []models.Teacher{{ID: 102, FullName: "Carol"}},
	}
	require.NoError(t, repo.SaveEvent(context.Background(), event))
	assert.False(t, event.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositorySaveEventRollsBack(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewEventRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE scheduled_events SET weekday").WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	err := repo.SaveEvent(context.Background(), &models.ScheduledEvent{ID: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update scheduled event")
	assert.NoError(t, mock.ExpectationsWereMet())
}
