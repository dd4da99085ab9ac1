package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseConflictKind(t *testing.T) {
	cases := map[string]ConflictKind{
		"teacher_time_conflict":           KindTeacherTime,
		"  ROOM_TIME_CONFLICT ":           KindRoomTime,
		"teacher_not_in_schedule":         KindTeacherNotInSchedule,
		"Teacher double booked (time)":    KindTeacherTime,
		"room_time_clash":                 KindRoomTime,
		"teacher_unavailable_custom":      KindTeacherUnavailable,
		"room_unavailable_maintenance":    KindRoomUnavailable,
		"weekly_workload":                 KindTeacherWorkload,
		"teacher_daily_workload_exceeded": KindTeacherDailyWorkload,
		"capacity_warning":                KindRoomCapacityExceeded,
		"non_working_time":                KindNonWorkingTime,
		"after working hours":             KindOutsideWorkingHours,
		"something else":                  KindUnknown,
	}
	for name, want := range cases {
		assert.Equal(t, want, ParseConflictKind(name), name)
	}
}

func TestConflictStatusHelpers(t *testing.T) {
	assert.True(t, ConflictResolved.IsClosed())
	assert.True(t, ConflictIgnored.IsClosed())
	assert.False(t, ConflictInProgress.IsClosed())

	assert.True(t, ConflictAcknowledged.Valid())
	assert.False(t, ConflictStatus("reopened").Valid())
}
