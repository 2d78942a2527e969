package academic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/univ-academic-api/internal/models"
	appErrors "github.com/noah-isme/univ-academic-api/pkg/errors"
)

var examDay = time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC)

func booked(id, room, start, end string) models.Exam {
	return models.Exam{ID: id, Room: room, Date: examDay, StartTime: start, EndTime: end, Status: models.ExamStatusScheduled}
}

func TestDetectExamConflictsTouchingWindows(t *testing.T) {
	existing := []models.Exam{booked("e1", "R101", "09:00", "10:00")}

	conflicts, err := DetectExamConflicts(ExamSlot{Date: examDay, StartTime: "10:00", EndTime: "11:00", Room: "R101"}, "", existing)
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	existing = []models.Exam{booked("e1", "R101", "09:00", "10:30")}
	conflicts, err = DetectExamConflicts(ExamSlot{Date: examDay, StartTime: "10:00", EndTime: "11:00", Room: "R101"}, "", existing)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "e1", conflicts[0].ID)
}

func TestDetectExamConflictsScope(t *testing.T) {
	cancelled := booked("cancelled", "R101", "09:00", "12:00")
	cancelled.Status = models.ExamStatusCancelled
	otherDay := booked("other-day", "R101", "09:00", "12:00")
	otherDay.Date = examDay.AddDate(0, 0, 1)

	existing := []models.Exam{
		booked("self", "R101", "09:00", "12:00"),
		booked("other-room", "R102", "09:00", "12:00"),
		booked("same-room-case", " r101 ", "11:30", "13:00"),
		booked("contained", "R101", "10:15", "10:45"),
		cancelled,
		otherDay,
	}

	conflicts, err := DetectExamConflicts(ExamSlot{Date: examDay, StartTime: "10:00", EndTime: "12:00", Room: "R101"}, "self", existing)
	require.NoError(t, err)

	ids := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []string{"same-room-case", "contained"}, ids)
}

func TestDetectExamConflictsDateIgnoresTimeOfDay(t *testing.T) {
	existing := []models.Exam{booked("e1", "R101", "09:00", "10:00")}
	candidateDate := examDay.Add(13 * time.Hour)

	conflicts, err := DetectExamConflicts(ExamSlot{Date: candidateDate, StartTime: "09:30", EndTime: "10:30", Room: "R101"}, "", existing)
	require.NoError(t, err)
	assert.Len(t, conflicts, 1)
}

func TestDetectExamConflictsValidation(t *testing.T) {
	cases := []ExamSlot{
		{Date: examDay, StartTime: "9am", EndTime: "10:00", Room: "R101"},
		{Date: examDay, StartTime: "09:00", EndTime: "25:00", Room: "R101"},
		{Date: examDay, StartTime: "10:00", EndTime: "10:00", Room: "R101"},
		{Date: examDay, StartTime: "11:00", EndTime: "10:00", Room: "R101"},
		{Date: examDay, StartTime: "09:00", EndTime: "10:00", Room: "  "},
	}
	for _, slot := range cases {
		_, err := DetectExamConflicts(slot, "", nil)
		require.Error(t, err, "%+v", slot)
		assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	}
}

func TestConflictMessage(t *testing.T) {
	msg := ConflictMessage(" R101 ", []models.Exam{booked("e1", "R101", "09:00", "10:30")})
	assert.Equal(t, "Room R101 is already booked (09:00-10:30)", msg)
}
