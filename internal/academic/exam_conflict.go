package academic

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/univ-academic-api/internal/models"
	appErrors "github.com/noah-isme/univ-academic-api/pkg/errors"
)

// ExamSlot is the room booking being checked.
type ExamSlot struct {
	Date      time.Time
	StartTime string
	EndTime   string
	Room      string
}

// SlotOf extracts the booking fields of an exam.
func SlotOf(exam models.Exam) ExamSlot {
	return ExamSlot{Date: exam.Date, StartTime: exam.StartTime, EndTime: exam.EndTime, Room: exam.Room}
}

// DetectExamConflicts returns the exams sharing the candidate's room and date
// whose windows overlap it. Windows are half open, so an exam ending at 10:00
// does not clash with one starting at 10:00. The exam identified by excludeID
// and cancelled exams are ignored.
func DetectExamConflicts(candidate ExamSlot, excludeID string, existing []models.Exam) ([]models.Exam, error) {
	start, end, err := ParseWindow(candidate.StartTime, candidate.EndTime)
	if err != nil {
		return nil, err
	}
	room := normalizeRoom(candidate.Room)
	if room == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "room is required")
	}
	day := dateKey(candidate.Date)

	conflicts := make([]models.Exam, 0)
	for _, exam := range existing {
		if excludeID != "" && exam.ID == excludeID {
			continue
		}
		if exam.Status == models.ExamStatusCancelled {
			continue
		}
		if normalizeRoom(exam.Room) != room || dateKey(exam.Date) != day {
			continue
		}
		otherStart, otherEnd, err := ParseWindow(exam.StartTime, exam.EndTime)
		if err != nil {
			// Stored rows were validated on write; skip anything that no longer parses.
			continue
		}
		if start < otherEnd && otherStart < end {
			conflicts = append(conflicts, exam)
		}
	}
	return conflicts, nil
}

// ParseWindow converts an HH:MM pair to minutes since midnight and requires end after start.
func ParseWindow(startTime, endTime string) (int, int, error) {
	start, err := parseHHMM(startTime)
	if err != nil {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid start_time %q", startTime))
	}
	end, err := parseHHMM(endTime)
	if err != nil {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid end_time %q", endTime))
	}
	if end <= start {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}
	return start, end, nil
}

func parseHHMM(value string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func normalizeRoom(room string) string {
	return strings.ToUpper(strings.TrimSpace(room))
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// ConflictMessage renders a human readable summary of the clashing exams.
func ConflictMessage(room string, conflicts []models.Exam) string {
	windows := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		windows = append(windows, fmt.Sprintf("%s-%s", c.StartTime, c.EndTime))
	}
	return fmt.Sprintf("Room %s is already booked (%s)", strings.TrimSpace(room), strings.Join(windows, ", "))
}
