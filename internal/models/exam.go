package models

import "time"

// ExamStatus tracks an exam's lifecycle.
type ExamStatus string

const (
	ExamStatusScheduled ExamStatus = "scheduled"
	ExamStatusOngoing   ExamStatus = "ongoing"
	ExamStatusCompleted ExamStatus = "completed"
	ExamStatusCancelled ExamStatus = "cancelled"
)

// Exam is a room booking for an examination. Times are HH:MM on Date.
type Exam struct {
	ID             string     `db:"id" json:"id"`
	CourseID       string     `db:"course_id" json:"course_id"`
	SemesterNumber int        `db:"semester_number" json:"semester_number"`
	ExamType       string     `db:"exam_type" json:"exam_type"`
	Date           time.Time  `db:"date" json:"date"`
	StartTime      string     `db:"start_time" json:"start_time"`
	EndTime        string     `db:"end_time" json:"end_time"`
	Room           string     `db:"room" json:"room"`
	Status         ExamStatus `db:"status" json:"status"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// ExamFilter describes query params for listing exams.
type ExamFilter struct {
	CourseID       string
	SemesterNumber int
	Room           string
	From           *time.Time
	To             *time.Time
	Page           int
	PageSize       int
}

// ExamConflictError is returned when an exam overlaps existing bookings.
type ExamConflictError struct {
	Message   string `json:"message"`
	Conflicts []Exam `json:"conflicts"`
}

// Error implements the error interface for conflict errors.
func (e *ExamConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// Details exposes the conflicting bookings to API clients.
func (e *ExamConflictError) Details() interface{} {
	return map[string]interface{}{"conflicts": e.Conflicts}
}
