package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "enrolled"
	EnrollmentStatusDropped   EnrollmentStatus = "dropped"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
)

// Enrollment captures a student's registration to a course. A single row per
// (student, course) is reused across drop and re-enroll cycles.
type Enrollment struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	CourseID    string           `db:"course_id" json:"course_id"`
	Status      EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt  time.Time        `db:"enrolled_at" json:"enrolled_at"`
	DroppedAt   *time.Time       `db:"dropped_at" json:"dropped_at,omitempty"`
	CompletedAt *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with the course fields the policy needs.
type EnrollmentDetail struct {
	Enrollment
	CourseCode     string `db:"course_code" json:"course_code"`
	CourseName     string `db:"course_name" json:"course_name"`
	CourseCredits  int    `db:"course_credits" json:"course_credits"`
	SemesterNumber int    `db:"semester_number" json:"semester_number"`
}

// EnrollmentAction labels an entry of the enrollment history.
type EnrollmentAction string

const (
	EnrollmentActionEnrolled   EnrollmentAction = "enrolled"
	EnrollmentActionReenrolled EnrollmentAction = "reenrolled"
	EnrollmentActionDropped    EnrollmentAction = "dropped"
	EnrollmentActionCompleted  EnrollmentAction = "completed"
)

// EnrollmentEvent is an append-only history row for an enrollment.
type EnrollmentEvent struct {
	ID             string           `db:"id" json:"id"`
	EnrollmentID   string           `db:"enrollment_id" json:"enrollment_id"`
	Action         EnrollmentAction `db:"action" json:"action"`
	SemesterNumber int              `db:"semester_number" json:"semester_number"`
	OccurredAt     time.Time        `db:"occurred_at" json:"occurred_at"`
}

// EnrollmentFilter provides filters for listing a student's enrollments.
type EnrollmentFilter struct {
	StudentID string
	Status    EnrollmentStatus
}
