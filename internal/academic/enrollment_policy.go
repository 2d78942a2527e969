package academic

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/univ-academic-api/internal/models"
	appErrors "github.com/noah-isme/univ-academic-api/pkg/errors"
)

// Default load limits.
const (
	DefaultMaxCoursesPerSemester = 4
	DefaultMaxCreditsPerSemester = 24
	DefaultDropWindow            = 14 * 24 * time.Hour
)

// Limits bounds a student's per-semester load and the drop window.
type Limits struct {
	MaxCoursesPerSemester int
	MaxCreditsPerSemester int
	DropWindow            time.Duration
}

// Reason identifies which rule rejected an enrollment action.
type Reason string

const (
	ReasonCourseUnavailable  Reason = "COURSE_UNAVAILABLE"
	ReasonCourseFull         Reason = "COURSE_FULL"
	ReasonAlreadyEnrolled    Reason = "ALREADY_ENROLLED"
	ReasonCourseCompleted    Reason = "COURSE_COMPLETED"
	ReasonPrerequisiteUnmet  Reason = "PREREQUISITE_UNMET"
	ReasonCourseLimit        Reason = "COURSE_LIMIT"
	ReasonCreditLimit        Reason = "CREDIT_LIMIT"
	ReasonDropWindowExpired  Reason = "DROP_WINDOW_EXPIRED"
	ReasonEnrollmentNotFound Reason = "ENROLLMENT_NOT_FOUND"
	ReasonNotEnrolled        Reason = "NOT_ENROLLED"
)

// Violation is the cause attached to a rejected enrollment action.
type Violation struct {
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (v *Violation) Error() string {
	if v == nil {
		return "<nil>"
	}
	return v.Message
}

// Details exposes the machine readable reason to API clients.
func (v *Violation) Details() interface{} {
	return map[string]interface{}{"reason": v.Reason}
}

func violate(kind *appErrors.Error, reason Reason, message string) error {
	return appErrors.Wrap(&Violation{Reason: reason, Message: message}, kind.Code, kind.Status, message)
}

// CourseFullError is the capacity rejection, also used when the seat counter
// refuses the increment at write time.
func CourseFullError() error {
	return violate(appErrors.ErrConflict, ReasonCourseFull, "Course is at full capacity")
}

// AlreadyEnrolledError rejects a second enrollment of the same pair.
func AlreadyEnrolledError() error {
	return violate(appErrors.ErrConflict, ReasonAlreadyEnrolled, "Already enrolled in this course")
}

// EnrollInput is the snapshot TryEnroll decides on.
type EnrollInput struct {
	StudentID string
	Course    models.Course
	// Enrollments holds every row of the student, any status, joined with course data.
	Enrollments []models.EnrollmentDetail
	Now         time.Time
}

// EnrollDecision is the state transition produced by a successful enroll.
type EnrollDecision struct {
	Enrollment   models.Enrollment
	Reenrollment bool
	SeatDelta    int
	Event        models.EnrollmentEvent
}

// DropInput is the snapshot TryDrop decides on. Enrollment is nil when no row exists.
type DropInput struct {
	Course     models.Course
	Enrollment *models.Enrollment
	Now        time.Time
}

// DropDecision is the state transition produced by a successful drop.
type DropDecision struct {
	Enrollment models.Enrollment
	SeatDelta  int
	Event      models.EnrollmentEvent
}

// Policy evaluates enrollment state transitions per (student, course):
// NONE -> ENROLLED -> {DROPPED, COMPLETED}, DROPPED -> ENROLLED.
type Policy struct {
	limits Limits
}

// NewPolicy fills unset limits with the defaults.
func NewPolicy(limits Limits) *Policy {
	if limits.MaxCoursesPerSemester <= 0 {
		limits.MaxCoursesPerSemester = DefaultMaxCoursesPerSemester
	}
	if limits.MaxCreditsPerSemester <= 0 {
		limits.MaxCreditsPerSemester = DefaultMaxCreditsPerSemester
	}
	if limits.DropWindow <= 0 {
		limits.DropWindow = DefaultDropWindow
	}
	return &Policy{limits: limits}
}

// Limits returns the effective limits.
func (p *Policy) Limits() Limits {
	return p.limits
}

// TryEnroll decides whether the student may enroll, or re-enroll after a drop.
// The re-enroll path runs every check a fresh enrollment does.
func (p *Policy) TryEnroll(in EnrollInput) (*EnrollDecision, error) {
	course := in.Course
	if course.Status != models.CourseStatusActive {
		return nil, violate(appErrors.ErrConflict, ReasonCourseUnavailable, fmt.Sprintf("Course %s is not open for enrollment (status: %s)", course.Code, course.Status))
	}
	if course.EnrolledCount >= course.Capacity {
		return nil, CourseFullError()
	}

	var existing *models.Enrollment
	for i := range in.Enrollments {
		if in.Enrollments[i].CourseID == course.ID {
			row := in.Enrollments[i].Enrollment
			existing = &row
			break
		}
	}
	if existing != nil {
		switch existing.Status {
		case models.EnrollmentStatusEnrolled:
			return nil, AlreadyEnrolledError()
		case models.EnrollmentStatusCompleted:
			return nil, violate(appErrors.ErrConflict, ReasonCourseCompleted, "Cannot re-enroll in a completed course")
		}
	}

	if err := p.checkPrerequisites(course, in.Enrollments); err != nil {
		return nil, err
	}
	if err := p.checkLoad(course, in.Enrollments); err != nil {
		return nil, err
	}

	now := in.Now.UTC()
	decision := &EnrollDecision{SeatDelta: 1}
	action := models.EnrollmentActionEnrolled
	if existing != nil {
		decision.Reenrollment = true
		action = models.EnrollmentActionReenrolled
		decision.Enrollment = *existing
	} else {
		decision.Enrollment = models.Enrollment{StudentID: in.StudentID, CourseID: course.ID}
	}
	decision.Enrollment.Status = models.EnrollmentStatusEnrolled
	decision.Enrollment.EnrolledAt = now
	decision.Enrollment.DroppedAt = nil
	decision.Event = models.EnrollmentEvent{
		EnrollmentID:   decision.Enrollment.ID,
		Action:         action,
		SemesterNumber: course.SemesterNumber,
		OccurredAt:     now,
	}
	return decision, nil
}

// checkPrerequisites only requires completion; the minimum grade is carried in
// the data model but not enforced.
func (p *Policy) checkPrerequisites(course models.Course, enrollments []models.EnrollmentDetail) error {
	prerequisites, err := course.PrerequisiteList()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode course prerequisites")
	}
	if len(prerequisites) == 0 {
		return nil
	}
	completed := make(map[string]struct{}, len(enrollments))
	for _, e := range enrollments {
		if e.Status == models.EnrollmentStatusCompleted {
			completed[strings.ToUpper(strings.TrimSpace(e.CourseCode))] = struct{}{}
		}
	}
	var missing []string
	for _, pre := range prerequisites {
		code := strings.ToUpper(strings.TrimSpace(pre.CourseCode))
		if code == "" {
			continue
		}
		if _, ok := completed[code]; !ok {
			missing = append(missing, pre.CourseCode)
		}
	}
	if len(missing) > 0 {
		return violate(appErrors.ErrConflict, ReasonPrerequisiteUnmet, fmt.Sprintf("Prerequisites not met: %s", strings.Join(missing, ", ")))
	}
	return nil
}

func (p *Policy) checkLoad(course models.Course, enrollments []models.EnrollmentDetail) error {
	var count, credits int
	for _, e := range enrollments {
		if e.Status != models.EnrollmentStatusEnrolled || e.CourseID == course.ID {
			continue
		}
		if e.SemesterNumber != course.SemesterNumber {
			continue
		}
		count++
		credits += e.CourseCredits
	}
	if count >= p.limits.MaxCoursesPerSemester {
		return violate(appErrors.ErrConflict, ReasonCourseLimit, fmt.Sprintf("Course limit reached for semester %d (max %d courses per semester)", course.SemesterNumber, p.limits.MaxCoursesPerSemester))
	}
	if credits+course.Credits > p.limits.MaxCreditsPerSemester {
		return violate(appErrors.ErrConflict, ReasonCreditLimit, fmt.Sprintf("Credit limit exceeded for semester %d (max %d credits)", course.SemesterNumber, p.limits.MaxCreditsPerSemester))
	}
	return nil
}

// TryDrop decides whether an enrolled student may withdraw. The drop is allowed
// up to and including enrolled_at + drop window.
func (p *Policy) TryDrop(in DropInput) (*DropDecision, error) {
	const message = "Enrollment not found or already dropped"
	if in.Enrollment == nil {
		return nil, violate(appErrors.ErrNotFound, ReasonEnrollmentNotFound, message)
	}
	if in.Enrollment.Status != models.EnrollmentStatusEnrolled {
		return nil, violate(appErrors.ErrInvalidState, ReasonNotEnrolled, message)
	}
	now := in.Now.UTC()
	deadline := in.Enrollment.EnrolledAt.Add(p.limits.DropWindow)
	if now.After(deadline) {
		return nil, violate(appErrors.ErrConflict, ReasonDropWindowExpired, fmt.Sprintf("Drop period has expired (deadline %s)", deadline.UTC().Format(time.RFC3339)))
	}

	dropped := *in.Enrollment
	dropped.Status = models.EnrollmentStatusDropped
	dropped.DroppedAt = &now
	return &DropDecision{
		Enrollment: dropped,
		SeatDelta:  -1,
		Event: models.EnrollmentEvent{
			EnrollmentID:   dropped.ID,
			Action:         models.EnrollmentActionDropped,
			SemesterNumber: in.Course.SemesterNumber,
			OccurredAt:     now,
		},
	}, nil
}

// TryComplete closes an enrollment. COMPLETED is terminal and keeps the seat counted.
func (p *Policy) TryComplete(course models.Course, enrollment *models.Enrollment, now time.Time) (*DropDecision, error) {
	if enrollment == nil {
		return nil, violate(appErrors.ErrNotFound, ReasonEnrollmentNotFound, "Enrollment not found")
	}
	if enrollment.Status != models.EnrollmentStatusEnrolled {
		return nil, violate(appErrors.ErrInvalidState, ReasonNotEnrolled, fmt.Sprintf("Only enrolled courses can be completed (status: %s)", enrollment.Status))
	}
	now = now.UTC()
	completed := *enrollment
	completed.Status = models.EnrollmentStatusCompleted
	completed.CompletedAt = &now
	return &DropDecision{
		Enrollment: completed,
		Event: models.EnrollmentEvent{
			EnrollmentID:   completed.ID,
			Action:         models.EnrollmentActionCompleted,
			SemesterNumber: course.SemesterNumber,
			OccurredAt:     now,
		},
	}, nil
}

// ReasonOf extracts the violation reason from an error returned by the policy.
func ReasonOf(err error) (Reason, bool) {
	var v *Violation
	if errors.As(err, &v) {
		return v.Reason, true
	}
	return "", false
}
