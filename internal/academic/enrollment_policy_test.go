package academic

import (
	"testing"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/univ-academic-api/internal/models"
	appErrors "github.com/noah-isme/univ-academic-api/pkg/errors"
)

var policyNow = time.Date(2026, time.February, 10, 9, 0, 0, 0, time.UTC)

func activeCourse(id string, credit int) models.Course {
	return models.Course{
		ID:             id,
		Code:           "CS" + id,
		Credits:        credit,
		Capacity:       30,
		EnrolledCount:  10,
		Status:         models.CourseStatusActive,
		SemesterNumber: 6,
	}
}

func enrolledIn(courseID string, credit, semester int) models.EnrollmentDetail {
	return models.EnrollmentDetail{
		Enrollment:     models.Enrollment{ID: "e-" + courseID, StudentID: "stu", CourseID: courseID, Status: models.EnrollmentStatusEnrolled},
		CourseCode:     "CS" + courseID,
		CourseCredits:  credit,
		SemesterNumber: semester,
	}
}

func assertViolation(t *testing.T, err error, kind *appErrors.Error, reason Reason) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, kind), "expected %s, got %v", kind.Code, err)
	got, ok := ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, reason, got)
}

func TestTryEnrollFreshEnrollment(t *testing.T) {
	policy := NewPolicy(Limits{})
	course := activeCourse("101", 3)

	decision, err := policy.TryEnroll(EnrollInput{StudentID: "stu", Course: course, Now: policyNow})
	require.NoError(t, err)
	assert.False(t, decision.Reenrollment)
	assert.Equal(t, 1, decision.SeatDelta)
	assert.Equal(t, models.EnrollmentStatusEnrolled, decision.Enrollment.Status)
	assert.Equal(t, "stu", decision.Enrollment.StudentID)
	assert.Equal(t, course.ID, decision.Enrollment.CourseID)
	assert.Equal(t, policyNow, decision.Enrollment.EnrolledAt)
	assert.Equal(t, models.EnrollmentActionEnrolled, decision.Event.Action)
	assert.Equal(t, 6, decision.Event.SemesterNumber)
}

func TestTryEnrollRejectsFullCourseRegardlessOfOtherFields(t *testing.T) {
	policy := NewPolicy(Limits{})
	course := activeCourse("101", 3)
	course.EnrolledCount = course.Capacity
	course.Prerequisites = types.JSONText(`[{"course_code":"CS001"}]`)

	inputs := []EnrollInput{
		{StudentID: "stu", Course: course, Now: policyNow},
		{StudentID: "stu", Course: course, Now: policyNow, Enrollments: []models.EnrollmentDetail{
			{Enrollment: models.Enrollment{CourseID: "101", Status: models.EnrollmentStatusDropped}},
		}},
		{StudentID: "stu", Course: course, Now: policyNow, Enrollments: []models.EnrollmentDetail{
			enrolledIn("a", 6, 6), enrolledIn("b", 6, 6), enrolledIn("c", 6, 6), enrolledIn("d", 6, 6),
		}},
	}
	for _, in := range inputs {
		_, err := policy.TryEnroll(in)
		assertViolation(t, err, appErrors.ErrConflict, ReasonCourseFull)
		assert.Contains(t, err.Error(), "Course is at full capacity")
	}
}

func TestTryEnrollRejectsInactiveCourse(t *testing.T) {
	policy := NewPolicy(Limits{})
	for _, status := range []models.CourseStatus{models.CourseStatusInactive, models.CourseStatusCompleted, models.CourseStatusUpcoming} {
		course := activeCourse("101", 3)
		course.Status = status
		_, err := policy.TryEnroll(EnrollInput{StudentID: "stu", Course: course, Now: policyNow})
		assertViolation(t, err, appErrors.ErrConflict, ReasonCourseUnavailable)
	}
}

func TestTryEnrollExistingRows(t *testing.T) {
	policy := NewPolicy(Limits{})
	course := activeCourse("101", 3)

	_, err := policy.TryEnroll(EnrollInput{StudentID: "stu", Course: course, Now: policyNow, Enrollments: []models.EnrollmentDetail{enrolledIn("101", 3, 6)}})
	assertViolation(t, err, appErrors.ErrConflict, ReasonAlreadyEnrolled)

	completed := enrolledIn("101", 3, 6)
	completed.Status = models.EnrollmentStatusCompleted
	_, err = policy.TryEnroll(EnrollInput{StudentID: "stu", Course: course, Now: policyNow, Enrollments: []models.EnrollmentDetail{completed}})
	assertViolation(t, err, appErrors.ErrConflict, ReasonCourseCompleted)
}

func TestTryEnrollReenrollReusesRow(t *testing.T) {
	policy := NewPolicy(Limits{})
	course := activeCourse("101", 3)
	droppedAt := policyNow.Add(-48 * time.Hour)
	dropped := enrolledIn("101", 3, 6)
	dropped.Status = models.EnrollmentStatusDropped
	dropped.EnrolledAt = policyNow.Add(-72 * time.Hour)
	dropped.DroppedAt = &droppedAt

	decision, err := policy.TryEnroll(EnrollInput{StudentID: "stu", Course: course, Now: policyNow, Enrollments: []models.EnrollmentDetail{dropped}})
	require.NoError(t, err)
	assert.True(t, decision.Reenrollment)
	assert.Equal(t, "e-101", decision.Enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusEnrolled, decision.Enrollment.Status)
	assert.Equal(t, policyNow, decision.Enrollment.EnrolledAt)
	assert.Nil(t, decision.Enrollment.DroppedAt)
	assert.Equal(t, models.EnrollmentActionReenrolled, decision.Event.Action)
	assert.Equal(t, "e-101", decision.Event.EnrollmentID)
	assert.Equal(t, 1, decision.SeatDelta)
}

func TestTryEnrollReenrollRevalidatesLimits(t *testing.T) {
	policy := NewPolicy(Limits{})
	course := activeCourse("101", 3)
	dropped := enrolledIn("101", 3, 6)
	dropped.Status = models.EnrollmentStatusDropped

	enrollments := []models.EnrollmentDetail{
		dropped,
		enrolledIn("a", 3, 6), enrolledIn("b", 3, 6), enrolledIn("c", 3, 6), enrolledIn("d", 3, 6),
	}
	_, err := policy.TryEnroll(EnrollInput{StudentID: "stu", Course: course, Now: policyNow, Enrollments: enrollments})
	assertViolation(t, err, appErrors.ErrConflict, ReasonCourseLimit)

	full := course
	full.EnrolledCount = full.Capacity
	_, err = policy.TryEnroll(EnrollInput{StudentID: "stu", Course: full, Now: policyNow, Enrollments: []models.EnrollmentDetail{dropped}})
	assertViolation(t, err, appErrors.ErrConflict, ReasonCourseFull)

	heavy := []models.EnrollmentDetail{dropped, enrolledIn("a", 6, 6), enrolledIn("b", 6, 6), enrolledIn("c", 6, 6)}
	heavyCourse := activeCourse("101", 7)
	_, err = policy.TryEnroll(EnrollInput{StudentID: "stu", Course: heavyCourse, Now: policyNow, Enrollments: heavy})
	assertViolation(t, err, appErrors.ErrConflict, ReasonCreditLimit)
}

func TestTryEnrollCreditBoundary(t *testing.T) {
	policy := NewPolicy(Limits{})
	current := []models.EnrollmentDetail{enrolledIn("a", 8, 6), enrolledIn("b", 6, 6), enrolledIn("c", 6, 6)}

	_, err := policy.TryEnroll(EnrollInput{StudentID: "stu", Course: activeCourse("four", 4), Enrollments: current, Now: policyNow})
	require.NoError(t, err)

	_, err = policy.TryEnroll(EnrollInput{StudentID: "stu", Course: activeCourse("five", 5), Enrollments: current, Now: policyNow})
	assertViolation(t, err, appErrors.ErrConflict, ReasonCreditLimit)
	assert.Contains(t, err.Error(), "Credit limit exceeded for semester 6 (max 24 credits)")
}

func TestTryEnrollLoadCountsOnlySameSemesterEnrolledRows(t *testing.T) {
	policy := NewPolicy(Limits{})
	dropped := enrolledIn("x", 6, 6)
	dropped.Status = models.EnrollmentStatusDropped
	completed := enrolledIn("y", 6, 6)
	completed.Status = models.EnrollmentStatusCompleted
	current := []models.EnrollmentDetail{
		enrolledIn("a", 6, 6), enrolledIn("b", 6, 6), enrolledIn("c", 6, 6),
		enrolledIn("other", 6, 5), dropped, completed,
	}

	_, err := policy.TryEnroll(EnrollInput{StudentID: "stu", Course: activeCourse("101", 6), Enrollments: current, Now: policyNow})
	require.NoError(t, err)
}

func TestTryEnrollPrerequisites(t *testing.T) {
	policy := NewPolicy(Limits{})
	course := activeCourse("301", 3)
	course.Prerequisites = types.JSONText(`[{"course_code":"CS101","min_grade":"B"},{"course_code":"CS201"}]`)

	passed := enrolledIn("101", 3, 4)
	passed.Status = models.EnrollmentStatusCompleted

	_, err := policy.TryEnroll(EnrollInput{StudentID: "stu", Course: course, Enrollments: []models.EnrollmentDetail{passed}, Now: policyNow})
	assertViolation(t, err, appErrors.ErrConflict, ReasonPrerequisiteUnmet)
	assert.Contains(t, err.Error(), "CS201")

	other := enrolledIn("201", 3, 5)
	other.Status = models.EnrollmentStatusCompleted
	_, err = policy.TryEnroll(EnrollInput{StudentID: "stu", Course: course, Enrollments: []models.EnrollmentDetail{passed, other}, Now: policyNow})
	require.NoError(t, err)
}

func TestTryEnrollMalformedPrerequisites(t *testing.T) {
	course := activeCourse("301", 3)
	course.Prerequisites = types.JSONText(`{"broken"`)
	_, err := NewPolicy(Limits{}).TryEnroll(EnrollInput{StudentID: "stu", Course: course, Now: policyNow})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
}

func TestTryEnrollCustomLimits(t *testing.T) {
	policy := NewPolicy(Limits{MaxCoursesPerSemester: 1})
	_, err := policy.TryEnroll(EnrollInput{StudentID: "stu", Course: activeCourse("101", 3), Enrollments: []models.EnrollmentDetail{enrolledIn("a", 3, 6)}, Now: policyNow})
	assertViolation(t, err, appErrors.ErrConflict, ReasonCourseLimit)
	assert.Equal(t, DefaultMaxCreditsPerSemester, policy.Limits().MaxCreditsPerSemester)
}

func TestTryDropWindow(t *testing.T) {
	policy := NewPolicy(Limits{})
	enrolledAt := policyNow
	enrollment := &models.Enrollment{ID: "e1", StudentID: "stu", CourseID: "101", Status: models.EnrollmentStatusEnrolled, EnrolledAt: enrolledAt}
	course := activeCourse("101", 3)

	justInside := enrolledAt.Add(14*24*time.Hour - time.Second)
	decision, err := policy.TryDrop(DropInput{Course: course, Enrollment: enrollment, Now: justInside})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusDropped, decision.Enrollment.Status)
	require.NotNil(t, decision.Enrollment.DroppedAt)
	assert.Equal(t, justInside, *decision.Enrollment.DroppedAt)
	assert.Equal(t, -1, decision.SeatDelta)
	assert.Equal(t, models.EnrollmentActionDropped, decision.Event.Action)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)

	justOutside := enrolledAt.Add(14*24*time.Hour + time.Second)
	_, err = policy.TryDrop(DropInput{Course: course, Enrollment: enrollment, Now: justOutside})
	assertViolation(t, err, appErrors.ErrConflict, ReasonDropWindowExpired)
	assert.Contains(t, err.Error(), "Drop period has expired")
}

func TestTryDropIllegalStates(t *testing.T) {
	policy := NewPolicy(Limits{})
	course := activeCourse("101", 3)

	_, err := policy.TryDrop(DropInput{Course: course, Now: policyNow})
	assertViolation(t, err, appErrors.ErrNotFound, ReasonEnrollmentNotFound)

	for _, status := range []models.EnrollmentStatus{models.EnrollmentStatusDropped, models.EnrollmentStatusCompleted} {
		row := &models.Enrollment{ID: "e1", Status: status, EnrolledAt: policyNow}
		_, err = policy.TryDrop(DropInput{Course: course, Enrollment: row, Now: policyNow})
		assertViolation(t, err, appErrors.ErrInvalidState, ReasonNotEnrolled)
		assert.Contains(t, err.Error(), "Enrollment not found or already dropped")
	}
}

func TestTryComplete(t *testing.T) {
	policy := NewPolicy(Limits{})
	course := activeCourse("101", 3)
	row := &models.Enrollment{ID: "e1", Status: models.EnrollmentStatusEnrolled, EnrolledAt: policyNow}

	decision, err := policy.TryComplete(course, row, policyNow.Add(90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCompleted, decision.Enrollment.Status)
	assert.NotNil(t, decision.Enrollment.CompletedAt)
	assert.Equal(t, 0, decision.SeatDelta)
	assert.Equal(t, models.EnrollmentActionCompleted, decision.Event.Action)

	_, err = policy.TryComplete(course, &decision.Enrollment, policyNow)
	assertViolation(t, err, appErrors.ErrInvalidState, ReasonNotEnrolled)

	_, err = policy.TryComplete(course, nil, policyNow)
	assertViolation(t, err, appErrors.ErrNotFound, ReasonEnrollmentNotFound)
}
