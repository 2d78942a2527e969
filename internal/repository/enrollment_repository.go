package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/univ-academic-api/internal/models"
)

// ErrDuplicateEnrollment is returned when the (student, course) row already exists.
var ErrDuplicateEnrollment = errors.New("enrollment already exists for student and course")

const uniqueViolation = "23505"

const enrollmentColumns = `id, student_id, course_id, status, enrolled_at, dropped_at, completed_at, created_at, updated_at`

// EnrollmentRepository handles persistence of enrollments and their history.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListByStudent returns the student's enrollments joined with course data.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, exec sqlx.ExtContext, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error) {
	query := `SELECT e.id, e.student_id, e.course_id, e.status, e.enrolled_at, e.dropped_at, e.completed_at, e.created_at, e.updated_at,
c.code AS course_code, c.name AS course_name, c.credits AS course_credits, s.number AS semester_number
FROM enrollments e
JOIN courses c ON c.id = e.course_id
JOIN semesters s ON s.id = c.semester_id
WHERE e.student_id = $1`
	args := []interface{}{filter.StudentID}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND e.status = $%d", len(args)+1)
		args = append(args, filter.Status)
	}
	query += " ORDER BY s.number, c.code"

	var enrollments []models.EnrollmentDetail
	if err := sqlx.SelectContext(ctx, r.exec(exec), &enrollments, query, args...); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.exec(exec), &enrollment, `SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindByStudentAndCourse locks and returns the single row of a (student, course) pair.
func (r *EnrollmentRepository) FindByStudentAndCourse(ctx context.Context, exec sqlx.ExtContext, studentID, courseID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE student_id = $1 AND course_id = $2 FOR UPDATE`
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.exec(exec), &enrollment, query, studentID, courseID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Create persists a new enrollment row.
func (r *EnrollmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = now
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusEnrolled
	}
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now

	const query = `INSERT INTO enrollments (id, student_id, course_id, status, enrolled_at, dropped_at, completed_at, created_at, updated_at)
VALUES (:id, :student_id, :course_id, :status, :enrolled_at, :dropped_at, :completed_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, enrollment); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateEnrollment
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateState writes the status and lifecycle timestamps of an enrollment.
func (r *EnrollmentRepository) UpdateState(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	enrollment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE enrollments SET status = :status, enrolled_at = :enrolled_at, dropped_at = :dropped_at, completed_at = :completed_at, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, enrollment); err != nil {
		return fmt.Errorf("update enrollment state: %w", err)
	}
	return nil
}

// AppendEvent records one history entry.
func (r *EnrollmentRepository) AppendEvent(ctx context.Context, exec sqlx.ExtContext, event *models.EnrollmentEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrollment_events (id, enrollment_id, action, semester_number, occurred_at)
VALUES (:id, :enrollment_id, :action, :semester_number, :occurred_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, event); err != nil {
		return fmt.Errorf("append enrollment event: %w", err)
	}
	return nil
}

// ListEvents returns the history of an enrollment, oldest first.
func (r *EnrollmentRepository) ListEvents(ctx context.Context, enrollmentID string) ([]models.EnrollmentEvent, error) {
	const query = `SELECT id, enrollment_id, action, semester_number, occurred_at FROM enrollment_events WHERE enrollment_id = $1 ORDER BY occurred_at ASC`
	var events []models.EnrollmentEvent
	if err := r.db.SelectContext(ctx, &events, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list enrollment events: %w", err)
	}
	return events, nil
}

// ListStudentIDsByCourse returns the students currently enrolled in a course.
func (r *EnrollmentRepository) ListStudentIDsByCourse(ctx context.Context, courseID string) ([]string, error) {
	const query = `SELECT student_id FROM enrollments WHERE course_id = $1 AND status = $2 ORDER BY student_id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, courseID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, fmt.Errorf("list course students: %w", err)
	}
	return ids, nil
}
