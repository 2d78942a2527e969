package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/univ-academic-api/internal/models"
)

// ErrGradePublished reports a write that hit a grade already released to the student.
var ErrGradePublished = errors.New("grade is published")

const gradeColumns = `id, student_id, course_id, semester_id, components, total_score, letter_grade, grade_point, status, graded_by, graded_at, created_at, updated_at`

// GradeRepository persists per (student, course, semester) grade records.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository creates a new grade repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

func (r *GradeRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID loads a grade by identifier.
func (r *GradeRepository) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, `SELECT `+gradeColumns+` FROM grades WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &grade, nil
}

// FindByTripleForUpdate loads the grade of a student for a course in a semester
// and locks the row for the rest of the transaction.
func (r *GradeRepository) FindByTripleForUpdate(ctx context.Context, exec sqlx.ExtContext, studentID, courseID, semesterID string) (*models.Grade, error) {
	const query = `SELECT ` + gradeColumns + ` FROM grades WHERE student_id = $1 AND course_id = $2 AND semester_id = $3 FOR UPDATE`
	var grade models.Grade
	if err := sqlx.GetContext(ctx, r.exec(exec), &grade, query, studentID, courseID, semesterID); err != nil {
		return nil, err
	}
	return &grade, nil
}

// Upsert writes the grade in one statement keyed by (student, course, semester)
// and refreshes ID and CreatedAt from the stored row. A published row is left
// untouched and ErrGradePublished is returned.
func (r *GradeRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if grade.CreatedAt.IsZero() {
		grade.CreatedAt = now
	}
	grade.UpdatedAt = now

	const query = `INSERT INTO grades (id, student_id, course_id, semester_id, components, total_score, letter_grade, grade_point, status, graded_by, graded_at, created_at, updated_at)
VALUES (:id, :student_id, :course_id, :semester_id, :components, :total_score, :letter_grade, :grade_point, :status, :graded_by, :graded_at, :created_at, :updated_at)
ON CONFLICT (student_id, course_id, semester_id)
DO UPDATE SET components = EXCLUDED.components, total_score = EXCLUDED.total_score, letter_grade = EXCLUDED.letter_grade,
grade_point = EXCLUDED.grade_point, status = EXCLUDED.status, graded_by = EXCLUDED.graded_by, graded_at = EXCLUDED.graded_at,
updated_at = EXCLUDED.updated_at
WHERE grades.status <> 'published'
RETURNING id, created_at`
	rows, err := sqlx.NamedQueryContext(ctx, r.exec(exec), query, grade)
	if err != nil {
		return fmt.Errorf("upsert grade: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return fmt.Errorf("upsert grade rows: %w", err)
		}
		return ErrGradePublished
	}
	if err := rows.Scan(&grade.ID, &grade.CreatedAt); err != nil {
		return fmt.Errorf("scan upserted grade: %w", err)
	}
	return nil
}

// TransitionStatus moves a grade from one lifecycle status to another. It
// reports false when the stored status no longer matches from.
func (r *GradeRepository) TransitionStatus(ctx context.Context, id string, from, to models.GradeStatus) (bool, error) {
	const query = `UPDATE grades SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("transition grade status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition grade status rows: %w", err)
	}
	return affected == 1, nil
}

// Delete removes a grade record.
func (r *GradeRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM grades WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete grade: %w", err)
	}
	return nil
}

// ListCourseGradesByStudent returns every grade of a student with course credits.
// Credits are NULL when the course row no longer exists.
func (r *GradeRepository) ListCourseGradesByStudent(ctx context.Context, studentID string) ([]models.CourseGrade, error) {
	const query = `SELECT g.id AS grade_id, g.course_id, COALESCE(c.code, '') AS course_code, g.semester_id,
COALESCE(s.number, 0) AS semester_number, c.credits, g.grade_point, g.letter_grade, g.status
FROM grades g
LEFT JOIN courses c ON c.id = g.course_id
LEFT JOIN semesters s ON s.id = g.semester_id
WHERE g.student_id = $1
ORDER BY s.number, c.code`
	var grades []models.CourseGrade
	if err := r.db.SelectContext(ctx, &grades, query, studentID); err != nil {
		return nil, fmt.Errorf("list student course grades: %w", err)
	}
	return grades, nil
}
