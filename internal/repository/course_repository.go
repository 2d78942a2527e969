package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/univ-academic-api/internal/models"
)

const courseSelect = `SELECT c.id, c.code, c.name, c.credits, c.capacity, c.enrolled_count, c.status, c.semester_id,
s.number AS semester_number, c.prerequisites, c.created_at, c.updated_at
FROM courses c
JOIN semesters s ON s.id = c.semester_id`

// CourseRepository reads courses and maintains their seat counter.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

func (r *CourseRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns a course with its semester number.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	var course models.Course
	if err := r.db.GetContext(ctx, &course, courseSelect+` WHERE c.id = $1`, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindByIDForUpdate loads the course row locked for the rest of the transaction.
func (r *CourseRepository) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Course, error) {
	var course models.Course
	if err := sqlx.GetContext(ctx, r.exec(exec), &course, courseSelect+` WHERE c.id = $1 FOR UPDATE OF c`, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// IncrementEnrolledIfAvailable takes one seat. It reports false when the course
// was already full at write time.
func (r *CourseRepository) IncrementEnrolledIfAvailable(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error) {
	const query = `UPDATE courses SET enrolled_count = enrolled_count + 1, updated_at = $2 WHERE id = $1 AND enrolled_count < capacity`
	res, err := r.exec(exec).ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("increment course enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("increment course enrollment rows: %w", err)
	}
	return affected == 1, nil
}

// DecrementEnrolled releases one seat, never going below zero.
func (r *CourseRepository) DecrementEnrolled(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `UPDATE courses SET enrolled_count = enrolled_count - 1, updated_at = $2 WHERE id = $1 AND enrolled_count > 0`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("decrement course enrollment: %w", err)
	}
	return nil
}
