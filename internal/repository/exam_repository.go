package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/univ-academic-api/internal/models"
)

const examColumns = `id, course_id, semester_number, exam_type, date, start_time, end_time, room, status, created_at, updated_at`

// ExamRepository persists exam room bookings.
type ExamRepository struct {
	db *sqlx.DB
}

// NewExamRepository constructs the repository.
func NewExamRepository(db *sqlx.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

func (r *ExamRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns exams matching the filter with the total count.
func (r *ExamRepository) List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, int, error) {
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.SemesterNumber > 0 {
		conditions = append(conditions, fmt.Sprintf("semester_number = $%d", len(args)+1))
		args = append(args, filter.SemesterNumber)
	}
	if filter.Room != "" {
		conditions = append(conditions, fmt.Sprintf("UPPER(TRIM(room)) = UPPER(TRIM($%d))", len(args)+1))
		args = append(args, filter.Room)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	base := "FROM exams"
	if len(conditions) > 0 {
		base += " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY date ASC, start_time ASC LIMIT %d OFFSET %d", examColumns, base, size, offset)
	var exams []models.Exam
	if err := r.db.SelectContext(ctx, &exams, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list exams: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count exams: %w", err)
	}
	return exams, total, nil
}

// FindByID loads an exam by identifier.
func (r *ExamRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Exam, error) {
	var exam models.Exam
	if err := sqlx.GetContext(ctx, r.exec(exec), &exam, `SELECT `+examColumns+` FROM exams WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &exam, nil
}

// ListByRoomAndDate returns the bookings of a room on a calendar day.
func (r *ExamRepository) ListByRoomAndDate(ctx context.Context, exec sqlx.ExtContext, room string, date time.Time) ([]models.Exam, error) {
	const query = `SELECT ` + examColumns + ` FROM exams WHERE UPPER(TRIM(room)) = UPPER(TRIM($1)) AND date = $2 ORDER BY start_time`
	var exams []models.Exam
	if err := sqlx.SelectContext(ctx, r.exec(exec), &exams, query, room, date.Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("list room exams: %w", err)
	}
	return exams, nil
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, exec sqlx.ExtContext, exam *models.Exam) error {
	if exam.ID == "" {
		exam.ID = uuid.NewString()
	}
	if exam.Status == "" {
		exam.Status = models.ExamStatusScheduled
	}
	now := time.Now().UTC()
	exam.CreatedAt = now
	exam.UpdatedAt = now

	const query = `INSERT INTO exams (id, course_id, semester_number, exam_type, date, start_time, end_time, room, status, created_at, updated_at)
VALUES (:id, :course_id, :semester_number, :exam_type, :date, :start_time, :end_time, :room, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, exam); err != nil {
		return fmt.Errorf("create exam: %w", err)
	}
	return nil
}

// Update modifies an existing exam.
func (r *ExamRepository) Update(ctx context.Context, exec sqlx.ExtContext, exam *models.Exam) error {
	exam.UpdatedAt = time.Now().UTC()
	const query = `UPDATE exams SET course_id = :course_id, semester_number = :semester_number, exam_type = :exam_type, date = :date,
start_time = :start_time, end_time = :end_time, room = :room, status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, exam); err != nil {
		return fmt.Errorf("update exam: %w", err)
	}
	return nil
}

// Delete removes an exam.
func (r *ExamRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM exams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete exam: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete exam rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
