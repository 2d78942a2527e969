package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/univ-academic-api/internal/models"
)

const semesterColumns = `id, number, year, start_date, end_date, is_current, created_at, updated_at`

// SemesterRepository handles persistence for academic semesters.
type SemesterRepository struct {
	db *sqlx.DB
}

// NewSemesterRepository instantiates a semester repository.
func NewSemesterRepository(db *sqlx.DB) *SemesterRepository {
	return &SemesterRepository{db: db}
}

// FindByID loads a semester by identifier.
func (r *SemesterRepository) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, `SELECT `+semesterColumns+` FROM semesters WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &semester, nil
}

// FindCurrent returns the semester flagged current.
func (r *SemesterRepository) FindCurrent(ctx context.Context) (*models.Semester, error) {
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, `SELECT `+semesterColumns+` FROM semesters WHERE is_current = TRUE LIMIT 1`); err != nil {
		return nil, err
	}
	return &semester, nil
}

// SetCurrent flags one semester current and clears the flag everywhere else in
// a single transaction serialised by an advisory lock. It returns sql.ErrNoRows when the semester is unknown.
func (r *SemesterRepository) SetCurrent(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set current tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Concurrent callers would each miss the other's uncommitted flag.
	if err = AdvisoryXactLock(ctx, tx, CurrentSemesterLockKey); err != nil {
		return err
	}

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx, `UPDATE semesters SET is_current = FALSE, updated_at = $1 WHERE is_current = TRUE AND id <> $2`, now, id); err != nil {
		return fmt.Errorf("clear current semesters: %w", err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE semesters SET is_current = TRUE, updated_at = $2 WHERE id = $1`, id, now)
	if err != nil {
		return fmt.Errorf("set current semester: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set current semester rows: %w", err)
	}
	if affected == 0 {
		err = sql.ErrNoRows
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit set current tx: %w", err)
	}
	return nil
}
