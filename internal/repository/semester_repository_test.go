package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSemesterRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSemesterRepositoryFindCurrent(t *testing.T) {
	db, mock, cleanup := newSemesterRepoMock(t)
	defer cleanup()
	repo := NewSemesterRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM semesters WHERE is_current = TRUE LIMIT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "number", "year", "start_date", "end_date", "is_current", "created_at", "updated_at"}).
			AddRow("sem-6", 6, 2026, now, now.AddDate(0, 4, 0), true, now, now))

	semester, err := repo.FindCurrent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, semester.Number)
	assert.True(t, semester.IsCurrent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSemesterRepositorySetCurrent(t *testing.T) {
	db, mock, cleanup := newSemesterRepoMock(t)
	defer cleanup()
	repo := NewSemesterRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs(CurrentSemesterLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE semesters SET is_current = FALSE, updated_at = $1 WHERE is_current = TRUE AND id <> $2")).
		WithArgs(sqlmock.AnyArg(), "sem-7").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE semesters SET is_current = TRUE, updated_at = $2 WHERE id = $1")).
		WithArgs("sem-7", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SetCurrent(context.Background(), "sem-7"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSemesterRepositorySetCurrentUnknownRollsBack(t *testing.T) {
	db, mock, cleanup := newSemesterRepoMock(t)
	defer cleanup()
	repo := NewSemesterRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs(CurrentSemesterLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE semesters SET is_current = FALSE")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE semesters SET is_current = TRUE")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.SetCurrent(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSemesterRepositorySetCurrentLockFailureRollsBack(t *testing.T) {
	db, mock, cleanup := newSemesterRepoMock(t)
	defer cleanup()
	repo := NewSemesterRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs(CurrentSemesterLockKey).
		WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	err := repo.SetCurrent(context.Background(), "sem-7")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
