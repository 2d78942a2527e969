package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// AdvisoryXactLock takes a transaction scoped Postgres advisory lock keyed by the
// hash of key. It blocks until the lock is granted and is released on commit or
// rollback.
func AdvisoryXactLock(ctx context.Context, exec sqlx.ExecerContext, key string) error {
	if _, err := exec.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("acquire advisory lock %s: %w", key, err)
	}
	return nil
}

// CurrentSemesterLockKey serialises changes to the current semester flag.
const CurrentSemesterLockKey = "semester:current"

// StudentLockKey scopes enrollment checks to one student.
func StudentLockKey(studentID string) string {
	return "enrollment:student:" + studentID
}

// RoomDateLockKey scopes exam scheduling to one room on one day.
func RoomDateLockKey(room, date string) string {
	return "exam:room:" + room + ":" + date
}

// GradeLockKey scopes grade writes to one (student, course, semester) triple.
func GradeLockKey(studentID, courseID, semesterID string) string {
	return "grade:" + studentID + ":" + courseID + ":" + semesterID
}
