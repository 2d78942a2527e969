package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/univ-academic-api/internal/models"
	"github.com/noah-isme/univ-academic-api/internal/repository"
	appErrors "github.com/noah-isme/univ-academic-api/pkg/errors"
)

type gradeRepoStub struct {
	grades       map[string]models.Grade
	courseGrades []models.CourseGrade
	listCalls    int

	// publishBeforeWrite marks the stored row published between the read and the upsert.
	publishBeforeWrite bool
}

func (m *gradeRepoStub) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	if g, ok := m.grades[id]; ok {
		return &g, nil
	}
	return nil, sql.ErrNoRows
}

func (m *gradeRepoStub) FindByTripleForUpdate(ctx context.Context, exec sqlx.ExtContext, studentID, courseID, semesterID string) (*models.Grade, error) {
	for _, g := range m.grades {
		if g.StudentID == studentID && g.CourseID == courseID && g.SemesterID == semesterID {
			grade := g
			return &grade, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *gradeRepoStub) Upsert(ctx context.Context, exec sqlx.ExtContext, grade *models.Grade) error {
	if m.publishBeforeWrite {
		return repository.ErrGradePublished
	}
	if m.grades == nil {
		m.grades = make(map[string]models.Grade)
	}
	if grade.ID == "" {
		grade.ID = "grade-new"
	}
	m.grades[grade.ID] = *grade
	return nil
}

func (m *gradeRepoStub) TransitionStatus(ctx context.Context, id string, from, to models.GradeStatus) (bool, error) {
	g, ok := m.grades[id]
	if !ok || g.Status != from {
		return false, nil
	}
	g.Status = to
	m.grades[id] = g
	return true, nil
}

func (m *gradeRepoStub) Delete(ctx context.Context, id string) error {
	delete(m.grades, id)
	return nil
}

func (m *gradeRepoStub) ListCourseGradesByStudent(ctx context.Context, studentID string) ([]models.CourseGrade, error) {
	m.listCalls++
	return m.courseGrades, nil
}

type gradeCacheStub struct {
	entries     map[string][]byte
	invalidated []string
}

func (c *gradeCacheStub) Get(ctx context.Context, key string, dest interface{}) bool {
	raw, ok := c.entries[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

func (c *gradeCacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if c.entries == nil {
		c.entries = make(map[string][]byte)
	}
	raw, _ := json.Marshal(value)
	c.entries[key] = raw
}

func (c *gradeCacheStub) Invalidate(ctx context.Context, keys ...string) {
	for _, key := range keys {
		delete(c.entries, key)
		c.invalidated = append(c.invalidated, key)
	}
}

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }

type gradeFixture struct {
	svc    *GradeService
	mock   sqlmock.Sqlmock
	repo   *gradeRepoStub
	cache  *gradeCacheStub
	notify *notifierStub
}

func newGradeFixture(t *testing.T) *gradeFixture {
	tx, mock := newTxProviderMock(t)
	f := &gradeFixture{mock: mock, repo: &gradeRepoStub{}, cache: &gradeCacheStub{}, notify: &notifierStub{}}
	f.svc = NewGradeService(tx, f.repo, f.cache, f.notify, nil, nil)
	f.svc.now = func() time.Time { return time.Date(2024, 12, 1, 8, 0, 0, 0, time.UTC) }
	return f
}

// expectWrite expects one Record transaction on the default triple.
func (f *gradeFixture) expectWrite(commit bool) {
	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs(repository.GradeLockKey("stu-1", "course-1", "sem-1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if commit {
		f.mock.ExpectCommit()
		return
	}
	f.mock.ExpectRollback()
}

func gradeRequest(components ...GradeComponentInput) RecordGradeRequest {
	return RecordGradeRequest{
		StudentID:  "stu-1",
		CourseID:   "course-1",
		SemesterID: "sem-1",
		Components: components,
		GradedBy:   "lecturer-1",
	}
}

func TestGradeServiceRecordPartialThenComplete(t *testing.T) {
	f := newGradeFixture(t)
	ctx := context.Background()

	f.expectWrite(true)
	grade, err := f.svc.Record(ctx, gradeRequest(
		GradeComponentInput{Name: "midterm", Weight: 30, Score: floatPtr(80), MaxScore: 100},
		GradeComponentInput{Name: "final", Weight: 70, MaxScore: 100},
	))
	require.NoError(t, err)
	assert.Equal(t, models.GradeStatusIncomplete, grade.Status)
	assert.Equal(t, 24.0, grade.TotalScore)
	assert.Equal(t, "F", grade.LetterGrade)
	require.NotNil(t, grade.GradedBy)
	assert.Equal(t, "lecturer-1", *grade.GradedBy)
	require.NotNil(t, grade.GradedAt)
	assert.Equal(t, []string{"gpa:stu-1", "gpa:published:stu-1"}, f.cache.invalidated)

	f.expectWrite(true)
	grade, err = f.svc.Record(ctx, gradeRequest(
		GradeComponentInput{Name: "final", Weight: 70, Score: floatPtr(90), MaxScore: 100},
	))
	require.NoError(t, err)
	assert.Equal(t, "grade-new", grade.ID)
	assert.Equal(t, models.GradeStatusGraded, grade.Status)
	assert.Equal(t, 87.0, grade.TotalScore)
	assert.Equal(t, "A", grade.LetterGrade)
	assert.Equal(t, 9.0, grade.GradePoint)

	components, err := f.repo.grades["grade-new"].ComponentList()
	require.NoError(t, err)
	require.Len(t, components, 2)
	assert.Equal(t, models.ComponentMidterm, components[0].Name)
	assert.Equal(t, 80.0, *components[0].Score)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGradeServiceRecordRejectsInvalidPayloads(t *testing.T) {
	tests := []struct {
		name       string
		components []GradeComponentInput
		inTx       bool
		want       *appErrors.Error
	}{
		{
			name:       "unknown component",
			components: []GradeComponentInput{{Name: "homework", Weight: 10, MaxScore: 10}},
			want:       appErrors.ErrValidation,
		},
		{
			name:       "zero max score",
			components: []GradeComponentInput{{Name: "quiz", Weight: 10, MaxScore: 0}},
			want:       appErrors.ErrValidation,
		},
		{
			name:       "weight above 100",
			components: []GradeComponentInput{{Name: "quiz", Weight: 120, MaxScore: 10}},
			want:       appErrors.ErrValidation,
		},
		{
			name:       "score above max",
			components: []GradeComponentInput{{Name: "quiz", Weight: 10, Score: floatPtr(11), MaxScore: 10}},
			want:       appErrors.ErrValidation,
		},
		{
			name: "weights sum above 100",
			components: []GradeComponentInput{
				{Name: "midterm", Weight: 60, MaxScore: 100},
				{Name: "final", Weight: 50, MaxScore: 100},
			},
			inTx: true,
			want: appErrors.ErrInvalidWeights,
		},
		{
			name:       "no components",
			components: nil,
			want:       appErrors.ErrValidation,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newGradeFixture(t)
			if tc.inTx {
				f.expectWrite(false)
			}
			_, err := f.svc.Record(context.Background(), gradeRequest(tc.components...))
			require.Error(t, err)
			assert.True(t, appErrors.Is(err, tc.want), "got %v", err)
			assert.Empty(t, f.repo.grades)
			assert.NoError(t, f.mock.ExpectationsWereMet())
		})
	}
}

func TestGradeServiceRecordPublishedIsReadOnly(t *testing.T) {
	f := newGradeFixture(t)
	f.repo.grades = map[string]models.Grade{
		"g1": {ID: "g1", StudentID: "stu-1", CourseID: "course-1", SemesterID: "sem-1", Status: models.GradeStatusPublished},
	}
	f.expectWrite(false)

	_, err := f.svc.Record(context.Background(), gradeRequest(GradeComponentInput{Name: "quiz", Weight: 10, MaxScore: 10}))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGradeServiceRecordRejectsGradePublishedDuringWrite(t *testing.T) {
	f := newGradeFixture(t)
	f.repo.grades = map[string]models.Grade{
		"g1": {ID: "g1", StudentID: "stu-1", CourseID: "course-1", SemesterID: "sem-1", Status: models.GradeStatusGraded},
	}
	f.repo.publishBeforeWrite = true
	f.expectWrite(false)

	_, err := f.svc.Record(context.Background(), gradeRequest(GradeComponentInput{Name: "quiz", Weight: 10, Score: floatPtr(5), MaxScore: 10}))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState), "got %v", err)
	assert.Equal(t, models.GradeStatusGraded, f.repo.grades["g1"].Status)
	assert.Empty(t, f.cache.invalidated)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGradeServiceRecordLockFailureRollsBack(t *testing.T) {
	f := newGradeFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WillReturnError(sql.ErrConnDone)
	f.mock.ExpectRollback()

	_, err := f.svc.Record(context.Background(), gradeRequest(GradeComponentInput{Name: "quiz", Weight: 10, MaxScore: 10}))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
	assert.Empty(t, f.repo.grades)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGradeServicePublish(t *testing.T) {
	f := newGradeFixture(t)
	f.repo.grades = map[string]models.Grade{
		"g1": {ID: "g1", StudentID: "stu-1", Status: models.GradeStatusGraded, LetterGrade: "A", TotalScore: 87},
		"g2": {ID: "g2", StudentID: "stu-1", Status: models.GradeStatusIncomplete},
	}

	grade, err := f.svc.Publish(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, models.GradeStatusPublished, grade.Status)
	assert.Equal(t, models.GradeStatusPublished, f.repo.grades["g1"].Status)
	assert.Contains(t, f.cache.invalidated, "gpa:stu-1")
	assert.Contains(t, f.cache.invalidated, "gpa:published:stu-1")
	require.Len(t, f.notify.requests, 1)
	assert.Equal(t, models.NotificationCategoryGrade, f.notify.requests[0].Category)
	assert.Equal(t, models.NotificationPriorityHigh, f.notify.requests[0].Priority)

	_, err = f.svc.Publish(context.Background(), "g2")
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))

	_, err = f.svc.Publish(context.Background(), "missing")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

// staleGradeRepo serves a graded snapshot while the stored row has moved on.
type staleGradeRepo struct {
	*gradeRepoStub
	snapshot models.Grade
}

func (r *staleGradeRepo) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	g := r.snapshot
	return &g, nil
}

func TestGradeServicePublishRejectsGradeChangedAfterRead(t *testing.T) {
	f := newGradeFixture(t)
	stored := &gradeRepoStub{grades: map[string]models.Grade{
		"g1": {ID: "g1", StudentID: "stu-1", Status: models.GradeStatusIncomplete},
	}}
	repo := &staleGradeRepo{gradeRepoStub: stored, snapshot: models.Grade{ID: "g1", StudentID: "stu-1", Status: models.GradeStatusGraded}}
	f.svc.repo = repo

	_, err := f.svc.Publish(context.Background(), "g1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
	assert.Equal(t, models.GradeStatusIncomplete, stored.grades["g1"].Status)
	assert.Empty(t, f.notify.requests)
}

func TestGradeServiceGPAUsesCache(t *testing.T) {
	f := newGradeFixture(t)
	f.repo.courseGrades = []models.CourseGrade{
		{GradeID: "g1", SemesterID: "sem-1", Credits: intPtr(4), GradePoint: 9, Status: models.GradeStatusGraded},
		{GradeID: "g2", SemesterID: "sem-1", Credits: intPtr(3), GradePoint: 6, Status: models.GradeStatusPublished},
		{GradeID: "g3", SemesterID: "sem-1", Credits: intPtr(3), GradePoint: 0, Status: models.GradeStatusIncomplete},
	}

	summary, hit, err := f.svc.GPA(context.Background(), "stu-1", false)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 7.71, summary.CGPA)
	assert.Equal(t, 7, summary.TotalCredits)

	summary, hit, err = f.svc.GPA(context.Background(), "stu-1", false)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 7.71, summary.CGPA)
	assert.Equal(t, 1, f.repo.listCalls)
}

func TestGradeServiceGPAPublishedOnlyIgnoresUnreleasedGrades(t *testing.T) {
	f := newGradeFixture(t)
	f.repo.courseGrades = []models.CourseGrade{
		{GradeID: "g1", SemesterID: "sem-1", Credits: intPtr(4), GradePoint: 9, Status: models.GradeStatusGraded},
		{GradeID: "g2", SemesterID: "sem-1", Credits: intPtr(3), GradePoint: 6, Status: models.GradeStatusPublished},
	}

	published, hit, err := f.svc.GPA(context.Background(), "stu-1", true)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 6.0, published.CGPA)
	assert.Equal(t, 3, published.TotalCredits)

	full, hit, err := f.svc.GPA(context.Background(), "stu-1", false)
	require.NoError(t, err)
	assert.False(t, hit, "views are cached under separate keys")
	assert.Equal(t, 7.71, full.CGPA)

	published, hit, err = f.svc.GPA(context.Background(), "stu-1", true)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 6.0, published.CGPA)
	assert.Equal(t, 2, f.repo.listCalls)
}

func TestGradeServiceDelete(t *testing.T) {
	f := newGradeFixture(t)
	f.repo.grades = map[string]models.Grade{"g1": {ID: "g1", StudentID: "stu-1"}}

	require.NoError(t, f.svc.Delete(context.Background(), "g1"))
	assert.Empty(t, f.repo.grades)
	assert.Equal(t, []string{"gpa:stu-1", "gpa:published:stu-1"}, f.cache.invalidated)

	err := f.svc.Delete(context.Background(), "g1")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
