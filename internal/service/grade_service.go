package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/univ-academic-api/internal/academic"
	"github.com/noah-isme/univ-academic-api/internal/models"
	"github.com/noah-isme/univ-academic-api/internal/repository"
	appErrors "github.com/noah-isme/univ-academic-api/pkg/errors"
)

const (
	gpaCachePrefix          = "gpa:"
	publishedGPACachePrefix = "gpa:published:"
)

type gradeRepository interface {
	FindByID(ctx context.Context, id string) (*models.Grade, error)
	FindByTripleForUpdate(ctx context.Context, exec sqlx.ExtContext, studentID, courseID, semesterID string) (*models.Grade, error)
	Upsert(ctx context.Context, exec sqlx.ExtContext, grade *models.Grade) error
	TransitionStatus(ctx context.Context, id string, from, to models.GradeStatus) (bool, error)
	Delete(ctx context.Context, id string) error
	ListCourseGradesByStudent(ctx context.Context, studentID string) ([]models.CourseGrade, error)
}

type gradeCache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
	Invalidate(ctx context.Context, keys ...string)
}

// GradeComponentInput is one component of a grade payload.
type GradeComponentInput struct {
	Name     string   `json:"name" validate:"required,oneof=midterm final practical quiz assignment project attendance"`
	Weight   float64  `json:"weight" validate:"gte=0,lte=100"`
	Score    *float64 `json:"score" validate:"omitempty,gte=0"`
	MaxScore float64  `json:"max_score" validate:"gt=0"`
}

// RecordGradeRequest creates a grade or merges components into an existing one.
type RecordGradeRequest struct {
	StudentID  string                `json:"student_id" validate:"required"`
	CourseID   string                `json:"course_id" validate:"required"`
	SemesterID string                `json:"semester_id" validate:"required"`
	Components []GradeComponentInput `json:"components" validate:"required,min=1,dive"`
	GradedBy   string                `json:"-"`
}

// GradeService records component scores and derives grades and GPAs. Writes to
// one (student, course, semester) triple run in a transaction holding an
// advisory lock and the row lock.
type GradeService struct {
	tx        txProvider
	repo      gradeRepository
	cache     gradeCache
	notifier  notifier
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewGradeService constructs the service. cache and notifier may be nil.
func NewGradeService(tx txProvider, repo gradeRepository, cache gradeCache, notifier notifier, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{tx: tx, repo: repo, cache: cache, notifier: notifier, validator: validate, logger: logger, now: time.Now}
}

// Record creates the grade for (student, course, semester) or merges the given
// components into the stored ones by name, then recomputes the derived fields.
func (s *GradeService) Record(ctx context.Context, req RecordGradeRequest) (result *models.Grade, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	for _, c := range req.Components {
		if c.Score != nil && *c.Score > c.MaxScore {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("score of %s exceeds max_score %.2f", c.Name, c.MaxScore))
		}
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// The row lock alone does not cover two first writes of the same triple.
	if err = repository.AdvisoryXactLock(ctx, tx, repository.GradeLockKey(req.StudentID, req.CourseID, req.SemesterID)); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock grade")
		return nil, err
	}

	grade, err := s.repo.FindByTripleForUpdate(ctx, tx, req.StudentID, req.CourseID, req.SemesterID)
	if err != nil {
		if err != sql.ErrNoRows {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
			return nil, err
		}
		grade = &models.Grade{StudentID: req.StudentID, CourseID: req.CourseID, SemesterID: req.SemesterID}
	}
	if grade.Status == models.GradeStatusPublished {
		err = publishedGradeError()
		return nil, err
	}

	existing, err := grade.ComponentList()
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode stored components")
		return nil, err
	}
	components := mergeComponents(existing, req.Components)
	if total := academic.TotalWeight(components); total > 100 {
		err = appErrors.Clone(appErrors.ErrInvalidWeights, fmt.Sprintf("component weights sum to %.2f, must not exceed 100", total))
		return nil, err
	}

	raw, err := json.Marshal(components)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode components")
		return nil, err
	}
	aggregate := academic.AggregateScore(components)
	now := s.now().UTC()

	grade.Components = types.JSONText(raw)
	grade.TotalScore = aggregate.TotalScore
	grade.LetterGrade = aggregate.LetterGrade
	grade.GradePoint = aggregate.GradePoint
	grade.Status = models.GradeStatusIncomplete
	if aggregate.Complete {
		grade.Status = models.GradeStatusGraded
	}
	if req.GradedBy != "" {
		gradedBy := req.GradedBy
		grade.GradedBy = &gradedBy
	}
	grade.GradedAt = &now

	if err = s.repo.Upsert(ctx, tx, grade); err != nil {
		if errors.Is(err, repository.ErrGradePublished) {
			err = publishedGradeError()
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save grade")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit grade")
		return nil, err
	}
	s.invalidateGPA(ctx, grade.StudentID)
	return grade, nil
}

// Get returns a grade by ID.
func (s *GradeService) Get(ctx context.Context, id string) (*models.Grade, error) {
	grade, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	return grade, nil
}

// Delete removes a grade.
func (s *GradeService) Delete(ctx context.Context, id string) error {
	grade, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete grade")
	}
	s.invalidateGPA(ctx, grade.StudentID)
	return nil
}

// Publish releases a fully graded record to the student.
func (s *GradeService) Publish(ctx context.Context, id string) (*models.Grade, error) {
	grade, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if grade.Status != models.GradeStatusGraded {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("only graded records can be published (status: %s)", grade.Status))
	}
	moved, err := s.repo.TransitionStatus(ctx, id, models.GradeStatusGraded, models.GradeStatusPublished)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish grade")
	}
	if !moved {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "grade changed before it could be published")
	}
	grade.Status = models.GradeStatusPublished
	s.invalidateGPA(ctx, grade.StudentID)

	if s.notifier != nil {
		s.notifier.Notify(ctx, NotificationRequest{
			UserID:    grade.StudentID,
			Title:     "Grade published",
			Message:   fmt.Sprintf("Your grade is available: %s (%.2f).", grade.LetterGrade, grade.TotalScore),
			Category:  models.NotificationCategoryGrade,
			Priority:  models.NotificationPriorityHigh,
			ActionURL: "/grades/" + grade.ID,
			Data: map[string]interface{}{
				"grade_id":  grade.ID,
				"course_id": grade.CourseID,
			},
		})
	}
	return grade, nil
}

// GPA returns the SGPA breakdown and CGPA of a student. With publishedOnly set
// only grades released to the student count. The boolean reports a cache hit.
func (s *GradeService) GPA(ctx context.Context, studentID string, publishedOnly bool) (*models.GPASummary, bool, error) {
	if studentID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	key := gpaCachePrefix + studentID
	if publishedOnly {
		key = publishedGPACachePrefix + studentID
	}
	if s.cache != nil {
		var cached models.GPASummary
		if s.cache.Get(ctx, key, &cached) {
			return &cached, true, nil
		}
	}

	grades, err := s.repo.ListCourseGradesByStudent(ctx, studentID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student grades")
	}
	if publishedOnly {
		grades = publishedOnlyGrades(grades)
	}
	summary := academic.Summarize(studentID, grades)
	if s.cache != nil {
		s.cache.Set(ctx, key, summary, 0)
	}
	return &summary, false, nil
}

func (s *GradeService) invalidateGPA(ctx context.Context, studentID string) {
	if s.cache == nil || studentID == "" {
		return
	}
	s.cache.Invalidate(ctx, gpaCachePrefix+studentID, publishedGPACachePrefix+studentID)
}

func publishedOnlyGrades(grades []models.CourseGrade) []models.CourseGrade {
	out := make([]models.CourseGrade, 0, len(grades))
	for _, g := range grades {
		if g.Status == models.GradeStatusPublished {
			out = append(out, g)
		}
	}
	return out
}

func publishedGradeError() error {
	return appErrors.Clone(appErrors.ErrInvalidState, "published grades cannot be modified")
}

// mergeComponents replaces stored components by name and appends new names in
// request order.
func mergeComponents(existing []models.GradeComponent, updates []GradeComponentInput) []models.GradeComponent {
	merged := make([]models.GradeComponent, len(existing))
	copy(merged, existing)
	index := make(map[models.ComponentName]int, len(merged))
	for i, c := range merged {
		index[c.Name] = i
	}
	for _, u := range updates {
		component := models.GradeComponent{
			Name:     models.ComponentName(u.Name),
			Weight:   u.Weight,
			Score:    u.Score,
			MaxScore: u.MaxScore,
		}
		if i, ok := index[component.Name]; ok {
			merged[i] = component
			continue
		}
		index[component.Name] = len(merged)
		merged = append(merged, component)
	}
	return merged
}
