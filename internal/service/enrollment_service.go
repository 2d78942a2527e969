package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/univ-academic-api/internal/academic"
	"github.com/noah-isme/univ-academic-api/internal/models"
	"github.com/noah-isme/univ-academic-api/internal/repository"
	appErrors "github.com/noah-isme/univ-academic-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type enrollmentRepository interface {
	ListByStudent(ctx context.Context, exec sqlx.ExtContext, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error)
	FindByStudentAndCourse(ctx context.Context, exec sqlx.ExtContext, studentID, courseID string) (*models.Enrollment, error)
	Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error
	UpdateState(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error
	AppendEvent(ctx context.Context, exec sqlx.ExtContext, event *models.EnrollmentEvent) error
	ListEvents(ctx context.Context, enrollmentID string) ([]models.EnrollmentEvent, error)
}

type courseRepository interface {
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Course, error)
	IncrementEnrolledIfAvailable(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error)
	DecrementEnrolled(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type notifier interface {
	Notify(ctx context.Context, req NotificationRequest)
}

// EnrollRequest identifies the (student, course) pair of an enroll or drop.
type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	CourseID  string `json:"course_id" validate:"required"`
}

// EnrollmentService runs enrollment transitions inside one transaction per call.
// Checks for a student are serialised by an advisory lock, the course row is
// locked and the seat is taken with a conditional update.
type EnrollmentService struct {
	tx          txProvider
	enrollments enrollmentRepository
	courses     courseRepository
	policy      *academic.Policy
	notifier    notifier
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewEnrollmentService constructs the service.
func NewEnrollmentService(tx txProvider, enrollments enrollmentRepository, courses courseRepository, policy *academic.Policy, notifier notifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if policy == nil {
		policy = academic.NewPolicy(academic.Limits{})
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		tx:          tx,
		enrollments: enrollments,
		courses:     courses,
		policy:      policy,
		notifier:    notifier,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// Enroll registers the student for the course, reusing a dropped row when present.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (result *models.Enrollment, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
		s.record("enroll", err)
	}()

	course, err := s.lockCourse(ctx, tx, req.StudentID, req.CourseID)
	if err != nil {
		return nil, err
	}

	enrollments, err := s.enrollments.ListByStudent(ctx, tx, models.EnrollmentFilter{StudentID: req.StudentID})
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student enrollments")
		return nil, err
	}

	decision, err := s.policy.TryEnroll(academic.EnrollInput{
		StudentID:   req.StudentID,
		Course:      *course,
		Enrollments: enrollments,
		Now:         s.now(),
	})
	if err != nil {
		return nil, err
	}

	taken, err := s.courses.IncrementEnrolledIfAvailable(ctx, tx, course.ID)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve seat")
		return nil, err
	}
	if !taken {
		err = academic.CourseFullError()
		return nil, err
	}

	enrollment := decision.Enrollment
	if decision.Reenrollment {
		err = s.enrollments.UpdateState(ctx, tx, &enrollment)
	} else {
		err = s.enrollments.Create(ctx, tx, &enrollment)
	}
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEnrollment) {
			err = academic.AlreadyEnrolledError()
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save enrollment")
		return nil, err
	}

	event := decision.Event
	event.EnrollmentID = enrollment.ID
	if err = s.enrollments.AppendEvent(ctx, tx, &event); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record enrollment history")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit enrollment")
		return nil, err
	}

	title := "Enrollment confirmed"
	if decision.Reenrollment {
		title = "Re-enrollment confirmed"
	}
	s.notify(ctx, req.StudentID, title, fmt.Sprintf("You are enrolled in %s %s.", course.Code, course.Name), course, enrollment.ID)
	return &enrollment, nil
}

// Drop withdraws the student from the course inside the drop window.
func (s *EnrollmentService) Drop(ctx context.Context, req EnrollRequest) (result *models.Enrollment, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid drop payload")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
		s.record("drop", err)
	}()

	course, err := s.lockCourse(ctx, tx, req.StudentID, req.CourseID)
	if err != nil {
		return nil, err
	}

	current, err := s.enrollments.FindByStudentAndCourse(ctx, tx, req.StudentID, req.CourseID)
	if err != nil {
		if err != sql.ErrNoRows {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
			return nil, err
		}
		current = nil
	}

	decision, err := s.policy.TryDrop(academic.DropInput{Course: *course, Enrollment: current, Now: s.now()})
	if err != nil {
		return nil, err
	}

	enrollment := decision.Enrollment
	if err = s.enrollments.UpdateState(ctx, tx, &enrollment); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save enrollment")
		return nil, err
	}
	if err = s.courses.DecrementEnrolled(ctx, tx, course.ID); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release seat")
		return nil, err
	}
	event := decision.Event
	if err = s.enrollments.AppendEvent(ctx, tx, &event); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record enrollment history")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit drop")
		return nil, err
	}

	s.notify(ctx, req.StudentID, "Course dropped", fmt.Sprintf("You have dropped %s %s.", course.Code, course.Name), course, enrollment.ID)
	return &enrollment, nil
}

// Complete marks an enrollment as completed. The seat stays counted.
func (s *EnrollmentService) Complete(ctx context.Context, enrollmentID string) (result *models.Enrollment, err error) {
	if enrollmentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "enrollment id is required")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
		s.record("complete", err)
	}()

	current, err := s.enrollments.FindByID(ctx, tx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			err = appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
		return nil, err
	}

	course, err := s.lockCourse(ctx, tx, current.StudentID, current.CourseID)
	if err != nil {
		return nil, err
	}

	decision, err := s.policy.TryComplete(*course, current, s.now())
	if err != nil {
		return nil, err
	}

	enrollment := decision.Enrollment
	if err = s.enrollments.UpdateState(ctx, tx, &enrollment); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save enrollment")
		return nil, err
	}
	event := decision.Event
	if err = s.enrollments.AppendEvent(ctx, tx, &event); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record enrollment history")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit completion")
		return nil, err
	}

	s.notify(ctx, enrollment.StudentID, "Course completed", fmt.Sprintf("%s %s is now marked completed.", course.Code, course.Name), course, enrollment.ID)
	return &enrollment, nil
}

// ListByStudent returns a student's enrollments with course details.
func (s *EnrollmentService) ListByStudent(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error) {
	if filter.StudentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}
	enrollments, err := s.enrollments.ListByStudent(ctx, nil, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	if enrollments == nil {
		enrollments = []models.EnrollmentDetail{}
	}
	return enrollments, nil
}

// Get returns an enrollment by ID.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, nil, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// History returns the lifecycle events of an enrollment, oldest first.
func (s *EnrollmentService) History(ctx context.Context, id string) ([]models.EnrollmentEvent, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	events, err := s.enrollments.ListEvents(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment history")
	}
	if events == nil {
		events = []models.EnrollmentEvent{}
	}
	return events, nil
}

func (s *EnrollmentService) lockCourse(ctx context.Context, tx *sqlx.Tx, studentID, courseID string) (*models.Course, error) {
	if err := repository.AdvisoryXactLock(ctx, tx, repository.StudentLockKey(studentID)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock student enrollments")
	}
	course, err := s.courses.FindByIDForUpdate(ctx, tx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

func (s *EnrollmentService) record(operation string, err error) {
	if err == nil {
		s.metrics.RecordEnrollment(operation, true)
		return
	}
	if _, ok := academic.ReasonOf(err); ok {
		s.metrics.RecordEnrollment(operation, false)
		s.logger.Info("enrollment rejected", zap.String("operation", operation), zap.Error(err))
		return
	}
	if appErr := appErrors.FromError(err); appErr.Status >= 500 {
		s.logger.Error("enrollment failed", zap.String("operation", operation), zap.Error(err))
	}
}

func (s *EnrollmentService) notify(ctx context.Context, studentID, title, message string, course *models.Course, enrollmentID string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, NotificationRequest{
		UserID:    studentID,
		Title:     title,
		Message:   message,
		Category:  models.NotificationCategoryEnrollment,
		Priority:  models.NotificationPriorityNormal,
		ActionURL: "/enrollments/" + enrollmentID,
		Data: map[string]interface{}{
			"course_id":     course.ID,
			"course_code":   course.Code,
			"enrollment_id": enrollmentID,
		},
	})
}
