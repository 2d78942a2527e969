package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/univ-academic-api/internal/academic"
	"github.com/noah-isme/univ-academic-api/internal/models"
	"github.com/noah-isme/univ-academic-api/internal/repository"
	appErrors "github.com/noah-isme/univ-academic-api/pkg/errors"
)

const examDateLayout = "2006-01-02"

type examRepository interface {
	List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, int, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Exam, error)
	ListByRoomAndDate(ctx context.Context, exec sqlx.ExtContext, room string, date time.Time) ([]models.Exam, error)
	Create(ctx context.Context, exec sqlx.ExtContext, exam *models.Exam) error
	Update(ctx context.Context, exec sqlx.ExtContext, exam *models.Exam) error
	Delete(ctx context.Context, id string) error
}

type courseLookup interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type courseRosterReader interface {
	ListStudentIDsByCourse(ctx context.Context, courseID string) ([]string, error)
}

// ExamRequest describes an exam booking.
type ExamRequest struct {
	CourseID       string `json:"course_id" validate:"required"`
	SemesterNumber int    `json:"semester_number" validate:"required,min=1,max=12"`
	ExamType       string `json:"exam_type" validate:"required"`
	Date           string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime      string `json:"start_time" validate:"required,hhmm"`
	EndTime        string `json:"end_time" validate:"required,hhmm"`
	Room           string `json:"room" validate:"required"`
	Status         string `json:"status" validate:"omitempty,oneof=scheduled ongoing completed cancelled"`
}

// ConflictCheckRequest is a dry run of the room availability check.
type ConflictCheckRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time" validate:"required,hhmm"`
	EndTime   string `json:"end_time" validate:"required,hhmm"`
	Room      string `json:"room" validate:"required"`
	ExcludeID string `json:"exclude_id"`
}

// ExamService schedules exams without double booking rooms. Writes for a
// (room, date) pair are serialised by an advisory lock and re-checked inside
// the writing transaction.
type ExamService struct {
	tx        txProvider
	repo      examRepository
	courses   courseLookup
	roster    courseRosterReader
	notifier  notifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewExamService constructs the service and registers the hhmm validation.
func NewExamService(tx txProvider, repo examRepository, courses courseLookup, roster courseRosterReader, notifier notifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ExamService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registerValidation(validate, logger, "hhmm", validateHHMM)
	return &ExamService{tx: tx, repo: repo, courses: courses, roster: roster, notifier: notifier, metrics: metrics, validator: validate, logger: logger}
}

// registerValidation adds a custom tag and logs a rejected registration.
func registerValidation(validate *validator.Validate, logger *zap.Logger, tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		logger.Error("failed to register validation", zap.String("tag", tag), zap.Error(err))
	}
}

func validateHHMM(fl validator.FieldLevel) bool {
	_, err := time.Parse("15:04", fl.Field().String())
	return err == nil
}

// List returns exams matching the filter.
func (s *ExamService) List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	exams, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list exams")
	}
	if exams == nil {
		exams = []models.Exam{}
	}
	return exams, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns an exam by ID.
func (s *ExamService) Get(ctx context.Context, id string) (*models.Exam, error) {
	exam, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	return exam, nil
}

// Create books a new exam.
func (s *ExamService) Create(ctx context.Context, req ExamRequest) (result *models.Exam, err error) {
	exam, err := s.examFromRequest(req)
	if err != nil {
		return nil, err
	}
	if err := s.ensureCourse(ctx, exam.CourseID); err != nil {
		return nil, err
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

	if err = s.ensureRoomFree(ctx, tx, exam, ""); err != nil {
		return nil, err
	}
	if err = s.repo.Create(ctx, tx, exam); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create exam")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit exam")
		return nil, err
	}

	s.notifyStudents(ctx, exam, "Exam scheduled")
	return exam, nil
}

// Update replaces the booking of an existing exam.
func (s *ExamService) Update(ctx context.Context, id string, req ExamRequest) (result *models.Exam, err error) {
	updated, err := s.examFromRequest(req)
	if err != nil {
		return nil, err
	}
	if err := s.ensureCourse(ctx, updated.CourseID); err != nil {
		return nil, err
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

	current, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			err = appErrors.Clone(appErrors.ErrNotFound, "exam not found")
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
		return nil, err
	}

	updated.ID = current.ID
	updated.CreatedAt = current.CreatedAt
	if req.Status == "" {
		updated.Status = current.Status
	}
	if err = s.ensureRoomFree(ctx, tx, updated, id); err != nil {
		return nil, err
	}
	if err = s.repo.Update(ctx, tx, updated); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update exam")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit exam")
		return nil, err
	}

	if scheduleChanged(current, updated) {
		title := "Exam rescheduled"
		if updated.Status == models.ExamStatusCancelled {
			title = "Exam cancelled"
		}
		s.notifyStudents(ctx, updated, title)
	}
	return updated, nil
}

// Delete removes an exam.
func (s *ExamService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete exam")
	}
	return nil
}

// CheckConflicts reports the exams a booking would clash with, without writing.
func (s *ExamService) CheckConflicts(ctx context.Context, req ConflictCheckRequest) ([]models.Exam, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid conflict check payload")
	}
	date, err := time.Parse(examDateLayout, req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date")
	}
	existing, err := s.repo.ListByRoomAndDate(ctx, nil, req.Room, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room bookings")
	}
	slot := academic.ExamSlot{Date: date, StartTime: req.StartTime, EndTime: req.EndTime, Room: req.Room}
	return academic.DetectExamConflicts(slot, req.ExcludeID, existing)
}

func (s *ExamService) examFromRequest(req ExamRequest) (*models.Exam, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exam payload")
	}
	date, err := time.Parse(examDateLayout, req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date")
	}
	if _, _, err := academic.ParseWindow(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	return &models.Exam{
		CourseID:       req.CourseID,
		SemesterNumber: req.SemesterNumber,
		ExamType:       req.ExamType,
		Date:           date,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Room:           strings.TrimSpace(req.Room),
		Status:         models.ExamStatus(req.Status),
	}, nil
}

func (s *ExamService) ensureCourse(ctx context.Context, courseID string) error {
	if s.courses == nil {
		return nil
	}
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return nil
}

// ensureRoomFree locks the (room, date) pair and rejects overlapping bookings.
// Cancelled exams do not hold the room, so they skip the check.
func (s *ExamService) ensureRoomFree(ctx context.Context, tx *sqlx.Tx, exam *models.Exam, excludeID string) error {
	if exam.Status == models.ExamStatusCancelled {
		return nil
	}
	day := exam.Date.Format(examDateLayout)
	key := repository.RoomDateLockKey(strings.ToUpper(strings.TrimSpace(exam.Room)), day)
	if err := repository.AdvisoryXactLock(ctx, tx, key); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock room schedule")
	}
	existing, err := s.repo.ListByRoomAndDate(ctx, tx, exam.Room, exam.Date)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room bookings")
	}
	conflicts, err := academic.DetectExamConflicts(academic.SlotOf(*exam), excludeID, existing)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		s.metrics.RecordExamConflict()
		message := academic.ConflictMessage(exam.Room, conflicts)
		return appErrors.Wrap(&models.ExamConflictError{Message: message, Conflicts: conflicts}, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, message)
	}
	return nil
}

func scheduleChanged(before, after *models.Exam) bool {
	return !before.Date.Equal(after.Date) ||
		before.StartTime != after.StartTime ||
		before.EndTime != after.EndTime ||
		!strings.EqualFold(strings.TrimSpace(before.Room), strings.TrimSpace(after.Room)) ||
		before.Status != after.Status
}

func (s *ExamService) notifyStudents(ctx context.Context, exam *models.Exam, title string) {
	if s.notifier == nil || s.roster == nil {
		return
	}
	students, err := s.roster.ListStudentIDsByCourse(ctx, exam.CourseID)
	if err != nil {
		s.logger.Warn("failed to resolve exam audience", zap.String("exam_id", exam.ID), zap.Error(err))
		return
	}
	message := fmt.Sprintf("%s exam on %s %s-%s in room %s.", exam.ExamType, exam.Date.Format(examDateLayout), exam.StartTime, exam.EndTime, exam.Room)
	for _, studentID := range students {
		s.notifier.Notify(ctx, NotificationRequest{
			UserID:    studentID,
			Title:     title,
			Message:   message,
			Category:  models.NotificationCategoryExam,
			Priority:  models.NotificationPriorityHigh,
			ActionURL: "/exams/" + exam.ID,
			Data: map[string]interface{}{
				"exam_id":   exam.ID,
				"course_id": exam.CourseID,
			},
		})
	}
}
