package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/univ-academic-api/internal/models"
	appErrors "github.com/noah-isme/univ-academic-api/pkg/errors"
)

type semesterRepository interface {
	FindByID(ctx context.Context, id string) (*models.Semester, error)
	FindCurrent(ctx context.Context) (*models.Semester, error)
	SetCurrent(ctx context.Context, id string) error
}

// SemesterService exposes the current semester flag.
type SemesterService struct {
	repo   semesterRepository
	logger *zap.Logger
}

// NewSemesterService creates a new semester service instance.
func NewSemesterService(repo semesterRepository, logger *zap.Logger) *SemesterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SemesterService{repo: repo, logger: logger}
}

// GetCurrent returns the semester flagged current.
func (s *SemesterService) GetCurrent(ctx context.Context) (*models.Semester, error) {
	semester, err := s.repo.FindCurrent(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no current semester")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current semester")
	}
	return semester, nil
}

// SetCurrent makes the semester the only current one.
func (s *SemesterService) SetCurrent(ctx context.Context, id string) (*models.Semester, error) {
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "semester id is required")
	}
	if err := s.repo.SetCurrent(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set current semester")
	}
	semester, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	s.logger.Info("current semester changed", zap.String("semester_id", id), zap.Int("number", semester.Number), zap.Int("year", semester.Year))
	return semester, nil
}
