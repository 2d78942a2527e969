package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/univ-academic-api/internal/models"
	"github.com/noah-isme/univ-academic-api/pkg/jobs"
)

const notificationJobType = "notification.deliver"

type notificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// NotificationRequest describes a message for one user.
type NotificationRequest struct {
	UserID    string
	Title     string
	Message   string
	Category  models.NotificationCategory
	Priority  models.NotificationPriority
	ActionURL string
	Data      map[string]interface{}
}

// NotificationService hands notifications to a background queue. Delivery
// failures are logged and never reach the caller.
type NotificationService struct {
	repo    notificationRepository
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationService builds the service and its delivery queue.
func NewNotificationService(repo notificationRepository, metrics *MetricsService, logger *zap.Logger, cfg jobs.QueueConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{repo: repo, metrics: metrics, logger: logger}
	cfg.Logger = logger
	svc.queue = jobs.NewQueue("notifications", svc.deliver, cfg)
	return svc
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop waits for the delivery workers to exit.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Notify enqueues a notification without waiting for delivery.
func (s *NotificationService) Notify(ctx context.Context, req NotificationRequest) {
	if req.UserID == "" {
		return
	}
	if req.Priority == "" {
		req.Priority = models.NotificationPriorityNormal
	}
	notification := &models.Notification{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Title:     req.Title,
		Message:   req.Message,
		Category:  req.Category,
		Priority:  req.Priority,
		ActionURL: req.ActionURL,
	}
	if len(req.Data) > 0 {
		raw, err := json.Marshal(req.Data)
		if err != nil {
			s.logger.Warn("dropping unencodable notification data", zap.String("user_id", req.UserID), zap.Error(err))
		} else {
			notification.Data = types.JSONText(raw)
		}
	}

	job := jobs.Job{ID: notification.ID, Type: notificationJobType, Payload: notification}
	if err := s.queue.Enqueue(job); err != nil {
		s.metrics.RecordNotification(string(req.Category), false)
		s.logger.Warn("failed to enqueue notification",
			zap.String("user_id", req.UserID),
			zap.String("category", string(req.Category)),
			zap.Error(err),
		)
	}
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	notification, ok := job.Payload.(*models.Notification)
	if !ok {
		return fmt.Errorf("unexpected notification payload %T", job.Payload)
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		s.metrics.RecordNotification(string(notification.Category), false)
		return err
	}
	s.metrics.RecordNotification(string(notification.Category), true)
	return nil
}
