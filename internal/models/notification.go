package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// NotificationCategory groups notifications for client-side filtering.
type NotificationCategory string

const (
	NotificationCategoryEnrollment NotificationCategory = "enrollment"
	NotificationCategoryGrade      NotificationCategory = "grade"
	NotificationCategoryExam       NotificationCategory = "exam"
)

// NotificationPriority orders notifications.
type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "low"
	NotificationPriorityNormal NotificationPriority = "normal"
	NotificationPriorityHigh   NotificationPriority = "high"
)

// Notification is a message queued for delivery to a user.
type Notification struct {
	ID        string               `db:"id" json:"id"`
	UserID    string               `db:"user_id" json:"user_id"`
	Title     string               `db:"title" json:"title"`
	Message   string               `db:"message" json:"message"`
	Category  NotificationCategory `db:"category" json:"category"`
	Priority  NotificationPriority `db:"priority" json:"priority"`
	ActionURL string               `db:"action_url" json:"action_url,omitempty"`
	Data      types.JSONText       `db:"data" json:"data,omitempty"`
	CreatedAt time.Time            `db:"created_at" json:"created_at"`
}
