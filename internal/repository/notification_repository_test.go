package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/univ-academic-api/internal/models"
)

func TestNotificationRepositoryCreate(t *testing.T) {
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer raw.Close()
	repo := NewNotificationRepository(sqlx.NewDb(raw, "sqlmock"))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	notification := &models.Notification{UserID: "stu-1", Title: "Enrolled", Category: models.NotificationCategoryEnrollment, Priority: models.NotificationPriorityNormal}
	require.NoError(t, repo.Create(context.Background(), notification))
	assert.NotEmpty(t, notification.ID)
	assert.Equal(t, "{}", notification.Data.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}
