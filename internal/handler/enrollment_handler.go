package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/univ-academic-api/internal/models"
	"github.com/noah-isme/univ-academic-api/internal/service"
	appErrors "github.com/noah-isme/univ-academic-api/pkg/errors"
	"github.com/noah-isme/univ-academic-api/pkg/response"
)

type enrollmentService interface {
	Enroll(ctx context.Context, req service.EnrollRequest) (*models.Enrollment, error)
	Drop(ctx context.Context, req service.EnrollRequest) (*models.Enrollment, error)
	Complete(ctx context.Context, enrollmentID string) (*models.Enrollment, error)
	ListByStudent(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error)
	Get(ctx context.Context, id string) (*models.Enrollment, error)
	History(ctx context.Context, id string) ([]models.EnrollmentEvent, error)
}

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// Enroll godoc
// @Summary Enroll a student in a course
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	enrollment, err := h.enrollments.Enroll(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Drop godoc
// @Summary Drop a course within the drop window
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.EnrollRequest true "Drop payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/drop [post]
func (h *EnrollmentHandler) Drop(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	enrollment, err := h.enrollments.Drop(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, enrollment)
}

// Complete godoc
// @Summary Mark an enrollment completed
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/complete [post]
func (h *EnrollmentHandler) Complete(c *gin.Context) {
	enrollment, err := h.enrollments.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, enrollment)
}

// List godoc
// @Summary List a student's enrollments
// @Tags Enrollments
// @Produce json
// @Param student_id query string false "Student ID, implied for students"
// @Param status query string false "enrolled, dropped or completed"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	studentID, err := ownStudentID(c, c.Query("student_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.EnrollmentFilter{
		StudentID: studentID,
		Status:    models.EnrollmentStatus(strings.ToLower(c.Query("status"))),
	}
	enrollments, err := h.enrollments.ListByStudent(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}

// History godoc
// @Summary Enrollment lifecycle history
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/history [get]
func (h *EnrollmentHandler) History(c *gin.Context) {
	id := c.Param("id")
	if isStudent(c) {
		enrollment, err := h.enrollments.Get(c.Request.Context(), id)
		if err != nil {
			response.Error(c, err)
			return
		}
		if _, err := ownStudentID(c, enrollment.StudentID); err != nil {
			response.Error(c, err)
			return
		}
	}
	events, err := h.enrollments.History(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, events)
}

func (h *EnrollmentHandler) bind(c *gin.Context) (service.EnrollRequest, bool) {
	var req service.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return req, false
	}
	studentID, err := ownStudentID(c, req.StudentID)
	if err != nil {
		response.Error(c, err)
		return req, false
	}
	if studentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "student_id is required"))
		return req, false
	}
	req.StudentID = studentID
	return req, true
}
