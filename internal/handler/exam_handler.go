package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/univ-academic-api/internal/models"
	"github.com/noah-isme/univ-academic-api/internal/service"
	appErrors "github.com/noah-isme/univ-academic-api/pkg/errors"
	"github.com/noah-isme/univ-academic-api/pkg/response"
)

type examService interface {
	List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, *models.Pagination, error)
	Create(ctx context.Context, req service.ExamRequest) (*models.Exam, error)
	Update(ctx context.Context, id string, req service.ExamRequest) (*models.Exam, error)
	Delete(ctx context.Context, id string) error
	CheckConflicts(ctx context.Context, req service.ConflictCheckRequest) ([]models.Exam, error)
}

// ExamHandler exposes exam scheduling endpoints.
type ExamHandler struct {
	exams examService
}

// NewExamHandler constructs ExamHandler.
func NewExamHandler(exams examService) *ExamHandler {
	return &ExamHandler{exams: exams}
}

// List godoc
// @Summary List exams
// @Tags Exams
// @Produce json
// @Param course_id query string false "Course"
// @Param semester_number query int false "Semester number"
// @Param room query string false "Room"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /exams [get]
func (h *ExamHandler) List(c *gin.Context) {
	filter := models.ExamFilter{
		CourseID: c.Query("course_id"),
		Room:     c.Query("room"),
	}
	filter.SemesterNumber, _ = strconv.Atoi(c.Query("semester_number"))
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	for param, target := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		day, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid "+param+" date"))
			return
		}
		*target = &day
	}

	exams, pagination, err := h.exams.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exams, pagination)
}

// Create godoc
// @Summary Schedule an exam
// @Tags Exams
// @Accept json
// @Produce json
// @Param payload body service.ExamRequest true "Exam payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /exams [post]
func (h *ExamHandler) Create(c *gin.Context) {
	var req service.ExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	exam, err := h.exams.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, exam)
}

// Update godoc
// @Summary Reschedule an exam
// @Tags Exams
// @Accept json
// @Produce json
// @Param id path string true "Exam ID"
// @Param payload body service.ExamRequest true "Exam payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /exams/{id} [put]
func (h *ExamHandler) Update(c *gin.Context) {
	var req service.ExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	exam, err := h.exams.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, exam)
}

// Delete godoc
// @Summary Delete an exam
// @Tags Exams
// @Param id path string true "Exam ID"
// @Success 204
// @Router /exams/{id} [delete]
func (h *ExamHandler) Delete(c *gin.Context) {
	if err := h.exams.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CheckConflicts godoc
// @Summary Dry-run room conflict check
// @Tags Exams
// @Accept json
// @Produce json
// @Param payload body service.ConflictCheckRequest true "Slot to check"
// @Success 200 {object} response.Envelope
// @Router /exams/conflicts [post]
func (h *ExamHandler) CheckConflicts(c *gin.Context) {
	var req service.ConflictCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	conflicts, err := h.exams.CheckConflicts(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"available": len(conflicts) == 0, "conflicts": conflicts})
}
