package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/univ-academic-api/internal/middleware"
	"github.com/noah-isme/univ-academic-api/internal/models"
	"github.com/noah-isme/univ-academic-api/internal/service"
	appErrors "github.com/noah-isme/univ-academic-api/pkg/errors"
	"github.com/noah-isme/univ-academic-api/pkg/response"
)

type gradeService interface {
	Record(ctx context.Context, req service.RecordGradeRequest) (*models.Grade, error)
	Get(ctx context.Context, id string) (*models.Grade, error)
	Delete(ctx context.Context, id string) error
	Publish(ctx context.Context, id string) (*models.Grade, error)
	GPA(ctx context.Context, studentID string, publishedOnly bool) (*models.GPASummary, bool, error)
}

// GradeHandler exposes grade endpoints.
type GradeHandler struct {
	grades gradeService
}

// NewGradeHandler constructs GradeHandler.
func NewGradeHandler(grades gradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

// Record godoc
// @Summary Record grade components
// @Description Creates the grade for the (student, course, semester) triple or merges components by name.
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.RecordGradeRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /grades [put]
func (h *GradeHandler) Record(c *gin.Context) {
	var req service.RecordGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	if claims := claimsFromContext(c); claims != nil {
		req.GradedBy = claims.UserID
	}
	grade, err := h.grades.Record(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, grade)
}

// Get godoc
// @Summary Get grade
// @Tags Grades
// @Produce json
// @Param id path string true "Grade ID"
// @Success 200 {object} response.Envelope
// @Router /grades/{id} [get]
func (h *GradeHandler) Get(c *gin.Context) {
	grade, err := h.grades.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if isStudent(c) {
		if _, err := ownStudentID(c, grade.StudentID); err != nil {
			response.Error(c, err)
			return
		}
		if grade.Status != models.GradeStatusPublished {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "grade not found"))
			return
		}
	}
	response.OK(c, grade)
}

// Delete godoc
// @Summary Delete grade
// @Tags Grades
// @Param id path string true "Grade ID"
// @Success 204
// @Router /grades/{id} [delete]
func (h *GradeHandler) Delete(c *gin.Context) {
	if err := h.grades.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Publish godoc
// @Summary Publish a graded record to the student
// @Tags Grades
// @Produce json
// @Param id path string true "Grade ID"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /grades/{id}/publish [post]
func (h *GradeHandler) Publish(c *gin.Context) {
	grade, err := h.grades.Publish(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, grade)
}

// GPA godoc
// @Summary Student SGPA breakdown and CGPA
// @Description Students see the averages of their published grades only.
// @Tags Grades
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/gpa [get]
func (h *GradeHandler) GPA(c *gin.Context) {
	summary, hit, err := h.grades.GPA(c.Request.Context(), c.Param("id"), isStudent(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}
