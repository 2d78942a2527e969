package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/univ-academic-api/internal/models"
	"github.com/noah-isme/univ-academic-api/pkg/response"
)

type semesterService interface {
	GetCurrent(ctx context.Context) (*models.Semester, error)
	SetCurrent(ctx context.Context, id string) (*models.Semester, error)
}

// SemesterHandler exposes the current semester.
type SemesterHandler struct {
	semesters semesterService
}

// NewSemesterHandler constructs SemesterHandler.
func NewSemesterHandler(semesters semesterService) *SemesterHandler {
	return &SemesterHandler{semesters: semesters}
}

// Current godoc
// @Summary Current semester
// @Tags Semesters
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /semesters/current [get]
func (h *SemesterHandler) Current(c *gin.Context) {
	semester, err := h.semesters.GetCurrent(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, semester)
}

// SetCurrent godoc
// @Summary Flag a semester as current
// @Tags Semesters
// @Produce json
// @Param id path string true "Semester ID"
// @Success 200 {object} response.Envelope
// @Router /semesters/{id}/current [post]
func (h *SemesterHandler) SetCurrent(c *gin.Context) {
	semester, err := h.semesters.SetCurrent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, semester)
}
