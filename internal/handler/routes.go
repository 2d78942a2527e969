package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/univ-academic-api/internal/middleware"
	"github.com/noah-isme/univ-academic-api/internal/models"
)

// Handlers groups the API handlers mounted under the API prefix.
type Handlers struct {
	Enrollments *EnrollmentHandler
	Grades      *GradeHandler
	Exams       *ExamHandler
	Semesters   *SemesterHandler
	Metrics     *MetricsHandler
}

// RegisterRoutes mounts the authenticated API.
func RegisterRoutes(api *gin.RouterGroup, tokens middleware.TokenValidator, h Handlers) {
	admin := models.RoleAdmin
	teacher := models.RoleTeacher
	student := models.RoleStudent
	staff := middleware.RequireRoles(teacher, admin)
	adminOnly := middleware.RequireRoles(admin)

	api.Use(middleware.JWT(tokens), middleware.WithResponseMeta())

	enrollments := api.Group("/enrollments")
	enrollments.GET("", h.Enrollments.List)
	enrollments.POST("", middleware.RequireRoles(student, admin), h.Enrollments.Enroll)
	enrollments.POST("/drop", middleware.RequireRoles(student, admin), h.Enrollments.Drop)
	enrollments.POST("/:id/complete", staff, h.Enrollments.Complete)
	enrollments.GET("/:id/history", h.Enrollments.History)

	grades := api.Group("/grades")
	grades.PUT("", staff, h.Grades.Record)
	grades.GET("/:id", h.Grades.Get)
	grades.DELETE("/:id", adminOnly, h.Grades.Delete)
	grades.POST("/:id/publish", staff, h.Grades.Publish)

	api.GET("/students/:id/gpa", middleware.RBAC(middleware.RoleSelf, string(teacher), string(admin)), h.Grades.GPA)

	exams := api.Group("/exams")
	exams.GET("", h.Exams.List)
	exams.POST("", adminOnly, h.Exams.Create)
	exams.POST("/conflicts", adminOnly, h.Exams.CheckConflicts)
	exams.PUT("/:id", adminOnly, h.Exams.Update)
	exams.DELETE("/:id", adminOnly, h.Exams.Delete)

	semesters := api.Group("/semesters")
	semesters.GET("/current", h.Semesters.Current)
	semesters.POST("/:id/current", adminOnly, h.Semesters.SetCurrent)

	if h.Metrics != nil {
		api.GET("/admin/metrics", adminOnly, h.Metrics.Snapshot)
	}
}
