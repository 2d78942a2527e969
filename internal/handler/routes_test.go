package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/univ-academic-api/internal/models"
	appErrors "github.com/noah-isme/univ-academic-api/pkg/errors"
)

type fakeSemesterSrv struct{}

func (fakeSemesterSrv) GetCurrent(context.Context) (*models.Semester, error) {
	return &models.Semester{ID: "s6", Number: 6, IsCurrent: true}, nil
}

func (fakeSemesterSrv) SetCurrent(_ context.Context, id string) (*models.Semester, error) {
	return &models.Semester{ID: id, IsCurrent: true}, nil
}

type roleTokens map[string]*models.JWTClaims

func (r roleTokens) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := r[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	tokens := roleTokens{
		"student": studentClaims("stu-1"),
		"teacher": {UserID: "lecturer-1", Role: models.RoleTeacher},
		"admin":   adminClaims(),
	}
	RegisterRoutes(r.Group("/api/v1"), tokens, Handlers{
		Enrollments: NewEnrollmentHandler(&fakeEnrollmentSrv{}),
		Grades:      NewGradeHandler(&fakeGradeSrv{}),
		Exams:       NewExamHandler(&fakeExamSrv{}),
		Semesters:   NewSemesterHandler(fakeSemesterSrv{}),
	})
	return r
}

func TestRoutesAccessControl(t *testing.T) {
	r := newTestRouter()

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		want   int
	}{
		{"anonymous rejected", http.MethodGet, "/api/v1/semesters/current", "", "", http.StatusUnauthorized},
		{"current semester", http.MethodGet, "/api/v1/semesters/current", "student", "", http.StatusOK},
		{"student cannot set semester", http.MethodPost, "/api/v1/semesters/s7/current", "student", "", http.StatusForbidden},
		{"admin sets semester", http.MethodPost, "/api/v1/semesters/s7/current", "admin", "", http.StatusOK},
		{"student enrolls", http.MethodPost, "/api/v1/enrollments", "student", `{"course_id":"c1"}`, http.StatusCreated},
		{"teacher cannot enroll", http.MethodPost, "/api/v1/enrollments", "teacher", `{"student_id":"stu-1","course_id":"c1"}`, http.StatusForbidden},
		{"teacher completes", http.MethodPost, "/api/v1/enrollments/enr-1/complete", "teacher", "", http.StatusOK},
		{"student cannot complete", http.MethodPost, "/api/v1/enrollments/enr-1/complete", "student", "", http.StatusForbidden},
		{"student cannot grade", http.MethodPut, "/api/v1/grades", "student", `{}`, http.StatusForbidden},
		{"teacher cannot delete grade", http.MethodDelete, "/api/v1/grades/g1", "teacher", "", http.StatusForbidden},
		{"own gpa", http.MethodGet, "/api/v1/students/stu-1/gpa", "student", "", http.StatusOK},
		{"other gpa", http.MethodGet, "/api/v1/students/stu-2/gpa", "student", "", http.StatusForbidden},
		{"teacher reads gpa", http.MethodGet, "/api/v1/students/stu-2/gpa", "teacher", "", http.StatusOK},
		{"student lists exams", http.MethodGet, "/api/v1/exams", "student", "", http.StatusOK},
		{"student cannot schedule exam", http.MethodPost, "/api/v1/exams", "student", `{}`, http.StatusForbidden},
		{"admin dry run", http.MethodPost, "/api/v1/exams/conflicts", "admin", `{"room":"R101"}`, http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}
