package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ComponentName is one entry of the fixed grading taxonomy.
type ComponentName string

const (
	ComponentMidterm    ComponentName = "midterm"
	ComponentFinal      ComponentName = "final"
	ComponentPractical  ComponentName = "practical"
	ComponentQuiz       ComponentName = "quiz"
	ComponentAssignment ComponentName = "assignment"
	ComponentProject    ComponentName = "project"
	ComponentAttendance ComponentName = "attendance"
)

// GradeComponent is one weighted contributor to a course grade.
type GradeComponent struct {
	Name     ComponentName `json:"name"`
	Weight   float64       `json:"weight"`
	Score    *float64      `json:"score,omitempty"`
	MaxScore float64       `json:"max_score"`
}

// Recorded reports whether the component has a score.
func (c GradeComponent) Recorded() bool {
	return c.Score != nil
}

// GradeStatus is the lifecycle of a grade record.
type GradeStatus string

const (
	GradeStatusIncomplete GradeStatus = "incomplete"
	GradeStatusGraded     GradeStatus = "graded"
	GradeStatusPublished  GradeStatus = "published"
)

// Grade is the per (student, course, semester) grade record.
type Grade struct {
	ID          string         `db:"id" json:"id"`
	StudentID   string         `db:"student_id" json:"student_id"`
	CourseID    string         `db:"course_id" json:"course_id"`
	SemesterID  string         `db:"semester_id" json:"semester_id"`
	Components  types.JSONText `db:"components" json:"components"`
	TotalScore  float64        `db:"total_score" json:"total_score"`
	LetterGrade string         `db:"letter_grade" json:"letter_grade"`
	GradePoint  float64        `db:"grade_point" json:"grade_point"`
	Status      GradeStatus    `db:"status" json:"status"`
	GradedBy    *string        `db:"graded_by" json:"graded_by,omitempty"`
	GradedAt    *time.Time     `db:"graded_at" json:"graded_at,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// ComponentList decodes the stored components.
func (g Grade) ComponentList() ([]GradeComponent, error) {
	if len(g.Components) == 0 {
		return nil, nil
	}
	var list []GradeComponent
	if err := g.Components.Unmarshal(&list); err != nil {
		return nil, err
	}
	return list, nil
}

// CourseGrade joins a grade with the credits of its course for GPA roll-ups.
type CourseGrade struct {
	GradeID        string      `db:"grade_id" json:"grade_id"`
	CourseID       string      `db:"course_id" json:"course_id"`
	CourseCode     string      `db:"course_code" json:"course_code"`
	SemesterID     string      `db:"semester_id" json:"semester_id"`
	SemesterNumber int         `db:"semester_number" json:"semester_number"`
	Credits        *int        `db:"credits" json:"credits,omitempty"`
	GradePoint     float64     `db:"grade_point" json:"grade_point"`
	LetterGrade    string      `db:"letter_grade" json:"letter_grade"`
	Status         GradeStatus `db:"status" json:"status"`
}

// SemesterGPA is the SGPA of one semester.
type SemesterGPA struct {
	SemesterID string  `json:"semester_id"`
	Credits    int     `json:"credits"`
	SGPA       float64 `json:"sgpa"`
}

// GPASummary aggregates a student's semester and cumulative averages.
type GPASummary struct {
	StudentID    string        `json:"student_id"`
	Semesters    []SemesterGPA `json:"semesters"`
	TotalCredits int           `json:"total_credits"`
	CGPA         float64       `json:"cgpa"`
}
