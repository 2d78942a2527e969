package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// CourseStatus tracks whether a course accepts enrollments.
type CourseStatus string

const (
	CourseStatusActive    CourseStatus = "active"
	CourseStatusInactive  CourseStatus = "inactive"
	CourseStatusCompleted CourseStatus = "completed"
	CourseStatusUpcoming  CourseStatus = "upcoming"
)

// Prerequisite names a course that must be completed before enrolling.
type Prerequisite struct {
	CourseCode string `json:"course_code"`
	MinGrade   string `json:"min_grade,omitempty"`
}

// Course is an offering within a semester.
type Course struct {
	ID             string         `db:"id" json:"id"`
	Code           string         `db:"code" json:"code"`
	Name           string         `db:"name" json:"name"`
	Credits        int            `db:"credits" json:"credits"`
	Capacity       int            `db:"capacity" json:"capacity"`
	EnrolledCount  int            `db:"enrolled_count" json:"enrolled_count"`
	Status         CourseStatus   `db:"status" json:"status"`
	SemesterID     string         `db:"semester_id" json:"semester_id"`
	SemesterNumber int            `db:"semester_number" json:"semester_number"`
	Prerequisites  types.JSONText `db:"prerequisites" json:"prerequisites,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// PrerequisiteList decodes the stored prerequisite payload.
func (c Course) PrerequisiteList() ([]Prerequisite, error) {
	if len(c.Prerequisites) == 0 {
		return nil, nil
	}
	var list []Prerequisite
	if err := c.Prerequisites.Unmarshal(&list); err != nil {
		return nil, err
	}
	return list, nil
}

// SeatsLeft reports remaining capacity.
func (c Course) SeatsLeft() int {
	if c.EnrolledCount >= c.Capacity {
		return 0
	}
	return c.Capacity - c.EnrolledCount
}
