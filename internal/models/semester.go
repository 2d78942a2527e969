package models

import "time"

// Semester is an academic semester. At most one is flagged current.
type Semester struct {
	ID        string    `db:"id" json:"id"`
	Number    int       `db:"number" json:"number"`
	Year      int       `db:"year" json:"year"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	IsCurrent bool      `db:"is_current" json:"is_current"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
