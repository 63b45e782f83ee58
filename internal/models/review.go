package models

import "time"

// CourseReview is left by a student who completed the course; one per
// (student, course).
type CourseReview struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Rating    int       `db:"rating" json:"rating"`
	Review    *string   `db:"review" json:"review,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
