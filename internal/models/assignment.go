package models

import "time"

// Assignment is a weighted, deadline-bearing unit of work inside a module.
type Assignment struct {
	ID          string     `db:"id" json:"id"`
	ModuleID    string     `db:"module_id" json:"module_id"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	Deadline    *time.Time `db:"deadline" json:"deadline,omitempty"`
	Weight      float64    `db:"weight" json:"weight"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// AssignmentSubmission is unique per (student, assignment). Grade is nil
// until the course teacher grades it.
type AssignmentSubmission struct {
	ID           string    `db:"id" json:"id"`
	AssignmentID string    `db:"assignment_id" json:"assignment_id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	SubmittedOn  time.Time `db:"submitted_on" json:"submitted_on"`
	Grade        *float64  `db:"grade" json:"grade,omitempty"`
	Feedback     *string   `db:"feedback" json:"feedback,omitempty"`
}

// WeightedGrade pairs an assignment's weight with the student's submission
// grade for the final-grade aggregation. Grade is nil while ungraded and
// Submitted is false when the student never submitted at all.
type WeightedGrade struct {
	AssignmentID string   `db:"assignment_id"`
	Weight       float64  `db:"weight"`
	Submitted    bool     `db:"submitted"`
	Grade        *float64 `db:"grade"`
}

// AssignmentDigest is the sweep's view of an assignment due soon.
type AssignmentDigest struct {
	ID          string `db:"id"`
	Title       string `db:"title"`
	CourseID    string `db:"course_id"`
	CourseTitle string `db:"course_title"`
}
