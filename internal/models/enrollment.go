package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. Completed and Removed are terminal; Canceled
// may be reactivated by explicit re-enrollment.
const (
	EnrollmentStatusActive    EnrollmentStatus = "Active"
	EnrollmentStatusCompleted EnrollmentStatus = "Completed"
	EnrollmentStatusCanceled  EnrollmentStatus = "Canceled"
	EnrollmentStatusRemoved   EnrollmentStatus = "Removed"
)

// Enrollment captures a student's relationship to a course. Each "reached"
// timestamp is set the first time the corresponding status is reached and
// never reset. FinalGrade stays nil until every assignment in the course has
// a graded submission; a computed grade of 0.0 is a real grade, not absence.
type Enrollment struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	CourseID    string           `db:"course_id" json:"course_id"`
	Status      EnrollmentStatus `db:"status" json:"status"`
	ActivatedOn time.Time        `db:"activated_on" json:"activated_on"`
	CompletedOn *time.Time       `db:"completed_on" json:"completed_on,omitempty"`
	CanceledOn  *time.Time       `db:"canceled_on" json:"canceled_on,omitempty"`
	RemovedOn   *time.Time       `db:"removed_on" json:"removed_on,omitempty"`
	FinalGrade  *float64         `db:"final_grade" json:"final_grade,omitempty"`
}

// EnrollmentDetail enriches Enrollment with student and course info.
type EnrollmentDetail struct {
	Enrollment
	StudentName string `db:"student_name" json:"student_name"`
	CourseTitle string `db:"course_title" json:"course_title"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	CourseID  string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
}

// CompletionCounts carries the numerator of the progress calculation.
type CompletionCounts struct {
	LessonsCompleted     int `db:"lessons_completed"`
	AssignmentsSubmitted int `db:"assignments_submitted"`
}

// Total returns the number of items the student has completed or submitted.
func (c CompletionCounts) Total() int {
	return c.LessonsCompleted + c.AssignmentsSubmitted
}
