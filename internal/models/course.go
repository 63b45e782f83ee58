package models

import "time"

// CourseStatus is derived from the published flag and the course dates; it is
// never stored.
type CourseStatus string

const (
	CourseStatusUnpublished CourseStatus = "unpublished"
	CourseStatusUpcoming    CourseStatus = "upcoming"
	CourseStatusOngoing     CourseStatus = "ongoing"
	CourseStatusEnded       CourseStatus = "ended"
)

// Course represents a course taught by a single teacher.
type Course struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Description *string   `db:"description" json:"description,omitempty"`
	TeacherID   string    `db:"teacher_id" json:"teacher_id"`
	StartDate   time.Time `db:"start_date" json:"start_date"`
	EndDate     time.Time `db:"end_date" json:"end_date"`
	Published   bool      `db:"published" json:"published"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Status derives the course lifecycle state at the given instant.
func (c Course) Status(now time.Time) CourseStatus {
	if !c.Published {
		return CourseStatusUnpublished
	}
	today := now.UTC().Truncate(24 * time.Hour)
	start := c.StartDate.UTC().Truncate(24 * time.Hour)
	end := c.EndDate.UTC().Truncate(24 * time.Hour)
	switch {
	case start.After(today):
		return CourseStatusUpcoming
	case end.Before(today):
		return CourseStatusEnded
	default:
		return CourseStatusOngoing
	}
}

// DurationWeeks returns the course length in weeks, rounding partial weeks up
// with a minimum of one week.
func (c Course) DurationWeeks() int {
	days := int(c.EndDate.Sub(c.StartDate).Hours() / 24)
	weeks := (days + 6) / 7
	if weeks < 1 {
		return 1
	}
	return weeks
}

// CourseRef is the slim course projection trigger hooks resolve content
// against: enough to decide publishing gates and notification targets.
type CourseRef struct {
	ID        string `db:"id"`
	Title     string `db:"title"`
	TeacherID string `db:"teacher_id"`
	Published bool   `db:"published"`
}

// CourseItemCounts carries the denominator of the progress calculation.
type CourseItemCounts struct {
	Lessons     int `db:"lessons"`
	Assignments int `db:"assignments"`
}

// Total returns the number of completable items in the course.
func (c CourseItemCounts) Total() int {
	return c.Lessons + c.Assignments
}

// Module groups lessons and assignments inside a course.
type Module struct {
	ID          string    `db:"id" json:"id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	Title       string    `db:"title" json:"title"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Lesson is pure content; completing it feeds the progress calculation.
type Lesson struct {
	ID          string    `db:"id" json:"id"`
	ModuleID    string    `db:"module_id" json:"module_id"`
	Title       string    `db:"title" json:"title"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// CourseFilter provides filters for listing courses.
type CourseFilter struct {
	TeacherID     string
	PublishedOnly bool
	Search        string
	Page          int
	PageSize      int
}
