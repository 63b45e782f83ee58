package models

import "time"

// NotificationKind labels the triggering event of a notification. Kinds are
// not persisted; they drive metrics and logging in the dispatcher.
type NotificationKind string

const (
	NotificationModuleAdded       NotificationKind = "module_added"
	NotificationLessonAdded       NotificationKind = "lesson_added"
	NotificationEnrollmentCreated NotificationKind = "enrollment_created"
	NotificationSubmissionCreated NotificationKind = "submission_created"
	NotificationSubmissionGraded  NotificationKind = "submission_graded"
	NotificationCourseCompleted   NotificationKind = "course_completed"
	NotificationFinalGradeUpdated NotificationKind = "final_grade_updated"
	NotificationDeadlineSoon      NotificationKind = "deadline_approaching"
)

// Notification is a persisted message shown to a user about a course.
type Notification struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Content   string    `db:"content" json:"content"`
	Read      bool      `db:"read" json:"read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// NotificationFilter provides filters for listing notifications.
type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Page       int
	PageSize   int
}
