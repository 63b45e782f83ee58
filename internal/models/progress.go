package models

import "time"

// LessonProgress is unique per (student, lesson) and is only ever written by
// the owning student. The lifecycle engine reads it, never mutates it.
type LessonProgress struct {
	ID        string `db:"id" json:"id"`
	StudentID string `db:"student_id" json:"student_id"`
	LessonID  string `db:"lesson_id" json:"lesson_id"`
	Completed bool   `db:"completed" json:"completed"`
}

// StatusUpdate is a student's public post on a course; it snapshots the
// computed progress at posting time.
type StatusUpdate struct {
	ID             string    `db:"id" json:"id"`
	StudentID      string    `db:"student_id" json:"student_id"`
	CourseID       string    `db:"course_id" json:"course_id"`
	CourseProgress float64   `db:"course_progress" json:"course_progress"`
	Text           string    `db:"text" json:"text"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
