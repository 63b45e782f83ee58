package models

import "time"

// ReportJobStatus tracks asynchronous report-card generation.
type ReportJobStatus string

const (
	ReportJobPending ReportJobStatus = "PENDING"
	ReportJobReady   ReportJobStatus = "READY"
	ReportJobFailed  ReportJobStatus = "FAILED"
)

// ReportFormat selects the rendered artifact type.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ReportJob records a requested report-card export and its artifact location.
type ReportJob struct {
	ID        string          `db:"id" json:"id"`
	StudentID string          `db:"student_id" json:"student_id"`
	Format    ReportFormat    `db:"format" json:"format"`
	Status    ReportJobStatus `db:"status" json:"status"`
	FilePath  *string         `db:"file_path" json:"file_path,omitempty"`
	Error     *string         `db:"error" json:"error,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// ReportCardRow is one course line on a student's report card.
type ReportCardRow struct {
	CourseID    string           `db:"course_id" json:"course_id"`
	CourseTitle string           `db:"course_title" json:"course_title"`
	Status      EnrollmentStatus `db:"status" json:"status"`
	Progress    float64          `json:"progress"`
	FinalGrade  *float64         `db:"final_grade" json:"final_grade,omitempty"`
}
