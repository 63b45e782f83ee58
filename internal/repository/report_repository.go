package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lara-bellatin/awd-final/internal/models"
)

// ReportRepository tracks asynchronous report-card generation jobs.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

const reportJobColumns = `id, student_id, format, status, file_path, error, created_at, updated_at`

// CreateJob persists a pending report job.
func (r *ReportRepository) CreateJob(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = models.ReportJobPending
	}
	const query = `INSERT INTO report_jobs (id, student_id, format, status, file_path, error, created_at, updated_at)
        VALUES (:id, :student_id, :format, :status, :file_path, :error, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, job); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// FindJob returns a report job by ID.
func (r *ReportRepository) FindJob(ctx context.Context, id string) (*models.ReportJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM report_jobs WHERE id = $1`, reportJobColumns)
	var job models.ReportJob
	if err := sqlx.GetContext(ctx, r.db, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkReady stores the generated file path and flips the job to READY.
func (r *ReportRepository) MarkReady(ctx context.Context, id, filePath string) error {
	const query = `UPDATE report_jobs SET status = $2, file_path = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ReportJobReady, filePath, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark report ready: %w", err)
	}
	return nil
}

// MarkFailed records the failure reason and flips the job to FAILED.
func (r *ReportRepository) MarkFailed(ctx context.Context, id, reason string) error {
	const query = `UPDATE report_jobs SET status = $2, error = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ReportJobFailed, reason, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark report failed: %w", err)
	}
	return nil
}

// ReportCardRows gathers the student's per-course standing for the report
// card export. Progress is filled in by the caller.
func (r *ReportRepository) ReportCardRows(ctx context.Context, studentID string) ([]models.ReportCardRow, error) {
	const query = `SELECT e.course_id, c.title AS course_title, e.status, e.final_grade
        FROM enrollments e
        JOIN courses c ON c.id = e.course_id
        WHERE e.student_id = $1
        ORDER BY e.activated_on`
	var rows []models.ReportCardRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("list report card rows: %w", err)
	}
	return rows, nil
}
