package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lara-bellatin/awd-final/internal/models"
)

// ProgressRepository handles lesson completion marks and status updates.
type ProgressRepository struct {
	db *sqlx.DB
}

// NewProgressRepository constructs the repository.
func NewProgressRepository(db *sqlx.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

func (r *ProgressRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec == nil {
		return r.db
	}
	return exec
}

// UpsertLessonProgress records that a student completed (or un-completed) a
// lesson. Marks are idempotent per (student, lesson) and join the caller's
// transaction when one is supplied.
func (r *ProgressRepository) UpsertLessonProgress(ctx context.Context, exec sqlx.ExtContext, progress *models.LessonProgress) error {
	if progress.ID == "" {
		progress.ID = uuid.NewString()
	}
	const query = `INSERT INTO lesson_progress (id, student_id, lesson_id, completed)
        VALUES (:id, :student_id, :lesson_id, :completed)
        ON CONFLICT (student_id, lesson_id) DO UPDATE SET completed = EXCLUDED.completed`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, progress); err != nil {
		return fmt.Errorf("upsert lesson progress: %w", err)
	}
	return nil
}

// CompletionCounts counts the student's completed lessons and submitted
// assignments in a course. It runs inside the caller's transaction when one
// is supplied so the numbers stay consistent with the enrollment lock.
func (r *ProgressRepository) CompletionCounts(ctx context.Context, exec sqlx.ExtContext, studentID, courseID string) (models.CompletionCounts, error) {
	const query = `SELECT
        (SELECT COUNT(*) FROM lesson_progress lp
            JOIN lessons l ON l.id = lp.lesson_id
            JOIN modules m ON m.id = l.module_id
            WHERE lp.student_id = $1 AND lp.completed = TRUE AND m.course_id = $2) AS lessons_completed,
        (SELECT COUNT(*) FROM assignment_submissions s
            JOIN assignments a ON a.id = s.assignment_id
            JOIN modules m ON m.id = a.module_id
            WHERE s.student_id = $1 AND m.course_id = $2) AS assignments_submitted`
	var counts models.CompletionCounts
	if err := sqlx.GetContext(ctx, r.exec(exec), &counts, query, studentID, courseID); err != nil {
		return models.CompletionCounts{}, fmt.Errorf("count completions: %w", err)
	}
	return counts, nil
}

// CreateStatusUpdate stores a student's status update with its progress
// snapshot.
func (r *ProgressRepository) CreateStatusUpdate(ctx context.Context, update *models.StatusUpdate) error {
	if update.ID == "" {
		update.ID = uuid.NewString()
	}
	if update.CreatedAt.IsZero() {
		update.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO status_updates (id, student_id, course_id, course_progress, text, created_at)
        VALUES (:id, :student_id, :course_id, :course_progress, :text, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, update); err != nil {
		return fmt.Errorf("create status update: %w", err)
	}
	return nil
}

// ListStatusUpdates returns a student's status updates for a course, most
// recent first.
func (r *ProgressRepository) ListStatusUpdates(ctx context.Context, studentID, courseID string) ([]models.StatusUpdate, error) {
	const query = `SELECT id, student_id, course_id, course_progress, text, created_at
        FROM status_updates WHERE student_id = $1 AND course_id = $2 ORDER BY created_at DESC`
	var updates []models.StatusUpdate
	if err := sqlx.SelectContext(ctx, r.db, &updates, query, studentID, courseID); err != nil {
		return nil, fmt.Errorf("list status updates: %w", err)
	}
	return updates, nil
}
