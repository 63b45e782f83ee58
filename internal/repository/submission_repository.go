package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lara-bellatin/awd-final/internal/models"
)

// SubmissionRepository handles persistence of assignment submissions.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func (r *SubmissionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec == nil {
		return r.db
	}
	return exec
}

const submissionColumns = `id, assignment_id, student_id, submitted_on, grade, feedback`

// Create persists a new submission. It joins the caller's transaction when
// one is supplied so the row commits with the lifecycle writes it triggers.
func (r *SubmissionRepository) Create(ctx context.Context, exec sqlx.ExtContext, submission *models.AssignmentSubmission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.SubmittedOn.IsZero() {
		submission.SubmittedOn = time.Now().UTC()
	}
	const query = `INSERT INTO assignment_submissions (id, assignment_id, student_id, submitted_on, grade, feedback)
        VALUES (:id, :assignment_id, :student_id, :submitted_on, :grade, :feedback)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, submission); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// FindByID returns a submission by ID.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.AssignmentSubmission, error) {
	query := fmt.Sprintf(`SELECT %s FROM assignment_submissions WHERE id = $1`, submissionColumns)
	var submission models.AssignmentSubmission
	if err := sqlx.GetContext(ctx, r.db, &submission, query, id); err != nil {
		return nil, err
	}
	return &submission, nil
}

// FindByStudentAndAssignment returns the student's submission for an
// assignment, if any.
func (r *SubmissionRepository) FindByStudentAndAssignment(ctx context.Context, studentID, assignmentID string) (*models.AssignmentSubmission, error) {
	query := fmt.Sprintf(`SELECT %s FROM assignment_submissions WHERE student_id = $1 AND assignment_id = $2`, submissionColumns)
	var submission models.AssignmentSubmission
	if err := sqlx.GetContext(ctx, r.db, &submission, query, studentID, assignmentID); err != nil {
		return nil, err
	}
	return &submission, nil
}

// UpdateGrade stores a grade and optional feedback on a submission, against
// the caller's transaction when one is supplied.
func (r *SubmissionRepository) UpdateGrade(ctx context.Context, exec sqlx.ExtContext, id string, grade float64, feedback *string) error {
	const query = `UPDATE assignment_submissions SET grade = $2, feedback = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, grade, feedback); err != nil {
		return fmt.Errorf("grade submission: %w", err)
	}
	return nil
}

// SubmittedStudentIDs returns the set of students who already submitted the
// assignment. The deadline sweep uses it to exclude submitters.
func (r *SubmissionRepository) SubmittedStudentIDs(ctx context.Context, assignmentID string) (map[string]bool, error) {
	const query = `SELECT student_id FROM assignment_submissions WHERE assignment_id = $1`
	var ids []string
	if err := sqlx.SelectContext(ctx, r.db, &ids, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list submitted students: %w", err)
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// WeightedGrades returns one row per assignment in the course, joined with
// the student's submission when present. The aggregator decides from these
// whether a final grade can be computed.
func (r *SubmissionRepository) WeightedGrades(ctx context.Context, exec sqlx.ExtContext, studentID, courseID string) ([]models.WeightedGrade, error) {
	const query = `SELECT a.id AS assignment_id, a.weight,
        (s.id IS NOT NULL) AS submitted, s.grade
        FROM assignments a
        JOIN modules m ON m.id = a.module_id
        LEFT JOIN assignment_submissions s ON s.assignment_id = a.id AND s.student_id = $1
        WHERE m.course_id = $2`
	var grades []models.WeightedGrade
	if err := sqlx.SelectContext(ctx, r.exec(exec), &grades, query, studentID, courseID); err != nil {
		return nil, fmt.Errorf("list weighted grades: %w", err)
	}
	return grades, nil
}
