package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lara-bellatin/awd-final/internal/models"
)

// AssignmentRepository handles persistence of assignments.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

const assignmentColumns = `id, module_id, title, description, deadline, weight, created_at, updated_at`

// Create persists a new assignment.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	assignment.CreatedAt = now
	assignment.UpdatedAt = now
	const query = `INSERT INTO assignments (id, module_id, title, description, deadline, weight, created_at, updated_at)
        VALUES (:id, :module_id, :title, :description, :deadline, :weight, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, assignment); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// Update modifies an existing assignment.
func (r *AssignmentRepository) Update(ctx context.Context, assignment *models.Assignment) error {
	assignment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE assignments SET title = :title, description = :description, deadline = :deadline, weight = :weight, updated_at = :updated_at
        WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, assignment); err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	return nil
}

// FindByID returns an assignment by ID.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM assignments WHERE id = $1`, assignmentColumns)
	var assignment models.Assignment
	if err := sqlx.GetContext(ctx, r.db, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// ListByCourse returns all assignments belonging to a course through its
// modules.
func (r *AssignmentRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error) {
	const query = `SELECT a.id, a.module_id, a.title, a.description, a.deadline, a.weight, a.created_at, a.updated_at
        FROM assignments a
        JOIN modules m ON m.id = a.module_id
        WHERE m.course_id = $1
        ORDER BY a.created_at`
	var assignments []models.Assignment
	if err := sqlx.SelectContext(ctx, r.db, &assignments, query, courseID); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}

// SumWeights totals the weights of a course's assignments, excluding the
// assignment being edited when excludeID is non-empty. The weight validator
// compares this against the 100 percent budget.
func (r *AssignmentRepository) SumWeights(ctx context.Context, courseID, excludeID string) (float64, error) {
	const query = `SELECT COALESCE(SUM(a.weight), 0)
        FROM assignments a
        JOIN modules m ON m.id = a.module_id
        WHERE m.course_id = $1 AND ($2 = '' OR a.id <> $2)`
	var sum float64
	if err := sqlx.GetContext(ctx, r.db, &sum, query, courseID, excludeID); err != nil {
		return 0, fmt.Errorf("sum assignment weights: %w", err)
	}
	return sum, nil
}

// DueOn returns assignments in published courses whose deadline falls on the
// given calendar date.
func (r *AssignmentRepository) DueOn(ctx context.Context, date time.Time) ([]models.AssignmentDigest, error) {
	const query = `SELECT a.id, a.title, c.id AS course_id, c.title AS course_title
        FROM assignments a
        JOIN modules m ON m.id = a.module_id
        JOIN courses c ON c.id = m.course_id
        WHERE c.published = TRUE AND a.deadline::date = $1::date`
	var digests []models.AssignmentDigest
	if err := sqlx.SelectContext(ctx, r.db, &digests, query, date); err != nil {
		return nil, fmt.Errorf("list due assignments: %w", err)
	}
	return digests, nil
}
