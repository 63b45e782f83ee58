package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lara-bellatin/awd-final/internal/models"
)

// ReviewRepository handles persistence of course reviews.
type ReviewRepository struct {
	db *sqlx.DB
}

// NewReviewRepository constructs the repository.
func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create persists a new review.
func (r *ReviewRepository) Create(ctx context.Context, review *models.CourseReview) error {
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO course_reviews (id, student_id, course_id, rating, review, created_at)
        VALUES (:id, :student_id, :course_id, :rating, :review, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, review); err != nil {
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}

// Exists reports whether the student already reviewed the course.
func (r *ReviewRepository) Exists(ctx context.Context, studentID, courseID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM course_reviews WHERE student_id = $1 AND course_id = $2)`
	var exists bool
	if err := sqlx.GetContext(ctx, r.db, &exists, query, studentID, courseID); err != nil {
		return false, fmt.Errorf("check review: %w", err)
	}
	return exists, nil
}

// ListByCourse returns a course's reviews, newest first.
func (r *ReviewRepository) ListByCourse(ctx context.Context, courseID string) ([]models.CourseReview, error) {
	const query = `SELECT id, student_id, course_id, rating, review, created_at
        FROM course_reviews WHERE course_id = $1 ORDER BY created_at DESC`
	var reviews []models.CourseReview
	if err := sqlx.SelectContext(ctx, r.db, &reviews, query, courseID); err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}
