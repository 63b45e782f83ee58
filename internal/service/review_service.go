package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lara-bellatin/awd-final/internal/models"
	appErrors "github.com/lara-bellatin/awd-final/pkg/errors"
)

type reviewRepo interface {
	Create(ctx context.Context, review *models.CourseReview) error
	Exists(ctx context.Context, studentID, courseID string) (bool, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.CourseReview, error)
}

type reviewEnrollmentReader interface {
	Find(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
}

// CreateReviewRequest is the payload for reviewing a course.
type CreateReviewRequest struct {
	CourseID string `json:"course_id" validate:"required"`
	Rating   int    `json:"rating" validate:"required,min=1,max=5"`
	Review   string `json:"review"`
}

// ReviewService manages course reviews. Only students who completed the
// course may review it, once each.
type ReviewService struct {
	reviews     reviewRepo
	enrollments reviewEnrollmentReader
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewReviewService constructs ReviewService.
func NewReviewService(reviews reviewRepo, enrollments reviewEnrollmentReader, validate *validator.Validate, logger *zap.Logger) *ReviewService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewService{reviews: reviews, enrollments: enrollments, validator: validate, logger: logger}
}

// Create stores the student's review of a completed course.
func (s *ReviewService) Create(ctx context.Context, studentID string, req CreateReviewRequest) (*models.CourseReview, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}

	enrollment, err := s.enrollments.Find(ctx, studentID, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotCompleted, "only students who have completed the course can review it")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrNotCompleted, "only students who have completed the course can review it")
	}

	exists, err := s.reviews.Exists(ctx, studentID, req.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check review")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrAlreadyReviewed, "student has already reviewed this course")
	}

	review := &models.CourseReview{StudentID: studentID, CourseID: req.CourseID, Rating: req.Rating}
	if req.Review != "" {
		review.Review = &req.Review
	}
	if err := s.reviews.Create(ctx, review); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create review")
	}
	return review, nil
}

// ListByCourse returns a course's reviews.
func (s *ReviewService) ListByCourse(ctx context.Context, courseID string) ([]models.CourseReview, error) {
	reviews, err := s.reviews.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reviews")
	}
	return reviews, nil
}
