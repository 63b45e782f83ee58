package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/lara-bellatin/awd-final/internal/models"
	appErrors "github.com/lara-bellatin/awd-final/pkg/errors"
)

type enrollmentRepo interface {
	Find(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error
	Reactivate(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string, at time.Time) (bool, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
}

type enrollmentCourseReader interface {
	Ref(ctx context.Context, id string) (*models.CourseRef, error)
}

type enrollmentBlockReader interface {
	BlockExists(ctx context.Context, blockedUserID, blockedByID string) (bool, error)
}

type enrollmentObserver interface {
	OnEnrollmentCreated(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error
	OnEnrollmentStatusChanged(ctx context.Context, enrollment *models.Enrollment, to models.EnrollmentStatus)
}

// EnrollmentService manages explicit enrollment transitions: enroll,
// re-enroll and cancel. Progress-driven transitions belong to the lifecycle
// engine.
type EnrollmentService struct {
	tx          transactor
	enrollments enrollmentRepo
	courses     enrollmentCourseReader
	blocks      enrollmentBlockReader
	lifecycle   enrollmentObserver
	logger      *zap.Logger
	now         func() time.Time
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(tx transactor, enrollments enrollmentRepo, courses enrollmentCourseReader, blocks enrollmentBlockReader, lifecycle enrollmentObserver, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		tx:          tx,
		enrollments: enrollments,
		courses:     courses,
		blocks:      blocks,
		lifecycle:   lifecycle,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Enroll enrolls the student in a published course. A Canceled enrollment is
// reactivated in place, keeping its original activation timestamp and
// without re-notifying the teacher; a Completed one cannot be re-entered.
func (s *EnrollmentService) Enroll(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	course, err := s.courses.Ref(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !course.Published {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course is not open for enrollment")
	}

	blocked, err := s.blocks.BlockExists(ctx, studentID, course.TeacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check block")
	}
	if blocked {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment is not permitted in this course")
	}

	existing, err := s.enrollments.Find(ctx, studentID, courseID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	if existing != nil {
		switch existing.Status {
		case models.EnrollmentStatusActive:
			return nil, appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this course")
		case models.EnrollmentStatusCompleted:
			return nil, appErrors.Clone(appErrors.ErrAlreadyCompleted, "the student has already completed this course")
		case models.EnrollmentStatusRemoved:
			return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment is not permitted in this course")
		case models.EnrollmentStatusCanceled:
			if err := s.enrollments.Reactivate(ctx, existing.ID); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reactivate enrollment")
			}
			existing.Status = models.EnrollmentStatusActive
			// No record is created, so the enrollment-created notification
			// does not fire again.
			s.lifecycle.OnEnrollmentStatusChanged(ctx, existing, models.EnrollmentStatusActive)
			return existing, nil
		}
	}

	enrollment := &models.Enrollment{
		StudentID:   studentID,
		CourseID:    courseID,
		Status:      models.EnrollmentStatusActive,
		ActivatedOn: s.now(),
	}
	err = s.tx.InTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.enrollments.Create(ctx, tx, enrollment); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
		}
		return s.lifecycle.OnEnrollmentCreated(ctx, tx, enrollment)
	})
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	return enrollment, nil
}

// Cancel moves the student's Active enrollment to Canceled.
func (s *EnrollmentService) Cancel(ctx context.Context, studentID, courseID string) error {
	enrollment, err := s.enrollments.Find(ctx, studentID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotEnrolled, "student is not enrolled in this course")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return appErrors.Clone(appErrors.ErrConflict, "only active enrollments can be canceled")
	}
	canceled, err := s.enrollments.Cancel(ctx, enrollment.ID, s.now())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel enrollment")
	}
	if !canceled {
		return appErrors.Clone(appErrors.ErrConflict, "enrollment is no longer active")
	}
	s.lifecycle.OnEnrollmentStatusChanged(ctx, enrollment, models.EnrollmentStatusCanceled)
	return nil
}

// Get returns the student's enrollment in a course.
func (s *EnrollmentService) Get(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.Find(ctx, studentID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "student is not enrolled in this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// List returns enrollments matching the filter with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}
