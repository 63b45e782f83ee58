package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/lara-bellatin/awd-final/internal/models"
	appErrors "github.com/lara-bellatin/awd-final/pkg/errors"
)

type progressWriter interface {
	UpsertLessonProgress(ctx context.Context, exec sqlx.ExtContext, progress *models.LessonProgress) error
	CreateStatusUpdate(ctx context.Context, update *models.StatusUpdate) error
	ListStatusUpdates(ctx context.Context, studentID, courseID string) ([]models.StatusUpdate, error)
}

type progressCourseResolver interface {
	LessonCourse(ctx context.Context, lessonID string) (*models.CourseRef, error)
}

type progressEnrollmentReader interface {
	Find(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
}

type progressObserver interface {
	OnLessonProgressChanged(ctx context.Context, tx *sqlx.Tx, studentID, lessonID string) (*ProgressSnapshot, error)
	Progress(ctx context.Context, studentID, courseID string) (*ProgressSnapshot, error)
}

// PostStatusUpdateRequest is the payload for posting a status update.
type PostStatusUpdateRequest struct {
	CourseID string `json:"course_id" validate:"required"`
	Text     string `json:"text" validate:"required,max=2000"`
}

// ProgressService handles lesson completion marks and student status
// updates.
type ProgressService struct {
	tx          transactor
	progress    progressWriter
	courses     progressCourseResolver
	enrollments progressEnrollmentReader
	lifecycle   progressObserver
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewProgressService constructs ProgressService.
func NewProgressService(tx transactor, progress progressWriter, courses progressCourseResolver, enrollments progressEnrollmentReader, lifecycle progressObserver, validate *validator.Validate, logger *zap.Logger) *ProgressService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressService{
		tx:          tx,
		progress:    progress,
		courses:     courses,
		enrollments: enrollments,
		lifecycle:   lifecycle,
		validator:   validate,
		logger:      logger,
	}
}

// MarkLesson records the student's completion mark for a lesson and
// recomputes their standing in the owning course. The mark and the
// recalculation share one transaction.
func (s *ProgressService) MarkLesson(ctx context.Context, studentID, lessonID string, completed bool) (*ProgressSnapshot, error) {
	course, err := s.courses.LessonCourse(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve lesson course")
	}

	enrollment, err := s.enrollments.Find(ctx, studentID, course.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "student is not enrolled in this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only actively enrolled students can mark lessons")
	}

	mark := &models.LessonProgress{StudentID: studentID, LessonID: lessonID, Completed: completed}
	var snapshot *ProgressSnapshot
	err = s.tx.InTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.progress.UpsertLessonProgress(ctx, tx, mark); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save lesson progress")
		}
		var err error
		snapshot, err = s.lifecycle.OnLessonProgressChanged(ctx, tx, studentID, lessonID)
		return err
	})
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	return snapshot, nil
}

// PostStatusUpdate publishes a student's status update on a course,
// snapshotting the computed progress at posting time.
func (s *ProgressService) PostStatusUpdate(ctx context.Context, studentID string, req PostStatusUpdateRequest) (*models.StatusUpdate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status update payload")
	}

	snapshot, err := s.lifecycle.Progress(ctx, studentID, req.CourseID)
	if err != nil {
		return nil, err
	}

	update := &models.StatusUpdate{
		StudentID:      studentID,
		CourseID:       req.CourseID,
		CourseProgress: snapshot.Progress,
		Text:           req.Text,
	}
	if err := s.progress.CreateStatusUpdate(ctx, update); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create status update")
	}
	return update, nil
}

// ListStatusUpdates returns the student's status updates for a course.
func (s *ProgressService) ListStatusUpdates(ctx context.Context, studentID, courseID string) ([]models.StatusUpdate, error) {
	updates, err := s.progress.ListStatusUpdates(ctx, studentID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list status updates")
	}
	return updates, nil
}
