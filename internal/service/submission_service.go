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

type submissionRepo interface {
	Create(ctx context.Context, exec sqlx.ExtContext, submission *models.AssignmentSubmission) error
	FindByID(ctx context.Context, id string) (*models.AssignmentSubmission, error)
	FindByStudentAndAssignment(ctx context.Context, studentID, assignmentID string) (*models.AssignmentSubmission, error)
	UpdateGrade(ctx context.Context, exec sqlx.ExtContext, id string, grade float64, feedback *string) error
}

type submissionAssignmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
}

type submissionCourseResolver interface {
	AssignmentCourse(ctx context.Context, assignmentID string) (*models.CourseRef, error)
}

type submissionEnrollmentReader interface {
	Find(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
}

type submissionObserver interface {
	OnSubmissionCreated(ctx context.Context, tx *sqlx.Tx, studentID string, assignment *models.Assignment) (*ProgressSnapshot, error)
	OnSubmissionGraded(ctx context.Context, tx *sqlx.Tx, studentID string, assignment *models.Assignment) (*ProgressSnapshot, error)
}

// GradeSubmissionRequest is the payload for grading a submission.
type GradeSubmissionRequest struct {
	Grade    float64 `json:"grade" validate:"gte=0,lte=100"`
	Feedback string  `json:"feedback"`
}

// SubmissionService manages assignment submissions and grading. Writes and
// the lifecycle pipeline they trigger share one transaction.
type SubmissionService struct {
	tx          transactor
	submissions submissionRepo
	assignments submissionAssignmentReader
	courses     submissionCourseResolver
	enrollments submissionEnrollmentReader
	lifecycle   submissionObserver
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewSubmissionService constructs SubmissionService.
func NewSubmissionService(tx transactor, submissions submissionRepo, assignments submissionAssignmentReader, courses submissionCourseResolver, enrollments submissionEnrollmentReader, lifecycle submissionObserver, validate *validator.Validate, logger *zap.Logger) *SubmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{
		tx:          tx,
		submissions: submissions,
		assignments: assignments,
		courses:     courses,
		enrollments: enrollments,
		lifecycle:   lifecycle,
		validator:   validate,
		logger:      logger,
	}
}

// Submit records the student's submission for an assignment. One submission
// per (student, assignment); the student must be actively enrolled.
func (s *SubmissionService) Submit(ctx context.Context, studentID, assignmentID string) (*models.AssignmentSubmission, error) {
	assignment, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	course, err := s.courses.AssignmentCourse(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve assignment course")
	}

	enrollment, err := s.enrollments.Find(ctx, studentID, course.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "student is not enrolled in this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only actively enrolled students can submit")
	}

	if _, err := s.submissions.FindByStudentAndAssignment(ctx, studentID, assignmentID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "assignment already submitted")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check submission")
	}

	submission := &models.AssignmentSubmission{AssignmentID: assignmentID, StudentID: studentID}
	err = s.tx.InTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.submissions.Create(ctx, tx, submission); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submission")
		}
		_, err := s.lifecycle.OnSubmissionCreated(ctx, tx, studentID, assignment)
		return err
	})
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	return submission, nil
}

// Grade stores a grade on a submission. Only the course teacher may grade.
// A regrade overwrites the value without re-notifying the student; the final
// grade is write-once, so a regrade never changes a completed course's
// aggregate. The grade write, the notification and any lifecycle transition
// commit in one transaction, so a failed recalculation leaves the submission
// ungraded and the teacher can retry.
func (s *SubmissionService) Grade(ctx context.Context, teacherID, submissionID string, req GradeSubmissionRequest) (*models.AssignmentSubmission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	submission, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	assignment, err := s.assignments.FindByID(ctx, submission.AssignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	course, err := s.courses.AssignmentCourse(ctx, submission.AssignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve assignment course")
	}
	if course.TeacherID != teacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the course teacher can grade submissions")
	}

	var feedback *string
	if req.Feedback != "" {
		feedback = &req.Feedback
	}
	firstGrade := submission.Grade == nil
	err = s.tx.InTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.submissions.UpdateGrade(ctx, tx, submissionID, req.Grade, feedback); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grade submission")
		}
		if firstGrade {
			if _, err := s.lifecycle.OnSubmissionGraded(ctx, tx, submission.StudentID, assignment); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	submission.Grade = &req.Grade
	submission.Feedback = feedback
	return submission, nil
}

// Get returns the student's submission for an assignment.
func (s *SubmissionService) Get(ctx context.Context, studentID, assignmentID string) (*models.AssignmentSubmission, error) {
	submission, err := s.submissions.FindByStudentAndAssignment(ctx, studentID, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return submission, nil
}
