package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/lara-bellatin/awd-final/internal/models"
	appErrors "github.com/lara-bellatin/awd-final/pkg/errors"
)

type lifecycleEnrollmentRepo interface {
	LockForUpdate(ctx context.Context, exec sqlx.ExtContext, studentID, courseID string) (*models.Enrollment, error)
	MarkCompleted(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) (bool, error)
	SetFinalGrade(ctx context.Context, exec sqlx.ExtContext, id string, grade float64) (bool, error)
	RemoveForStudentInCourses(ctx context.Context, studentID string, courseIDs []string, at time.Time) (int64, error)
	ActiveStudentIDs(ctx context.Context, courseID string) ([]string, error)
}

type lifecycleCourseRepo interface {
	Ref(ctx context.Context, id string) (*models.CourseRef, error)
	LessonCourse(ctx context.Context, lessonID string) (*models.CourseRef, error)
	AssignmentCourse(ctx context.Context, assignmentID string) (*models.CourseRef, error)
	TeacherCourseIDs(ctx context.Context, teacherID string) ([]string, error)
	ItemCounts(ctx context.Context, exec sqlx.ExtContext, courseID string) (models.CourseItemCounts, error)
}

type lifecycleProgressRepo interface {
	CompletionCounts(ctx context.Context, exec sqlx.ExtContext, studentID, courseID string) (models.CompletionCounts, error)
}

type lifecycleSubmissionRepo interface {
	WeightedGrades(ctx context.Context, exec sqlx.ExtContext, studentID, courseID string) ([]models.WeightedGrade, error)
	SubmittedStudentIDs(ctx context.Context, assignmentID string) (map[string]bool, error)
}

type lifecycleAssignmentRepo interface {
	DueOn(ctx context.Context, date time.Time) ([]models.AssignmentDigest, error)
}

type lifecycleUserReader interface {
	UserName(ctx context.Context, id string) (string, error)
}

type transactor interface {
	InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

type notifier interface {
	Dispatch(ctx context.Context, exec sqlx.ExtContext, kind models.NotificationKind, userID, courseID, content string) error
}

type lifecycleMetrics interface {
	ObserveTransition(to models.EnrollmentStatus)
	ObserveRecalculation(duration time.Duration)
	ObserveSweep(notified int)
}

// ProgressSnapshot is the result of a lifecycle recalculation for one
// (student, course) pair.
type ProgressSnapshot struct {
	StudentID  string                  `json:"student_id"`
	CourseID   string                  `json:"course_id"`
	Progress   float64                 `json:"progress"`
	Status     models.EnrollmentStatus `json:"status"`
	FinalGrade *float64                `json:"final_grade,omitempty"`
}

// LifecycleService drives enrollments through their state machine. Every
// trigger funnels into Recalculate, which serializes on the enrollment row
// so concurrent triggers for the same pair cannot interleave.
type LifecycleService struct {
	tx          transactor
	enrollments lifecycleEnrollmentRepo
	courses     lifecycleCourseRepo
	progress    lifecycleProgressRepo
	submissions lifecycleSubmissionRepo
	assignments lifecycleAssignmentRepo
	users       lifecycleUserReader
	notifier    notifier
	metrics     lifecycleMetrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewLifecycleService constructs LifecycleService. metrics may be nil.
func NewLifecycleService(tx transactor, enrollments lifecycleEnrollmentRepo, courses lifecycleCourseRepo, progress lifecycleProgressRepo, submissions lifecycleSubmissionRepo, assignments lifecycleAssignmentRepo, users lifecycleUserReader, notifier notifier, metrics lifecycleMetrics, logger *zap.Logger) *LifecycleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleService{
		tx:          tx,
		enrollments: enrollments,
		courses:     courses,
		progress:    progress,
		submissions: submissions,
		assignments: assignments,
		users:       users,
		notifier:    notifier,
		metrics:     metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Recalculate recomputes progress for the pair, completes the enrollment
// when progress reaches 100 and aggregates the final grade once completed.
// A student with no enrollment in the course is a silent no-op and yields a
// nil snapshot. The whole pipeline runs in one transaction holding a row
// lock on the enrollment.
func (s *LifecycleService) Recalculate(ctx context.Context, studentID, courseID string) (*ProgressSnapshot, error) {
	course, err := s.courses.Ref(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	var snapshot *ProgressSnapshot
	err = s.tx.InTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		snapshot, err = s.recalculate(ctx, tx, course, studentID)
		return err
	})
	if err != nil {
		return nil, recalcError(err)
	}
	return snapshot, nil
}

// recalculate is the pipeline body: progress, completion, grade aggregation
// and their notifications, all against the caller's transaction while the
// enrollment row stays locked. Trigger hooks join it with the transaction
// that carries their originating write so the whole mutation commits or
// rolls back as a unit. A missing enrollment yields a nil snapshot.
func (s *LifecycleService) recalculate(ctx context.Context, tx *sqlx.Tx, course *models.CourseRef, studentID string) (*ProgressSnapshot, error) {
	started := s.now()
	enrollment, err := s.enrollments.LockForUpdate(ctx, tx, studentID, course.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("lock enrollment: %w", err)
	}

	counts, err := s.progress.CompletionCounts(ctx, tx, studentID, course.ID)
	if err != nil {
		return nil, err
	}
	items, err := s.courses.ItemCounts(ctx, tx, course.ID)
	if err != nil {
		return nil, err
	}
	percent := progressPercent(counts.Total(), items.Total())

	if percent == 100 && enrollment.Status == models.EnrollmentStatusActive {
		completed, err := s.enrollments.MarkCompleted(ctx, tx, enrollment.ID, s.now())
		if err != nil {
			return nil, err
		}
		if completed {
			enrollment.Status = models.EnrollmentStatusCompleted
			if s.metrics != nil {
				s.metrics.ObserveTransition(models.EnrollmentStatusCompleted)
			}
			message := fmt.Sprintf("You have completed the course %s", course.Title)
			if err := s.notifier.Dispatch(ctx, tx, models.NotificationCourseCompleted, studentID, course.ID, message); err != nil {
				return nil, err
			}
		}
	}

	if enrollment.Status == models.EnrollmentStatusCompleted && enrollment.FinalGrade == nil {
		grades, err := s.submissions.WeightedGrades(ctx, tx, studentID, course.ID)
		if err != nil {
			return nil, err
		}
		if final := aggregateFinalGrade(grades); final != nil {
			set, err := s.enrollments.SetFinalGrade(ctx, tx, enrollment.ID, *final)
			if err != nil {
				return nil, err
			}
			if set {
				enrollment.FinalGrade = final
				message := fmt.Sprintf("Final grade for course %s has been updated", course.Title)
				if err := s.notifier.Dispatch(ctx, tx, models.NotificationFinalGradeUpdated, studentID, course.ID, message); err != nil {
					return nil, err
				}
			}
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveRecalculation(s.now().Sub(started))
	}
	return &ProgressSnapshot{
		StudentID:  studentID,
		CourseID:   course.ID,
		Progress:   percent,
		Status:     enrollment.Status,
		FinalGrade: enrollment.FinalGrade,
	}, nil
}

// recalcError keeps typed domain errors intact and wraps everything else.
func recalcError(err error) error {
	if appErr, ok := err.(*appErrors.Error); ok {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to recalculate enrollment")
}

// Progress computes the current progress snapshot without taking the row
// lock or mutating anything.
func (s *LifecycleService) Progress(ctx context.Context, studentID, courseID string) (*ProgressSnapshot, error) {
	enrollment, err := s.enrollments.LockForUpdate(ctx, nil, studentID, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "student is not enrolled in this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	counts, err := s.progress.CompletionCounts(ctx, nil, studentID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count completions")
	}
	items, err := s.courses.ItemCounts(ctx, nil, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count course items")
	}
	return &ProgressSnapshot{
		StudentID:  studentID,
		CourseID:   courseID,
		Progress:   progressPercent(counts.Total(), items.Total()),
		Status:     enrollment.Status,
		FinalGrade: enrollment.FinalGrade,
	}, nil
}

// OnLessonProgressChanged reacts to a student marking a lesson complete or
// incomplete. It joins the caller's transaction so the lesson mark and any
// resulting transition commit together.
func (s *LifecycleService) OnLessonProgressChanged(ctx context.Context, tx *sqlx.Tx, studentID, lessonID string) (*ProgressSnapshot, error) {
	course, err := s.courses.LessonCourse(ctx, lessonID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve lesson course")
	}
	snapshot, err := s.recalculate(ctx, tx, course, studentID)
	if err != nil {
		return nil, recalcError(err)
	}
	return snapshot, nil
}

// OnSubmissionCreated notifies the course teacher of the new submission and
// recomputes the student's standing, all inside the caller's transaction
// alongside the submission row itself.
func (s *LifecycleService) OnSubmissionCreated(ctx context.Context, tx *sqlx.Tx, studentID string, assignment *models.Assignment) (*ProgressSnapshot, error) {
	course, err := s.courses.AssignmentCourse(ctx, assignment.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve assignment course")
	}
	studentName, err := s.users.UserName(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	message := fmt.Sprintf("%s has submitted assignment %s", studentName, assignment.Title)
	if err := s.notifier.Dispatch(ctx, tx, models.NotificationSubmissionCreated, course.TeacherID, course.ID, message); err != nil {
		return nil, err
	}
	snapshot, err := s.recalculate(ctx, tx, course, studentID)
	if err != nil {
		return nil, recalcError(err)
	}
	return snapshot, nil
}

// OnSubmissionGraded notifies the student and recomputes their standing; a
// 100 percent enrollment completed earlier picks up its final grade here.
// The graded notification fires even when the student is no longer enrolled.
// Everything joins the caller's transaction together with the grade write,
// so a failed recalculation leaves the grade unset and the teacher retries.
func (s *LifecycleService) OnSubmissionGraded(ctx context.Context, tx *sqlx.Tx, studentID string, assignment *models.Assignment) (*ProgressSnapshot, error) {
	course, err := s.courses.AssignmentCourse(ctx, assignment.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve assignment course")
	}
	message := fmt.Sprintf("Assignment submission for %s has been graded", assignment.Title)
	if err := s.notifier.Dispatch(ctx, tx, models.NotificationSubmissionGraded, studentID, course.ID, message); err != nil {
		return nil, err
	}
	snapshot, err := s.recalculate(ctx, tx, course, studentID)
	if err != nil {
		return nil, recalcError(err)
	}
	return snapshot, nil
}

// OnEnrollmentCreated notifies the course teacher of the new enrollment. The
// notification joins the caller's transaction so it never outlives a rolled
// back enrollment insert.
func (s *LifecycleService) OnEnrollmentCreated(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error {
	course, err := s.courses.Ref(ctx, enrollment.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	studentName, err := s.users.UserName(ctx, enrollment.StudentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if s.metrics != nil {
		s.metrics.ObserveTransition(models.EnrollmentStatusActive)
	}
	message := fmt.Sprintf("%s has enrolled in course %s", studentName, course.Title)
	return s.notifier.Dispatch(ctx, tx, models.NotificationEnrollmentCreated, course.TeacherID, course.ID, message)
}

// OnEnrollmentStatusChanged records an explicit enrollment transition that
// happened outside the recalculation pipeline, such as a cancellation.
func (s *LifecycleService) OnEnrollmentStatusChanged(ctx context.Context, enrollment *models.Enrollment, to models.EnrollmentStatus) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(to)
	}
	s.logger.Info("enrollment transitioned",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", enrollment.StudentID),
		zap.String("course_id", enrollment.CourseID),
		zap.String("to", string(to)))
}

// OnUserBlocked removes every enrollment the blocked student holds in the
// blocking teacher's courses, regardless of prior status. Blocks by
// non-teachers carry no enrollment consequences.
func (s *LifecycleService) OnUserBlocked(ctx context.Context, blockedUserID, blockedByID string) (int64, error) {
	courseIDs, err := s.courses.TeacherCourseIDs(ctx, blockedByID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teacher courses")
	}
	if len(courseIDs) == 0 {
		return 0, nil
	}
	removed, err := s.enrollments.RemoveForStudentInCourses(ctx, blockedUserID, courseIDs, s.now())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove enrollments")
	}
	if removed > 0 && s.metrics != nil {
		s.metrics.ObserveTransition(models.EnrollmentStatusRemoved)
	}
	s.logger.Info("enrollments removed after block",
		zap.String("blocked_user_id", blockedUserID),
		zap.String("blocked_by_id", blockedByID),
		zap.Int64("removed", removed))
	return removed, nil
}
