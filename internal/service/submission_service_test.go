package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lara-bellatin/awd-final/internal/models"
	appErrors "github.com/lara-bellatin/awd-final/pkg/errors"
)

type mockSubmissionRepo struct {
	submissions map[string]*models.AssignmentSubmission
	tx          *stubTx
	createdInTx bool
	gradedInTx  bool
}

func (m *mockSubmissionRepo) Create(ctx context.Context, exec sqlx.ExtContext, submission *models.AssignmentSubmission) error {
	m.createdInTx = m.tx != nil && m.tx.open
	submission.ID = "submission-new"
	m.submissions[submission.ID] = submission
	return nil
}

func (m *mockSubmissionRepo) FindByID(ctx context.Context, id string) (*models.AssignmentSubmission, error) {
	s, ok := m.submissions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *s
	return &copied, nil
}

func (m *mockSubmissionRepo) FindByStudentAndAssignment(ctx context.Context, studentID, assignmentID string) (*models.AssignmentSubmission, error) {
	for _, s := range m.submissions {
		if s.StudentID == studentID && s.AssignmentID == assignmentID {
			copied := *s
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockSubmissionRepo) UpdateGrade(ctx context.Context, exec sqlx.ExtContext, id string, grade float64, feedback *string) error {
	m.gradedInTx = m.tx != nil && m.tx.open
	s, ok := m.submissions[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.Grade = &grade
	s.Feedback = feedback
	return nil
}

type mockAssignmentReader struct {
	assignments map[string]*models.Assignment
}

func (m *mockAssignmentReader) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	a, ok := m.assignments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return a, nil
}

type mockSubmissionObserver struct {
	submitted []string
	graded    []string
	gradeErr  error
}

func (m *mockSubmissionObserver) OnSubmissionCreated(ctx context.Context, tx *sqlx.Tx, studentID string, assignment *models.Assignment) (*ProgressSnapshot, error) {
	m.submitted = append(m.submitted, studentID)
	return &ProgressSnapshot{StudentID: studentID}, nil
}

func (m *mockSubmissionObserver) OnSubmissionGraded(ctx context.Context, tx *sqlx.Tx, studentID string, assignment *models.Assignment) (*ProgressSnapshot, error) {
	if m.gradeErr != nil {
		return nil, m.gradeErr
	}
	m.graded = append(m.graded, studentID)
	return &ProgressSnapshot{StudentID: studentID}, nil
}

func newSubmissionFixture() (*SubmissionService, *mockSubmissionRepo, *mockEnrollmentRepo, *mockSubmissionObserver) {
	tx := &stubTx{}
	repo := &mockSubmissionRepo{submissions: map[string]*models.AssignmentSubmission{}, tx: tx}
	assignments := &mockAssignmentReader{assignments: map[string]*models.Assignment{
		"assignment-1": {ID: "assignment-1", ModuleID: "module-1", Title: "Final Project", Weight: 100},
	}}
	courses := &mockCourseResolver{
		moduleCourses: map[string]*models.CourseRef{},
		assignmentCourses: map[string]*models.CourseRef{
			"assignment-1": {ID: "course-1", Title: "Intro to Go", TeacherID: "teacher-1", Published: true},
		},
	}
	enrollments := &mockEnrollmentRepo{enrollments: map[string]*models.Enrollment{
		pairKey("student-1", "course-1"): {
			ID: "enrollment-1", StudentID: "student-1", CourseID: "course-1",
			Status: models.EnrollmentStatusActive,
		},
	}}
	observer := &mockSubmissionObserver{}
	svc := NewSubmissionService(tx, repo, assignments, courses, enrollments, observer, nil, nil)
	return svc, repo, enrollments, observer
}

func TestSubmitCreatesSubmission(t *testing.T) {
	svc, _, _, observer := newSubmissionFixture()

	submission, err := svc.Submit(context.Background(), "student-1", "assignment-1")
	require.NoError(t, err)
	assert.Equal(t, "assignment-1", submission.AssignmentID)
	assert.Equal(t, []string{"student-1"}, observer.submitted)
}

func TestSubmitWritesInsideTransaction(t *testing.T) {
	svc, repo, _, _ := newSubmissionFixture()

	_, err := svc.Submit(context.Background(), "student-1", "assignment-1")
	require.NoError(t, err)

	// The submission row and the pipeline it triggers share one transaction.
	assert.True(t, repo.createdInTx)
	assert.Equal(t, 1, repo.tx.commits)
}

func TestSubmitTwiceConflicts(t *testing.T) {
	svc, _, _, _ := newSubmissionFixture()

	_, err := svc.Submit(context.Background(), "student-1", "assignment-1")
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), "student-1", "assignment-1")
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestSubmitRequiresActiveEnrollment(t *testing.T) {
	svc, _, enrollments, _ := newSubmissionFixture()
	enrollments.enrollments[pairKey("student-1", "course-1")].Status = models.EnrollmentStatusCanceled

	_, err := svc.Submit(context.Background(), "student-1", "assignment-1")
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestSubmitWithoutEnrollment(t *testing.T) {
	svc, _, _, _ := newSubmissionFixture()

	_, err := svc.Submit(context.Background(), "student-2", "assignment-1")
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrNotEnrolled.Code, appErr.Code)
}

func TestGradeNotifiesOnlyOnFirstGrade(t *testing.T) {
	svc, repo, _, observer := newSubmissionFixture()
	repo.submissions["submission-1"] = &models.AssignmentSubmission{
		ID: "submission-1", AssignmentID: "assignment-1", StudentID: "student-1",
	}

	_, err := svc.Grade(context.Background(), "teacher-1", "submission-1", GradeSubmissionRequest{Grade: 90})
	require.NoError(t, err)
	assert.Equal(t, []string{"student-1"}, observer.graded)

	// A regrade overwrites the value but stays silent.
	graded, err := svc.Grade(context.Background(), "teacher-1", "submission-1", GradeSubmissionRequest{Grade: 75, Feedback: "revised"})
	require.NoError(t, err)
	assert.Equal(t, 75.0, *graded.Grade)
	assert.Len(t, observer.graded, 1)
}

func TestGradeRollsBackWhenRecalculationFails(t *testing.T) {
	svc, repo, _, observer := newSubmissionFixture()
	repo.submissions["submission-1"] = &models.AssignmentSubmission{
		ID: "submission-1", AssignmentID: "assignment-1", StudentID: "student-1",
	}
	observer.gradeErr = errors.New("connection reset")

	_, err := svc.Grade(context.Background(), "teacher-1", "submission-1", GradeSubmissionRequest{Grade: 90})
	require.Error(t, err)

	// The grade write joined the aborted transaction, so nothing from the
	// failed pipeline survives and the teacher's retry re-fires the hook.
	assert.True(t, repo.gradedInTx)
	assert.Equal(t, 1, repo.tx.rollbacks)
	assert.Zero(t, repo.tx.commits)
	assert.Empty(t, observer.graded)

	// The real store discards the grade write on rollback.
	repo.submissions["submission-1"].Grade = nil

	observer.gradeErr = nil
	graded, err := svc.Grade(context.Background(), "teacher-1", "submission-1", GradeSubmissionRequest{Grade: 90})
	require.NoError(t, err)
	assert.Equal(t, 90.0, *graded.Grade)
	assert.Equal(t, []string{"student-1"}, observer.graded)
}

func TestGradeByNonOwnerForbidden(t *testing.T) {
	svc, repo, _, observer := newSubmissionFixture()
	repo.submissions["submission-1"] = &models.AssignmentSubmission{
		ID: "submission-1", AssignmentID: "assignment-1", StudentID: "student-1",
	}

	_, err := svc.Grade(context.Background(), "teacher-2", "submission-1", GradeSubmissionRequest{Grade: 90})
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
	assert.Empty(t, observer.graded)
}

func TestGradeOutOfRangeRejected(t *testing.T) {
	svc, repo, _, _ := newSubmissionFixture()
	repo.submissions["submission-1"] = &models.AssignmentSubmission{
		ID: "submission-1", AssignmentID: "assignment-1", StudentID: "student-1",
	}

	_, err := svc.Grade(context.Background(), "teacher-1", "submission-1", GradeSubmissionRequest{Grade: 101})
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}
