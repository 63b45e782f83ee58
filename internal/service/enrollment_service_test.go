package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lara-bellatin/awd-final/internal/models"
	appErrors "github.com/lara-bellatin/awd-final/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments map[string]*models.Enrollment
	reactivated []string
	canceled    []string
}

func (m *mockEnrollmentRepo) Find(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	e, ok := m.enrollments[pairKey(studentID, courseID)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return e, nil
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	enrollment.ID = "enrollment-new"
	m.enrollments[pairKey(enrollment.StudentID, enrollment.CourseID)] = enrollment
	return nil
}

func (m *mockEnrollmentRepo) Reactivate(ctx context.Context, id string) error {
	m.reactivated = append(m.reactivated, id)
	for _, e := range m.enrollments {
		if e.ID == id {
			e.Status = models.EnrollmentStatusActive
		}
	}
	return nil
}

func (m *mockEnrollmentRepo) Cancel(ctx context.Context, id string, at time.Time) (bool, error) {
	for _, e := range m.enrollments {
		if e.ID != id || e.Status != models.EnrollmentStatusActive {
			continue
		}
		e.Status = models.EnrollmentStatusCanceled
		canceledAt := at
		e.CanceledOn = &canceledAt
		m.canceled = append(m.canceled, id)
		return true, nil
	}
	return false, nil
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

type mockCourseReader struct {
	refs map[string]*models.CourseRef
}

func (m *mockCourseReader) Ref(ctx context.Context, id string) (*models.CourseRef, error) {
	ref, ok := m.refs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return ref, nil
}

type mockBlockReader struct {
	blocks map[string]bool
}

func (m *mockBlockReader) BlockExists(ctx context.Context, blockedUserID, blockedByID string) (bool, error) {
	return m.blocks[pairKey(blockedUserID, blockedByID)], nil
}

type mockEnrollmentObserver struct {
	created     []*models.Enrollment
	transitions []models.EnrollmentStatus
}

func (m *mockEnrollmentObserver) OnEnrollmentCreated(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error {
	m.created = append(m.created, enrollment)
	return nil
}

func (m *mockEnrollmentObserver) OnEnrollmentStatusChanged(ctx context.Context, enrollment *models.Enrollment, to models.EnrollmentStatus) {
	m.transitions = append(m.transitions, to)
}

func newEnrollmentFixture() (*EnrollmentService, *mockEnrollmentRepo, *mockBlockReader, *mockEnrollmentObserver) {
	repo := &mockEnrollmentRepo{enrollments: map[string]*models.Enrollment{}}
	courses := &mockCourseReader{refs: map[string]*models.CourseRef{
		"course-1": {ID: "course-1", Title: "Intro to Go", TeacherID: "teacher-1", Published: true},
		"course-2": {ID: "course-2", Title: "Draft Course", TeacherID: "teacher-1", Published: false},
	}}
	blocks := &mockBlockReader{blocks: map[string]bool{}}
	observer := &mockEnrollmentObserver{}
	return NewEnrollmentService(&stubTx{}, repo, courses, blocks, observer, nil), repo, blocks, observer
}

func TestEnrollCreatesActiveEnrollment(t *testing.T) {
	svc, repo, _, observer := newEnrollmentFixture()

	enrollment, err := svc.Enroll(context.Background(), "student-1", "course-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	assert.False(t, enrollment.ActivatedOn.IsZero())
	require.Len(t, observer.created, 1)
	assert.Contains(t, repo.enrollments, pairKey("student-1", "course-1"))
}

func TestEnrollUnpublishedCourse(t *testing.T) {
	svc, _, _, _ := newEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), "student-1", "course-2")
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestEnrollBlockedStudent(t *testing.T) {
	svc, _, blocks, observer := newEnrollmentFixture()
	blocks.blocks[pairKey("student-1", "teacher-1")] = true

	_, err := svc.Enroll(context.Background(), "student-1", "course-1")
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
	assert.Empty(t, observer.created)
}

func TestEnrollActiveConflict(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture()
	repo.enrollments[pairKey("student-1", "course-1")] = &models.Enrollment{
		ID: "enrollment-1", StudentID: "student-1", CourseID: "course-1",
		Status: models.EnrollmentStatusActive,
	}

	_, err := svc.Enroll(context.Background(), "student-1", "course-1")
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestEnrollCompletedCourse(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture()
	repo.enrollments[pairKey("student-1", "course-1")] = &models.Enrollment{
		ID: "enrollment-1", StudentID: "student-1", CourseID: "course-1",
		Status: models.EnrollmentStatusCompleted,
	}

	_, err := svc.Enroll(context.Background(), "student-1", "course-1")
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrAlreadyCompleted.Code, appErr.Code)
}

func TestEnrollRemovedStudentForbidden(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture()
	repo.enrollments[pairKey("student-1", "course-1")] = &models.Enrollment{
		ID: "enrollment-1", StudentID: "student-1", CourseID: "course-1",
		Status: models.EnrollmentStatusRemoved,
	}

	_, err := svc.Enroll(context.Background(), "student-1", "course-1")
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestReEnrollReactivatesPreservingActivation(t *testing.T) {
	svc, repo, _, observer := newEnrollmentFixture()
	activated := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	canceled := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	repo.enrollments[pairKey("student-1", "course-1")] = &models.Enrollment{
		ID: "enrollment-1", StudentID: "student-1", CourseID: "course-1",
		Status:      models.EnrollmentStatusCanceled,
		ActivatedOn: activated,
		CanceledOn:  &canceled,
	}

	enrollment, err := svc.Enroll(context.Background(), "student-1", "course-1")
	require.NoError(t, err)

	assert.Equal(t, "enrollment-1", enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	// Reactivation keeps the original activation timestamp.
	assert.Equal(t, activated, enrollment.ActivatedOn)
	assert.Equal(t, []string{"enrollment-1"}, repo.reactivated)
	// No record is created, so the teacher is not notified again; the
	// transition is still observed.
	assert.Empty(t, observer.created)
	assert.Equal(t, []models.EnrollmentStatus{models.EnrollmentStatusActive}, observer.transitions)
}

func TestCancelActiveEnrollment(t *testing.T) {
	svc, repo, _, observer := newEnrollmentFixture()
	repo.enrollments[pairKey("student-1", "course-1")] = &models.Enrollment{
		ID: "enrollment-1", StudentID: "student-1", CourseID: "course-1",
		Status: models.EnrollmentStatusActive,
	}

	err := svc.Cancel(context.Background(), "student-1", "course-1")
	require.NoError(t, err)

	e := repo.enrollments[pairKey("student-1", "course-1")]
	assert.Equal(t, models.EnrollmentStatusCanceled, e.Status)
	assert.NotNil(t, e.CanceledOn)
	assert.Equal(t, []models.EnrollmentStatus{models.EnrollmentStatusCanceled}, observer.transitions)
}

func TestCancelNonActiveEnrollment(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture()
	repo.enrollments[pairKey("student-1", "course-1")] = &models.Enrollment{
		ID: "enrollment-1", StudentID: "student-1", CourseID: "course-1",
		Status: models.EnrollmentStatusCompleted,
	}

	err := svc.Cancel(context.Background(), "student-1", "course-1")
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestCancelWithoutEnrollment(t *testing.T) {
	svc, _, _, _ := newEnrollmentFixture()

	err := svc.Cancel(context.Background(), "student-1", "course-1")
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrNotEnrolled.Code, appErr.Code)
}
