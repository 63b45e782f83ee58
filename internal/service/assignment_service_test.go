package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lara-bellatin/awd-final/internal/models"
	appErrors "github.com/lara-bellatin/awd-final/pkg/errors"
)

type mockAssignmentRepo struct {
	assignments map[string]*models.Assignment
	// weight sums keyed by courseID|excludeID
	weights map[string]float64
	created []*models.Assignment
}

func (m *mockAssignmentRepo) Create(ctx context.Context, assignment *models.Assignment) error {
	assignment.ID = "assignment-new"
	m.created = append(m.created, assignment)
	return nil
}

func (m *mockAssignmentRepo) Update(ctx context.Context, assignment *models.Assignment) error {
	m.assignments[assignment.ID] = assignment
	return nil
}

func (m *mockAssignmentRepo) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	a, ok := m.assignments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *a
	return &copied, nil
}

func (m *mockAssignmentRepo) ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error) {
	var out []models.Assignment
	for _, a := range m.assignments {
		out = append(out, *a)
	}
	return out, nil
}

func (m *mockAssignmentRepo) SumWeights(ctx context.Context, courseID, excludeID string) (float64, error) {
	return m.weights[courseID+"|"+excludeID], nil
}

type mockCourseResolver struct {
	moduleCourses     map[string]*models.CourseRef
	assignmentCourses map[string]*models.CourseRef
}

func (m *mockCourseResolver) ModuleCourse(ctx context.Context, moduleID string) (*models.CourseRef, error) {
	ref, ok := m.moduleCourses[moduleID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return ref, nil
}

func (m *mockCourseResolver) AssignmentCourse(ctx context.Context, assignmentID string) (*models.CourseRef, error) {
	ref, ok := m.assignmentCourses[assignmentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return ref, nil
}

func newAssignmentFixture() (*AssignmentService, *mockAssignmentRepo, *mockCourseResolver) {
	repo := &mockAssignmentRepo{
		assignments: map[string]*models.Assignment{},
		weights:     map[string]float64{},
	}
	courses := &mockCourseResolver{
		moduleCourses: map[string]*models.CourseRef{
			"module-1": {ID: "course-1", Title: "Intro to Go", TeacherID: "teacher-1", Published: true},
		},
		assignmentCourses: map[string]*models.CourseRef{},
	}
	return NewAssignmentService(repo, courses, nil, nil), repo, courses
}

func TestCreateAssignmentWithinBudget(t *testing.T) {
	svc, repo, _ := newAssignmentFixture()
	repo.weights["course-1|"] = 60

	assignment, err := svc.Create(context.Background(), "teacher-1", CreateAssignmentRequest{
		ModuleID: "module-1",
		Title:    "Quiz",
		Weight:   40,
	})
	require.NoError(t, err)
	assert.Equal(t, 40.0, assignment.Weight)
	require.Len(t, repo.created, 1)
}

func TestCreateAssignmentOverweightReportsRemainingBudget(t *testing.T) {
	svc, repo, _ := newAssignmentFixture()
	repo.weights["course-1|"] = 60

	_, err := svc.Create(context.Background(), "teacher-1", CreateAssignmentRequest{
		ModuleID: "module-1",
		Title:    "Quiz",
		Weight:   50,
	})
	require.Error(t, err)

	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrOverweightCourse.Code, appErr.Code)
	assert.Equal(t, "Max weight for this assignment is 40.00%", appErr.Message)
	assert.Empty(t, repo.created)
}

func TestCreateAssignmentExactBudgetAccepted(t *testing.T) {
	svc, repo, _ := newAssignmentFixture()
	repo.weights["course-1|"] = 60

	_, err := svc.Create(context.Background(), "teacher-1", CreateAssignmentRequest{
		ModuleID: "module-1",
		Title:    "Quiz",
		Weight:   40,
	})
	require.NoError(t, err)
}

func TestCreateAssignmentNonOwnerForbidden(t *testing.T) {
	svc, _, _ := newAssignmentFixture()

	_, err := svc.Create(context.Background(), "teacher-2", CreateAssignmentRequest{
		ModuleID: "module-1",
		Title:    "Quiz",
		Weight:   10,
	})
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestCreateAssignmentUnknownModule(t *testing.T) {
	svc, _, _ := newAssignmentFixture()

	_, err := svc.Create(context.Background(), "teacher-1", CreateAssignmentRequest{
		ModuleID: "missing",
		Title:    "Quiz",
		Weight:   10,
	})
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestUpdateAssignmentExcludesOwnWeight(t *testing.T) {
	svc, repo, courses := newAssignmentFixture()
	repo.assignments["assignment-1"] = &models.Assignment{ID: "assignment-1", ModuleID: "module-1", Title: "Quiz", Weight: 60}
	courses.assignmentCourses["assignment-1"] = courses.moduleCourses["module-1"]
	// Other assignments in the course sum to 30 once assignment-1 is excluded.
	repo.weights["course-1|assignment-1"] = 30

	assignment, err := svc.Update(context.Background(), "teacher-1", "assignment-1", UpdateAssignmentRequest{
		Title:  "Quiz v2",
		Weight: 70,
	})
	require.NoError(t, err)
	assert.Equal(t, 70.0, assignment.Weight)
	assert.Equal(t, "Quiz v2", assignment.Title)
}

func TestUpdateAssignmentOverweight(t *testing.T) {
	svc, repo, courses := newAssignmentFixture()
	repo.assignments["assignment-1"] = &models.Assignment{ID: "assignment-1", ModuleID: "module-1", Title: "Quiz", Weight: 60}
	courses.assignmentCourses["assignment-1"] = courses.moduleCourses["module-1"]
	repo.weights["course-1|assignment-1"] = 30

	_, err := svc.Update(context.Background(), "teacher-1", "assignment-1", UpdateAssignmentRequest{
		Title:  "Quiz v2",
		Weight: 71,
	})
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrOverweightCourse.Code, appErr.Code)
	assert.Equal(t, "Max weight for this assignment is 70.00%", appErr.Message)
}
