package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lara-bellatin/awd-final/internal/models"
	appErrors "github.com/lara-bellatin/awd-final/pkg/errors"
)

type fakeTx struct{}

func (f *fakeTx) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return fn(nil)
}

// stubTx tracks transaction outcomes so tests can assert that a write and
// the pipeline it triggers share one transaction.
type stubTx struct {
	open      bool
	commits   int
	rollbacks int
}

func (s *stubTx) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	s.open = true
	err := fn(nil)
	s.open = false
	if err != nil {
		s.rollbacks++
		return err
	}
	s.commits++
	return nil
}

func pairKey(studentID, courseID string) string {
	return studentID + "|" + courseID
}

type fakeEnrollmentStore struct {
	enrollments map[string]*models.Enrollment
	removed     int64
	active      map[string][]string
}

func (f *fakeEnrollmentStore) LockForUpdate(ctx context.Context, exec sqlx.ExtContext, studentID, courseID string) (*models.Enrollment, error) {
	e, ok := f.enrollments[pairKey(studentID, courseID)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *e
	return &copied, nil
}

func (f *fakeEnrollmentStore) MarkCompleted(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) (bool, error) {
	for _, e := range f.enrollments {
		if e.ID != id || e.Status != models.EnrollmentStatusActive {
			continue
		}
		e.Status = models.EnrollmentStatusCompleted
		if e.CompletedOn == nil {
			completed := at
			e.CompletedOn = &completed
		}
		return true, nil
	}
	return false, nil
}

func (f *fakeEnrollmentStore) SetFinalGrade(ctx context.Context, exec sqlx.ExtContext, id string, grade float64) (bool, error) {
	for _, e := range f.enrollments {
		if e.ID != id || e.FinalGrade != nil {
			continue
		}
		e.FinalGrade = &grade
		return true, nil
	}
	return false, nil
}

func (f *fakeEnrollmentStore) RemoveForStudentInCourses(ctx context.Context, studentID string, courseIDs []string, at time.Time) (int64, error) {
	var removed int64
	for _, courseID := range courseIDs {
		e, ok := f.enrollments[pairKey(studentID, courseID)]
		if !ok || e.Status == models.EnrollmentStatusRemoved {
			continue
		}
		e.Status = models.EnrollmentStatusRemoved
		removedAt := at
		e.RemovedOn = &removedAt
		removed++
	}
	f.removed += removed
	return removed, nil
}

func (f *fakeEnrollmentStore) ActiveStudentIDs(ctx context.Context, courseID string) ([]string, error) {
	return f.active[courseID], nil
}

type fakeCourseStore struct {
	refs              map[string]*models.CourseRef
	lessonCourses     map[string]string
	assignmentCourses map[string]string
	teacherCourses    map[string][]string
	items             map[string]models.CourseItemCounts
}

func (f *fakeCourseStore) Ref(ctx context.Context, id string) (*models.CourseRef, error) {
	ref, ok := f.refs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return ref, nil
}

func (f *fakeCourseStore) LessonCourse(ctx context.Context, lessonID string) (*models.CourseRef, error) {
	courseID, ok := f.lessonCourses[lessonID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return f.Ref(ctx, courseID)
}

func (f *fakeCourseStore) AssignmentCourse(ctx context.Context, assignmentID string) (*models.CourseRef, error) {
	courseID, ok := f.assignmentCourses[assignmentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return f.Ref(ctx, courseID)
}

func (f *fakeCourseStore) TeacherCourseIDs(ctx context.Context, teacherID string) ([]string, error) {
	return f.teacherCourses[teacherID], nil
}

func (f *fakeCourseStore) ItemCounts(ctx context.Context, exec sqlx.ExtContext, courseID string) (models.CourseItemCounts, error) {
	return f.items[courseID], nil
}

type fakeProgressStore struct {
	counts map[string]models.CompletionCounts
}

func (f *fakeProgressStore) CompletionCounts(ctx context.Context, exec sqlx.ExtContext, studentID, courseID string) (models.CompletionCounts, error) {
	return f.counts[pairKey(studentID, courseID)], nil
}

type failingProgressStore struct {
	err error
}

func (f *failingProgressStore) CompletionCounts(ctx context.Context, exec sqlx.ExtContext, studentID, courseID string) (models.CompletionCounts, error) {
	return models.CompletionCounts{}, f.err
}

type fakeSubmissionStore struct {
	grades    map[string][]models.WeightedGrade
	submitted map[string]map[string]bool
}

func (f *fakeSubmissionStore) WeightedGrades(ctx context.Context, exec sqlx.ExtContext, studentID, courseID string) ([]models.WeightedGrade, error) {
	return f.grades[pairKey(studentID, courseID)], nil
}

func (f *fakeSubmissionStore) SubmittedStudentIDs(ctx context.Context, assignmentID string) (map[string]bool, error) {
	return f.submitted[assignmentID], nil
}

type fakeAssignmentStore struct {
	due []models.AssignmentDigest
}

func (f *fakeAssignmentStore) DueOn(ctx context.Context, date time.Time) ([]models.AssignmentDigest, error) {
	return f.due, nil
}

type fakeUserNames struct {
	names map[string]string
}

func (f *fakeUserNames) UserName(ctx context.Context, id string) (string, error) {
	if name, ok := f.names[id]; ok {
		return name, nil
	}
	return "", sql.ErrNoRows
}

type dispatched struct {
	kind     models.NotificationKind
	userID   string
	courseID string
	content  string
}

type fakeNotifier struct {
	sent []dispatched
}

func (f *fakeNotifier) Dispatch(ctx context.Context, exec sqlx.ExtContext, kind models.NotificationKind, userID, courseID, content string) error {
	f.sent = append(f.sent, dispatched{kind: kind, userID: userID, courseID: courseID, content: content})
	return nil
}

func (f *fakeNotifier) contents() []string {
	out := make([]string, 0, len(f.sent))
	for _, d := range f.sent {
		out = append(out, d.content)
	}
	return out
}

type lifecycleFixture struct {
	svc         *LifecycleService
	enrollments *fakeEnrollmentStore
	courses     *fakeCourseStore
	progress    *fakeProgressStore
	submissions *fakeSubmissionStore
	assignments *fakeAssignmentStore
	notifier    *fakeNotifier
}

func newLifecycleFixture() *lifecycleFixture {
	f := &lifecycleFixture{
		enrollments: &fakeEnrollmentStore{
			enrollments: map[string]*models.Enrollment{},
			active:      map[string][]string{},
		},
		courses: &fakeCourseStore{
			refs:              map[string]*models.CourseRef{},
			lessonCourses:     map[string]string{},
			assignmentCourses: map[string]string{},
			teacherCourses:    map[string][]string{},
			items:             map[string]models.CourseItemCounts{},
		},
		progress:    &fakeProgressStore{counts: map[string]models.CompletionCounts{}},
		submissions: &fakeSubmissionStore{grades: map[string][]models.WeightedGrade{}, submitted: map[string]map[string]bool{}},
		assignments: &fakeAssignmentStore{},
		notifier:    &fakeNotifier{},
	}
	f.svc = NewLifecycleService(
		&fakeTx{},
		f.enrollments,
		f.courses,
		f.progress,
		f.submissions,
		f.assignments,
		&fakeUserNames{names: map[string]string{"student-1": "Ada Lovelace"}},
		f.notifier,
		nil,
		nil,
	)
	return f
}

// Plays out the common fixture: one course taught by teacher-1 with two
// lessons and one assignment weighted 100, and student-1 actively enrolled.
func (f *lifecycleFixture) seedCourse() {
	f.courses.refs["course-1"] = &models.CourseRef{ID: "course-1", Title: "Intro to Go", TeacherID: "teacher-1", Published: true}
	f.courses.items["course-1"] = models.CourseItemCounts{Lessons: 2, Assignments: 1}
	f.courses.assignmentCourses["assignment-1"] = "course-1"
	f.enrollments.enrollments[pairKey("student-1", "course-1")] = &models.Enrollment{
		ID:        "enrollment-1",
		StudentID: "student-1",
		CourseID:  "course-1",
		Status:    models.EnrollmentStatusActive,
	}
}

func TestRecalculatePartialProgress(t *testing.T) {
	f := newLifecycleFixture()
	f.seedCourse()
	f.progress.counts[pairKey("student-1", "course-1")] = models.CompletionCounts{LessonsCompleted: 2}

	snapshot, err := f.svc.Recalculate(context.Background(), "student-1", "course-1")
	require.NoError(t, err)
	require.NotNil(t, snapshot)

	assert.Equal(t, 66.67, snapshot.Progress)
	assert.Equal(t, models.EnrollmentStatusActive, snapshot.Status)
	assert.Nil(t, snapshot.FinalGrade)
	assert.Empty(t, f.notifier.sent)
}

func TestRecalculateCompletesAtFullProgress(t *testing.T) {
	f := newLifecycleFixture()
	f.seedCourse()
	f.progress.counts[pairKey("student-1", "course-1")] = models.CompletionCounts{LessonsCompleted: 2, AssignmentsSubmitted: 1}
	f.submissions.grades[pairKey("student-1", "course-1")] = []models.WeightedGrade{
		{AssignmentID: "assignment-1", Weight: 100, Submitted: true, Grade: nil},
	}

	snapshot, err := f.svc.Recalculate(context.Background(), "student-1", "course-1")
	require.NoError(t, err)
	require.NotNil(t, snapshot)

	assert.Equal(t, 100.0, snapshot.Progress)
	assert.Equal(t, models.EnrollmentStatusCompleted, snapshot.Status)
	// Submission not graded yet, so no final grade can exist.
	assert.Nil(t, snapshot.FinalGrade)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, models.NotificationCourseCompleted, f.notifier.sent[0].kind)
	assert.Equal(t, "student-1", f.notifier.sent[0].userID)
	assert.Equal(t, "You have completed the course Intro to Go", f.notifier.sent[0].content)

	stored := f.enrollments.enrollments[pairKey("student-1", "course-1")]
	require.NotNil(t, stored.CompletedOn)
}

func TestRecalculateCompletionIsIdempotent(t *testing.T) {
	f := newLifecycleFixture()
	f.seedCourse()
	f.progress.counts[pairKey("student-1", "course-1")] = models.CompletionCounts{LessonsCompleted: 2, AssignmentsSubmitted: 1}
	f.submissions.grades[pairKey("student-1", "course-1")] = []models.WeightedGrade{
		{AssignmentID: "assignment-1", Weight: 100, Submitted: true, Grade: nil},
	}

	first, err := f.svc.Recalculate(context.Background(), "student-1", "course-1")
	require.NoError(t, err)
	completedOn := *f.enrollments.enrollments[pairKey("student-1", "course-1")].CompletedOn

	second, err := f.svc.Recalculate(context.Background(), "student-1", "course-1")
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, completedOn, *f.enrollments.enrollments[pairKey("student-1", "course-1")].CompletedOn)
	// The completion notification fires exactly once.
	require.Len(t, f.notifier.sent, 1)
}

func TestRecalculateAggregatesFinalGradeAfterGrading(t *testing.T) {
	f := newLifecycleFixture()
	f.seedCourse()
	f.progress.counts[pairKey("student-1", "course-1")] = models.CompletionCounts{LessonsCompleted: 2, AssignmentsSubmitted: 1}
	f.submissions.grades[pairKey("student-1", "course-1")] = []models.WeightedGrade{
		{AssignmentID: "assignment-1", Weight: 100, Submitted: true, Grade: nil},
	}

	_, err := f.svc.Recalculate(context.Background(), "student-1", "course-1")
	require.NoError(t, err)

	f.submissions.grades[pairKey("student-1", "course-1")] = []models.WeightedGrade{
		{AssignmentID: "assignment-1", Weight: 100, Submitted: true, Grade: ptrFloat(90)},
	}

	snapshot, err := f.svc.Recalculate(context.Background(), "student-1", "course-1")
	require.NoError(t, err)
	require.NotNil(t, snapshot.FinalGrade)
	assert.Equal(t, 90.0, *snapshot.FinalGrade)

	contents := f.notifier.contents()
	require.Len(t, contents, 2)
	assert.Equal(t, "You have completed the course Intro to Go", contents[0])
	assert.Equal(t, "Final grade for course Intro to Go has been updated", contents[1])

	// The final grade is written once and never overwritten.
	f.submissions.grades[pairKey("student-1", "course-1")] = []models.WeightedGrade{
		{AssignmentID: "assignment-1", Weight: 100, Submitted: true, Grade: ptrFloat(50)},
	}
	snapshot, err = f.svc.Recalculate(context.Background(), "student-1", "course-1")
	require.NoError(t, err)
	assert.Equal(t, 90.0, *snapshot.FinalGrade)
	assert.Len(t, f.notifier.sent, 2)
}

func TestRecalculateLessonsOnlyCourseGetsZeroFinalGrade(t *testing.T) {
	f := newLifecycleFixture()
	f.courses.refs["course-1"] = &models.CourseRef{ID: "course-1", Title: "Intro to Go", TeacherID: "teacher-1", Published: true}
	f.courses.items["course-1"] = models.CourseItemCounts{Lessons: 2}
	f.enrollments.enrollments[pairKey("student-1", "course-1")] = &models.Enrollment{
		ID:        "enrollment-1",
		StudentID: "student-1",
		CourseID:  "course-1",
		Status:    models.EnrollmentStatusActive,
	}
	f.progress.counts[pairKey("student-1", "course-1")] = models.CompletionCounts{LessonsCompleted: 2}

	snapshot, err := f.svc.Recalculate(context.Background(), "student-1", "course-1")
	require.NoError(t, err)
	require.NotNil(t, snapshot)

	assert.Equal(t, models.EnrollmentStatusCompleted, snapshot.Status)
	// With no assignments the weighted sum holds vacuously and aggregates
	// to zero, which is a valid final grade.
	require.NotNil(t, snapshot.FinalGrade)
	assert.Equal(t, 0.0, *snapshot.FinalGrade)

	contents := f.notifier.contents()
	require.Len(t, contents, 2)
	assert.Equal(t, "You have completed the course Intro to Go", contents[0])
	assert.Equal(t, "Final grade for course Intro to Go has been updated", contents[1])
}

func TestOnSubmissionGradedFailedRecalculationPropagates(t *testing.T) {
	f := newLifecycleFixture()
	f.seedCourse()
	svc := NewLifecycleService(
		&fakeTx{},
		f.enrollments,
		f.courses,
		&failingProgressStore{err: errors.New("connection reset")},
		f.submissions,
		f.assignments,
		&fakeUserNames{names: map[string]string{"student-1": "Ada Lovelace"}},
		f.notifier,
		nil,
		nil,
	)

	assignment := &models.Assignment{ID: "assignment-1", Title: "Final Project"}
	_, err := svc.OnSubmissionGraded(context.Background(), nil, "student-1", assignment)
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrInternal.Code, appErr.Code)
}

func TestRecalculateNotEnrolledIsNoOp(t *testing.T) {
	f := newLifecycleFixture()
	f.seedCourse()

	snapshot, err := f.svc.Recalculate(context.Background(), "student-999", "course-1")
	require.NoError(t, err)
	assert.Nil(t, snapshot)
	assert.Empty(t, f.notifier.sent)
}

func TestRecalculateUnknownCourse(t *testing.T) {
	f := newLifecycleFixture()

	_, err := f.svc.Recalculate(context.Background(), "student-1", "missing")
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestProgressReadOnly(t *testing.T) {
	f := newLifecycleFixture()
	f.seedCourse()
	f.progress.counts[pairKey("student-1", "course-1")] = models.CompletionCounts{LessonsCompleted: 1}

	snapshot, err := f.svc.Progress(context.Background(), "student-1", "course-1")
	require.NoError(t, err)
	assert.Equal(t, 33.33, snapshot.Progress)
	assert.Equal(t, models.EnrollmentStatusActive, snapshot.Status)
}

func TestProgressNotEnrolled(t *testing.T) {
	f := newLifecycleFixture()
	f.seedCourse()

	_, err := f.svc.Progress(context.Background(), "student-999", "course-1")
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrNotEnrolled.Code, appErr.Code)
}

func TestOnSubmissionCreatedNotifiesTeacher(t *testing.T) {
	f := newLifecycleFixture()
	f.seedCourse()
	f.progress.counts[pairKey("student-1", "course-1")] = models.CompletionCounts{LessonsCompleted: 1, AssignmentsSubmitted: 1}

	assignment := &models.Assignment{ID: "assignment-1", Title: "Final Project"}
	snapshot, err := f.svc.OnSubmissionCreated(context.Background(), nil, "student-1", assignment)
	require.NoError(t, err)
	require.NotNil(t, snapshot)

	require.NotEmpty(t, f.notifier.sent)
	first := f.notifier.sent[0]
	assert.Equal(t, models.NotificationSubmissionCreated, first.kind)
	assert.Equal(t, "teacher-1", first.userID)
	assert.Equal(t, "Ada Lovelace has submitted assignment Final Project", first.content)
}

func TestOnSubmissionGradedNotifiesStudentEvenWhenNotEnrolled(t *testing.T) {
	f := newLifecycleFixture()
	f.seedCourse()
	delete(f.enrollments.enrollments, pairKey("student-1", "course-1"))

	assignment := &models.Assignment{ID: "assignment-1", Title: "Final Project"}
	snapshot, err := f.svc.OnSubmissionGraded(context.Background(), nil, "student-1", assignment)
	require.NoError(t, err)
	assert.Nil(t, snapshot)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, models.NotificationSubmissionGraded, f.notifier.sent[0].kind)
	assert.Equal(t, "student-1", f.notifier.sent[0].userID)
	assert.Equal(t, "Assignment submission for Final Project has been graded", f.notifier.sent[0].content)
}

func TestOnEnrollmentCreatedNotifiesTeacher(t *testing.T) {
	f := newLifecycleFixture()
	f.seedCourse()

	enrollment := f.enrollments.enrollments[pairKey("student-1", "course-1")]
	err := f.svc.OnEnrollmentCreated(context.Background(), nil, enrollment)
	require.NoError(t, err)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, models.NotificationEnrollmentCreated, f.notifier.sent[0].kind)
	assert.Equal(t, "teacher-1", f.notifier.sent[0].userID)
	assert.Equal(t, "Ada Lovelace has enrolled in course Intro to Go", f.notifier.sent[0].content)
}

func TestOnUserBlockedRemovesEnrollments(t *testing.T) {
	f := newLifecycleFixture()
	f.seedCourse()
	f.courses.refs["course-2"] = &models.CourseRef{ID: "course-2", Title: "Advanced Go", TeacherID: "teacher-1", Published: true}
	f.courses.teacherCourses["teacher-1"] = []string{"course-1", "course-2"}
	f.enrollments.enrollments[pairKey("student-1", "course-2")] = &models.Enrollment{
		ID:        "enrollment-2",
		StudentID: "student-1",
		CourseID:  "course-2",
		Status:    models.EnrollmentStatusCompleted,
	}

	removed, err := f.svc.OnUserBlocked(context.Background(), "student-1", "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	for _, courseID := range []string{"course-1", "course-2"} {
		e := f.enrollments.enrollments[pairKey("student-1", courseID)]
		assert.Equal(t, models.EnrollmentStatusRemoved, e.Status)
		assert.NotNil(t, e.RemovedOn)
	}
}

func TestOnUserBlockedWithoutCourses(t *testing.T) {
	f := newLifecycleFixture()

	removed, err := f.svc.OnUserBlocked(context.Background(), "student-1", "teacher-without-courses")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRunDeadlineSweepNotifiesNonSubmitters(t *testing.T) {
	f := newLifecycleFixture()
	f.seedCourse()
	f.assignments.due = []models.AssignmentDigest{
		{ID: "assignment-1", Title: "Final Project", CourseID: "course-1", CourseTitle: "Intro to Go"},
	}
	f.enrollments.active["course-1"] = []string{"student-1", "student-2", "student-3"}
	f.submissions.submitted["assignment-1"] = map[string]bool{"student-2": true}

	result, err := f.svc.RunDeadlineSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Assignments)
	assert.Equal(t, 2, result.Notified)

	require.Len(t, f.notifier.sent, 2)
	notifiedUsers := []string{f.notifier.sent[0].userID, f.notifier.sent[1].userID}
	assert.ElementsMatch(t, []string{"student-1", "student-3"}, notifiedUsers)
	for _, d := range f.notifier.sent {
		assert.Equal(t, models.NotificationDeadlineSoon, d.kind)
		assert.Equal(t, "course-1", d.courseID)
		assert.Equal(t, fmt.Sprintf("Assignment %q is due in one week for course %s.", "Final Project", "Intro to Go"), d.content)
	}
}

func TestRunDeadlineSweepNoDueAssignments(t *testing.T) {
	f := newLifecycleFixture()

	result, err := f.svc.RunDeadlineSweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Assignments)
	assert.Zero(t, result.Notified)
	assert.Empty(t, f.notifier.sent)
}
