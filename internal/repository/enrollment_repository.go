package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/lara-bellatin/awd-final/internal/models"
)

// EnrollmentRepository handles persistence of enrollments. Methods taking an
// exec run against the given transaction when provided, the pool otherwise.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec == nil {
		return r.db
	}
	return exec
}

const enrollmentColumns = `id, student_id, course_id, status, activated_on, completed_on, canceled_on, removed_on, final_grade`

// Find returns the enrollment for a (student, course) pair.
func (r *EnrollmentRepository) Find(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE student_id = $1 AND course_id = $2`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.db, &enrollment, query, studentID, courseID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.db, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// LockForUpdate loads the enrollment row under a row-level lock so that
// concurrent triggers for the same (student, course) serialize on it.
func (r *EnrollmentRepository) LockForUpdate(ctx context.Context, exec sqlx.ExtContext, studentID, courseID string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE student_id = $1 AND course_id = $2 FOR UPDATE`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.exec(exec), &enrollment, query, studentID, courseID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Create persists a new enrollment record, against the caller's transaction
// when one is supplied.
func (r *EnrollmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.ActivatedOn.IsZero() {
		enrollment.ActivatedOn = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	const query = `INSERT INTO enrollments (id, student_id, course_id, status, activated_on, completed_on, canceled_on, removed_on, final_grade)
        VALUES (:id, :student_id, :course_id, :status, :activated_on, :completed_on, :canceled_on, :removed_on, :final_grade)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Reactivate flips a Canceled enrollment back to Active in place without
// touching activated_on or canceled_on.
func (r *EnrollmentRepository) Reactivate(ctx context.Context, id string) error {
	const query = `UPDATE enrollments SET status = $2 WHERE id = $1 AND status = $3`
	if _, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusActive, models.EnrollmentStatusCanceled); err != nil {
		return fmt.Errorf("reactivate enrollment: %w", err)
	}
	return nil
}

// Cancel moves an Active enrollment to Canceled, setting canceled_on only the
// first time the status is reached.
func (r *EnrollmentRepository) Cancel(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `UPDATE enrollments SET status = $2, canceled_on = COALESCE(canceled_on, $3) WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusCanceled, at, models.EnrollmentStatusActive)
	if err != nil {
		return false, fmt.Errorf("cancel enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel enrollment: %w", err)
	}
	return affected == 1, nil
}

// MarkCompleted transitions an Active enrollment to Completed. completed_on
// is set at most once; re-running this after the transition is a no-op and
// reports false so callers do not re-fire notifications.
func (r *EnrollmentRepository) MarkCompleted(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) (bool, error) {
	const query = `UPDATE enrollments SET status = $2, completed_on = COALESCE(completed_on, $3) WHERE id = $1 AND status = $4`
	res, err := r.exec(exec).ExecContext(ctx, query, id, models.EnrollmentStatusCompleted, at, models.EnrollmentStatusActive)
	if err != nil {
		return false, fmt.Errorf("mark enrollment completed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark enrollment completed: %w", err)
	}
	return affected == 1, nil
}

// SetFinalGrade writes the final grade exactly once; it reports false when a
// grade is already stored. Zero is a valid grade and is persisted like any
// other value.
func (r *EnrollmentRepository) SetFinalGrade(ctx context.Context, exec sqlx.ExtContext, id string, grade float64) (bool, error) {
	const query = `UPDATE enrollments SET final_grade = $2 WHERE id = $1 AND final_grade IS NULL`
	res, err := r.exec(exec).ExecContext(ctx, query, id, grade)
	if err != nil {
		return false, fmt.Errorf("set final grade: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set final grade: %w", err)
	}
	return affected == 1, nil
}

// RemoveForStudentInCourses hard-removes every enrollment the student holds
// in the given courses, regardless of prior status. removed_on is only set
// the first time.
func (r *EnrollmentRepository) RemoveForStudentInCourses(ctx context.Context, studentID string, courseIDs []string, at time.Time) (int64, error) {
	if len(courseIDs) == 0 {
		return 0, nil
	}
	const query = `UPDATE enrollments SET status = $2, removed_on = COALESCE(removed_on, $3) WHERE student_id = $1 AND course_id = ANY($4)`
	res, err := r.db.ExecContext(ctx, query, studentID, models.EnrollmentStatusRemoved, at, pq.Array(courseIDs))
	if err != nil {
		return 0, fmt.Errorf("remove enrollments on block: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("remove enrollments on block: %w", err)
	}
	return affected, nil
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN users u ON u.id = e.student_id
LEFT JOIN courses c ON c.id = e.course_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.course_id, e.status, e.activated_on, e.completed_on, e.canceled_on, e.removed_on, e.final_grade,
        u.first_name || ' ' || u.last_name AS student_name, c.title AS course_title
        %s ORDER BY e.activated_on DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := sqlx.SelectContext(ctx, r.db, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// ActiveStudentIDs returns students with an Active enrollment in the course.
func (r *EnrollmentRepository) ActiveStudentIDs(ctx context.Context, courseID string) ([]string, error) {
	const query = `SELECT student_id FROM enrollments WHERE course_id = $1 AND status = $2`
	var ids []string
	if err := sqlx.SelectContext(ctx, r.db, &ids, query, courseID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list active students: %w", err)
	}
	return ids, nil
}

// EnrolledStudentIDs returns students enrolled in the course whose enrollment
// status is not Canceled; these are the content-added notification targets.
func (r *EnrollmentRepository) EnrolledStudentIDs(ctx context.Context, courseID string) ([]string, error) {
	const query = `SELECT student_id FROM enrollments WHERE course_id = $1 AND status <> $2`
	var ids []string
	if err := sqlx.SelectContext(ctx, r.db, &ids, query, courseID, models.EnrollmentStatusCanceled); err != nil {
		return nil, fmt.Errorf("list enrolled students: %w", err)
	}
	return ids, nil
}
