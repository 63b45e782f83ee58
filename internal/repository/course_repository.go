package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lara-bellatin/awd-final/internal/models"
)

// CourseRepository handles persistence of courses, modules and lessons.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

func (r *CourseRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec == nil {
		return r.db
	}
	return exec
}

const courseColumns = `id, teacher_id, title, description, published, start_date, end_date, created_at, updated_at`

// Create persists a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, teacher_id, title, description, published, start_date, end_date, created_at, updated_at)
        VALUES (:id, :teacher_id, :title, :description, :published, :start_date, :end_date, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update modifies course attributes owned by the teacher.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET title = :title, description = :description, start_date = :start_date, end_date = :end_date, updated_at = :updated_at
        WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// Publish flips a course to published.
func (r *CourseRepository) Publish(ctx context.Context, id string) error {
	const query = `UPDATE courses SET published = TRUE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("publish course: %w", err)
	}
	return nil
}

// FindByID returns a course by ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE id = $1`, courseColumns)
	var course models.Course
	if err := sqlx.GetContext(ctx, r.db, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// Ref returns the lightweight course reference used by the lifecycle engine.
func (r *CourseRepository) Ref(ctx context.Context, id string) (*models.CourseRef, error) {
	const query = `SELECT id, title, teacher_id, published FROM courses WHERE id = $1`
	var ref models.CourseRef
	if err := sqlx.GetContext(ctx, r.db, &ref, query, id); err != nil {
		return nil, err
	}
	return &ref, nil
}

// List returns courses filtered by teacher, published flag and search text.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	var conditions []string
	var args []interface{}

	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.PublishedOnly {
		conditions = append(conditions, "published = TRUE")
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
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

	query := fmt.Sprintf(`SELECT %s FROM courses%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, courseColumns, clause, size, offset)
	var courses []models.Course
	if err := sqlx.SelectContext(ctx, r.db, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM courses" + clause
	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// TeacherCourseIDs returns every course ID owned by the teacher.
func (r *CourseRepository) TeacherCourseIDs(ctx context.Context, teacherID string) ([]string, error) {
	const query = `SELECT id FROM courses WHERE teacher_id = $1`
	var ids []string
	if err := sqlx.SelectContext(ctx, r.db, &ids, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher courses: %w", err)
	}
	return ids, nil
}

// CreateModule persists a new module within a course.
func (r *CourseRepository) CreateModule(ctx context.Context, module *models.Module) error {
	if module.ID == "" {
		module.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	module.CreatedAt = now
	module.UpdatedAt = now
	const query = `INSERT INTO modules (id, course_id, title, description, created_at, updated_at)
        VALUES (:id, :course_id, :title, :description, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, module); err != nil {
		return fmt.Errorf("create module: %w", err)
	}
	return nil
}

// CreateLesson persists a new lesson within a module.
func (r *CourseRepository) CreateLesson(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	lesson.CreatedAt = now
	lesson.UpdatedAt = now
	const query = `INSERT INTO lessons (id, module_id, title, description, created_at, updated_at)
        VALUES (:id, :module_id, :title, :description, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, lesson); err != nil {
		return fmt.Errorf("create lesson: %w", err)
	}
	return nil
}

// ModuleCourse resolves the owning course of a module.
func (r *CourseRepository) ModuleCourse(ctx context.Context, moduleID string) (*models.CourseRef, error) {
	const query = `SELECT c.id, c.title, c.teacher_id, c.published
        FROM modules m JOIN courses c ON c.id = m.course_id
        WHERE m.id = $1`
	var ref models.CourseRef
	if err := sqlx.GetContext(ctx, r.db, &ref, query, moduleID); err != nil {
		return nil, err
	}
	return &ref, nil
}

// LessonCourse resolves the owning course of a lesson through its module.
func (r *CourseRepository) LessonCourse(ctx context.Context, lessonID string) (*models.CourseRef, error) {
	const query = `SELECT c.id, c.title, c.teacher_id, c.published
        FROM lessons l
        JOIN modules m ON m.id = l.module_id
        JOIN courses c ON c.id = m.course_id
        WHERE l.id = $1`
	var ref models.CourseRef
	if err := sqlx.GetContext(ctx, r.db, &ref, query, lessonID); err != nil {
		return nil, err
	}
	return &ref, nil
}

// AssignmentCourse resolves the owning course of an assignment through its
// module.
func (r *CourseRepository) AssignmentCourse(ctx context.Context, assignmentID string) (*models.CourseRef, error) {
	const query = `SELECT c.id, c.title, c.teacher_id, c.published
        FROM assignments a
        JOIN modules m ON m.id = a.module_id
        JOIN courses c ON c.id = m.course_id
        WHERE a.id = $1`
	var ref models.CourseRef
	if err := sqlx.GetContext(ctx, r.db, &ref, query, assignmentID); err != nil {
		return nil, err
	}
	return &ref, nil
}

// ItemCounts counts the published course content that contributes to a
// student's progress denominator. It runs inside the caller's transaction
// when one is supplied.
func (r *CourseRepository) ItemCounts(ctx context.Context, exec sqlx.ExtContext, courseID string) (models.CourseItemCounts, error) {
	const query = `SELECT
        (SELECT COUNT(*) FROM lessons l JOIN modules m ON m.id = l.module_id WHERE m.course_id = $1) AS lessons,
        (SELECT COUNT(*) FROM assignments a JOIN modules m ON m.id = a.module_id WHERE m.course_id = $1) AS assignments`
	var counts models.CourseItemCounts
	if err := sqlx.GetContext(ctx, r.exec(exec), &counts, query, courseID); err != nil {
		return models.CourseItemCounts{}, fmt.Errorf("count course items: %w", err)
	}
	return counts, nil
}
