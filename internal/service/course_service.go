package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lara-bellatin/awd-final/internal/models"
	appErrors "github.com/lara-bellatin/awd-final/pkg/errors"
)

type courseRepo interface {
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Publish(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*models.Course, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	CreateModule(ctx context.Context, module *models.Module) error
	CreateLesson(ctx context.Context, lesson *models.Lesson) error
	ModuleCourse(ctx context.Context, moduleID string) (*models.CourseRef, error)
}

type courseEnrollmentReader interface {
	EnrolledStudentIDs(ctx context.Context, courseID string) ([]string, error)
}

type courseCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

const catalogCacheKey = "courses:catalog"

// CreateCourseRequest is the payload for creating a course.
type CreateCourseRequest struct {
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	StartDate   time.Time `json:"start_date" validate:"required"`
	EndDate     time.Time `json:"end_date" validate:"required"`
}

// UpdateCourseRequest is the payload for editing a course.
type UpdateCourseRequest struct {
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	StartDate   time.Time `json:"start_date" validate:"required"`
	EndDate     time.Time `json:"end_date" validate:"required"`
}

// CreateModuleRequest is the payload for adding a module to a course.
type CreateModuleRequest struct {
	CourseID    string `json:"course_id" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
}

// CreateLessonRequest is the payload for adding a lesson to a module.
type CreateLessonRequest struct {
	ModuleID    string `json:"module_id" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
}

// CourseView enriches a course with its derived status and duration.
type CourseView struct {
	models.Course
	Status        models.CourseStatus `json:"status"`
	DurationWeeks int                 `json:"duration_weeks"`
}

// CourseService manages courses and their content.
type CourseService struct {
	courses     courseRepo
	enrollments courseEnrollmentReader
	cache       courseCache
	notifier    notifier
	validator   *validator.Validate
	logger      *zap.Logger
	catalogTTL  time.Duration
	now         func() time.Time
}

// NewCourseService constructs CourseService. cache may be nil.
func NewCourseService(courses courseRepo, enrollments courseEnrollmentReader, cache courseCache, notifier notifier, validate *validator.Validate, logger *zap.Logger, catalogTTL time.Duration) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if catalogTTL <= 0 {
		catalogTTL = 5 * time.Minute
	}
	return &CourseService{
		courses:     courses,
		enrollments: enrollments,
		cache:       cache,
		notifier:    notifier,
		validator:   validate,
		logger:      logger,
		catalogTTL:  catalogTTL,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *CourseService) view(course models.Course) CourseView {
	return CourseView{Course: course, Status: course.Status(s.now()), DurationWeeks: course.DurationWeeks()}
}

func (s *CourseService) invalidateCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "courses:*"); err != nil {
		s.logger.Warn("failed to invalidate course catalog cache", zap.Error(err))
	}
}

// Create creates an unpublished course owned by the teacher.
func (s *CourseService) Create(ctx context.Context, teacherID string, req CreateCourseRequest) (*CourseView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if req.EndDate.Before(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must not precede start date")
	}
	course := &models.Course{
		Title:     req.Title,
		TeacherID: teacherID,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}
	if req.Description != "" {
		course.Description = &req.Description
	}
	if err := s.courses.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	view := s.view(*course)
	return &view, nil
}

// Update edits a course. Only the owning teacher may edit.
func (s *CourseService) Update(ctx context.Context, teacherID, courseID string, req UpdateCourseRequest) (*CourseView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if req.EndDate.Before(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must not precede start date")
	}
	course, err := s.load(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course.TeacherID != teacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the course teacher can edit the course")
	}
	course.Title = req.Title
	course.StartDate = req.StartDate
	course.EndDate = req.EndDate
	course.Description = nil
	if req.Description != "" {
		course.Description = &req.Description
	}
	if err := s.courses.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	s.invalidateCatalog(ctx)
	view := s.view(*course)
	return &view, nil
}

// Publish makes a course visible and enrollable. Publishing is one-way.
func (s *CourseService) Publish(ctx context.Context, teacherID, courseID string) (*CourseView, error) {
	course, err := s.load(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course.TeacherID != teacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the course teacher can publish the course")
	}
	if !course.Published {
		if err := s.courses.Publish(ctx, courseID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish course")
		}
		course.Published = true
		s.invalidateCatalog(ctx)
	}
	view := s.view(*course)
	return &view, nil
}

// Get returns a single course with derived fields.
func (s *CourseService) Get(ctx context.Context, courseID string) (*CourseView, error) {
	course, err := s.load(ctx, courseID)
	if err != nil {
		return nil, err
	}
	view := s.view(*course)
	return &view, nil
}

// List returns courses matching the filter. The published catalog (first
// page, no search) is served from cache when warm.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]CourseView, *models.Pagination, error) {
	cacheable := s.cache != nil && filter.PublishedOnly && filter.TeacherID == "" && filter.Search == "" && filter.Page <= 1

	if cacheable {
		var cached []CourseView
		if err := s.cache.Get(ctx, catalogCacheKey, &cached); err == nil {
			return cached, &models.Pagination{Page: 1, PageSize: len(cached), TotalCount: len(cached)}, nil
		}
	}

	courses, total, err := s.courses.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	views := make([]CourseView, 0, len(courses))
	for _, course := range courses {
		views = append(views, s.view(course))
	}

	if cacheable {
		if err := s.cache.Set(ctx, catalogCacheKey, views, s.catalogTTL); err != nil {
			s.logger.Warn("failed to cache course catalog", zap.Error(err))
		}
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return views, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// AddModule creates a module. On a published course every enrolled student
// whose enrollment is not Canceled gets notified.
func (s *CourseService) AddModule(ctx context.Context, teacherID string, req CreateModuleRequest) (*models.Module, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid module payload")
	}
	course, err := s.load(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	if course.TeacherID != teacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the course teacher can add modules")
	}
	module := &models.Module{CourseID: course.ID, Title: req.Title}
	if req.Description != "" {
		module.Description = &req.Description
	}
	if err := s.courses.CreateModule(ctx, module); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create module")
	}

	if course.Published {
		message := fmt.Sprintf("New module %q added to course %s", module.Title, course.Title)
		if err := s.fanOut(ctx, models.NotificationModuleAdded, course.ID, message); err != nil {
			return nil, err
		}
	}
	return module, nil
}

// AddLesson creates a lesson. On a published course every enrolled student
// whose enrollment is not Canceled gets notified.
func (s *CourseService) AddLesson(ctx context.Context, teacherID string, req CreateLessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	course, err := s.courses.ModuleCourse(ctx, req.ModuleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve module course")
	}
	if course.TeacherID != teacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the course teacher can add lessons")
	}
	lesson := &models.Lesson{ModuleID: req.ModuleID, Title: req.Title}
	if req.Description != "" {
		lesson.Description = &req.Description
	}
	if err := s.courses.CreateLesson(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson")
	}

	if course.Published {
		message := fmt.Sprintf("New lesson %q added to course %s", lesson.Title, course.Title)
		if err := s.fanOut(ctx, models.NotificationLessonAdded, course.ID, message); err != nil {
			return nil, err
		}
	}
	return lesson, nil
}

func (s *CourseService) fanOut(ctx context.Context, kind models.NotificationKind, courseID, message string) error {
	students, err := s.enrollments.EnrolledStudentIDs(ctx, courseID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrolled students")
	}
	for _, studentID := range students {
		if err := s.notifier.Dispatch(ctx, nil, kind, studentID, courseID, message); err != nil {
			return err
		}
	}
	return nil
}

func (s *CourseService) load(ctx context.Context, courseID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}
