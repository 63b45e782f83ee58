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

type assignmentRepo interface {
	Create(ctx context.Context, assignment *models.Assignment) error
	Update(ctx context.Context, assignment *models.Assignment) error
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error)
	SumWeights(ctx context.Context, courseID, excludeID string) (float64, error)
}

type assignmentCourseResolver interface {
	ModuleCourse(ctx context.Context, moduleID string) (*models.CourseRef, error)
	AssignmentCourse(ctx context.Context, assignmentID string) (*models.CourseRef, error)
}

// CreateAssignmentRequest is the payload for creating an assignment.
type CreateAssignmentRequest struct {
	ModuleID    string     `json:"module_id" validate:"required"`
	Title       string     `json:"title" validate:"required"`
	Description string     `json:"description"`
	Weight      float64    `json:"weight" validate:"gte=0,lte=100"`
	Deadline    *time.Time `json:"deadline"`
}

// UpdateAssignmentRequest is the payload for editing an assignment.
type UpdateAssignmentRequest struct {
	Title       string     `json:"title" validate:"required"`
	Description string     `json:"description"`
	Weight      float64    `json:"weight" validate:"gte=0,lte=100"`
	Deadline    *time.Time `json:"deadline"`
}

// AssignmentService manages assignments and enforces the course weight
// budget: the weights of all assignments in a course never exceed 100.
type AssignmentService struct {
	assignments assignmentRepo
	courses     assignmentCourseResolver
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAssignmentService constructs AssignmentService.
func NewAssignmentService(assignments assignmentRepo, courses assignmentCourseResolver, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{assignments: assignments, courses: courses, validator: validate, logger: logger}
}

// validateWeight rejects a weight that would push the course total past 100.
// The message reports the remaining budget so the teacher can correct the
// value in one round trip.
func (s *AssignmentService) validateWeight(ctx context.Context, courseID, excludeID string, weight float64) error {
	sum, err := s.assignments.SumWeights(ctx, courseID, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum assignment weights")
	}
	if sum+weight > 100.0 {
		return appErrors.Clone(appErrors.ErrOverweightCourse, fmt.Sprintf("Max weight for this assignment is %.2f%%", 100.0-sum))
	}
	return nil
}

// Create adds an assignment to a module after validating the weight budget.
func (s *AssignmentService) Create(ctx context.Context, teacherID string, req CreateAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	course, err := s.courses.ModuleCourse(ctx, req.ModuleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve module course")
	}
	if course.TeacherID != teacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the course teacher can add assignments")
	}
	if err := s.validateWeight(ctx, course.ID, "", req.Weight); err != nil {
		return nil, err
	}
	assignment := &models.Assignment{
		ModuleID:    req.ModuleID,
		Title:       req.Title,
		Description: req.Description,
		Weight:      req.Weight,
		Deadline:    req.Deadline,
	}
	if err := s.assignments.Create(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}
	return assignment, nil
}

// Update edits an assignment. The weight budget excludes the assignment's
// own previous weight.
func (s *AssignmentService) Update(ctx context.Context, teacherID, assignmentID string, req UpdateAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	assignment, err := s.load(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	course, err := s.courses.AssignmentCourse(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve assignment course")
	}
	if course.TeacherID != teacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the course teacher can edit assignments")
	}
	if err := s.validateWeight(ctx, course.ID, assignmentID, req.Weight); err != nil {
		return nil, err
	}
	assignment.Title = req.Title
	assignment.Description = req.Description
	assignment.Weight = req.Weight
	assignment.Deadline = req.Deadline
	if err := s.assignments.Update(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assignment")
	}
	return assignment, nil
}

// Get returns an assignment by ID.
func (s *AssignmentService) Get(ctx context.Context, assignmentID string) (*models.Assignment, error) {
	return s.load(ctx, assignmentID)
}

// ListByCourse returns all assignments belonging to a course.
func (s *AssignmentService) ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error) {
	assignments, err := s.assignments.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, nil
}

func (s *AssignmentService) load(ctx context.Context, assignmentID string) (*models.Assignment, error) {
	assignment, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return assignment, nil
}
