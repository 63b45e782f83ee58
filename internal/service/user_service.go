package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lara-bellatin/awd-final/internal/models"
	appErrors "github.com/lara-bellatin/awd-final/pkg/errors"
)

type userRepo interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	UpdateRole(ctx context.Context, id string, role models.UserRole) error
	Deactivate(ctx context.Context, id string) error
	CreateBlock(ctx context.Context, block *models.UserBlock) error
	BlockExists(ctx context.Context, blockedUserID, blockedByID string) (bool, error)
}

type blockObserver interface {
	OnUserBlocked(ctx context.Context, blockedUserID, blockedByID string) (int64, error)
}

// BlockResult reports the outcome of a block operation.
type BlockResult struct {
	EnrollmentsRemoved int64 `json:"enrollments_removed"`
}

// UserService manages user accounts, roles and blocks.
type UserService struct {
	users     userRepo
	lifecycle blockObserver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs UserService.
func NewUserService(users userRepo, lifecycle blockObserver, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, lifecycle: lifecycle, validator: validate, logger: logger}
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// List returns users with pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return users, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ChangeRole assigns a new role to a user. Role changes have no enrollment
// side effects.
func (s *UserService) ChangeRole(ctx context.Context, id string, role models.UserRole) (*models.User, error) {
	if !role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Role == role {
		return user, nil
	}
	if err := s.users.UpdateRole(ctx, id, role); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update role")
	}
	user.Role = role
	s.logger.Info("user role changed", zap.String("user_id", id), zap.String("role", string(role)))
	return user, nil
}

// Deactivate marks a user inactive; it does not touch their enrollments.
func (s *UserService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.users.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate user")
	}
	return nil
}

// Block records that blockedBy has blocked blockedUser. When the blocker is
// a teacher, every enrollment the blocked user holds in the teacher's
// courses is removed.
func (s *UserService) Block(ctx context.Context, blockedUserID, blockedByID string) (*BlockResult, error) {
	if blockedUserID == blockedByID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot block yourself")
	}
	blocked, err := s.Get(ctx, blockedUserID)
	if err != nil {
		return nil, err
	}
	blocker, err := s.Get(ctx, blockedByID)
	if err != nil {
		return nil, err
	}

	exists, err := s.users.BlockExists(ctx, blockedUserID, blockedByID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check block")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "user is already blocked")
	}

	block := &models.UserBlock{BlockedUser: blocked.ID, BlockedBy: blocker.ID}
	if err := s.users.CreateBlock(ctx, block); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create block")
	}

	result := &BlockResult{}
	if blocker.Role == models.RoleTeacher {
		removed, err := s.lifecycle.OnUserBlocked(ctx, blockedUserID, blockedByID)
		if err != nil {
			return nil, err
		}
		result.EnrollmentsRemoved = removed
	}
	return result, nil
}
