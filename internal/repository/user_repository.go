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

// UserRepository handles persistence of users and user blocks.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, first_name, last_name, bio, role, active, created_at, updated_at`

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, userColumns)
	var user models.User
	if err := sqlx.GetContext(ctx, r.db, &user, query, email); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID returns a user by ID.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	var user models.User
	if err := sqlx.GetContext(ctx, r.db, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// Create persists a new user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	const query = `INSERT INTO users (id, email, password_hash, first_name, last_name, bio, role, active, created_at, updated_at)
        VALUES (:id, :email, :password_hash, :first_name, :last_name, :bio, :role, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdateRole changes a user's role.
func (r *UserRepository) UpdateRole(ctx context.Context, id string, role models.UserRole) error {
	const query = `UPDATE users SET role = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, role, time.Now().UTC()); err != nil {
		return fmt.Errorf("update user role: %w", err)
	}
	return nil
}

// Deactivate marks a user inactive.
func (r *UserRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE users SET active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	return nil
}

// UserName returns the full name for a user ID, used when composing
// notification messages.
func (r *UserRepository) UserName(ctx context.Context, id string) (string, error) {
	const query = `SELECT first_name || ' ' || last_name FROM users WHERE id = $1`
	var name string
	if err := sqlx.GetContext(ctx, r.db, &name, query, id); err != nil {
		return "", err
	}
	return name, nil
}

// List returns users filtered by role and activity.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(first_name ILIKE $%d OR last_name ILIKE $%d OR email ILIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
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

	query := fmt.Sprintf(`SELECT %s FROM users%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, userColumns, clause, size, offset)
	var users []models.User
	if err := sqlx.SelectContext(ctx, r.db, &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM users" + clause
	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	return users, total, nil
}

// CreateBlock records that a user has blocked another.
func (r *UserRepository) CreateBlock(ctx context.Context, block *models.UserBlock) error {
	if block.ID == "" {
		block.ID = uuid.NewString()
	}
	if block.CreatedAt.IsZero() {
		block.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO user_blocks (id, blocked_user_id, blocked_by_id, created_at)
        VALUES (:id, :blocked_user_id, :blocked_by_id, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, block); err != nil {
		return fmt.Errorf("create user block: %w", err)
	}
	return nil
}

// BlockExists reports whether blockedBy already blocks blockedUser.
func (r *UserRepository) BlockExists(ctx context.Context, blockedUserID, blockedByID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM user_blocks WHERE blocked_user_id = $1 AND blocked_by_id = $2)`
	var exists bool
	if err := sqlx.GetContext(ctx, r.db, &exists, query, blockedUserID, blockedByID); err != nil {
		return false, fmt.Errorf("check user block: %w", err)
	}
	return exists, nil
}
