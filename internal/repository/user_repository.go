package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dreampuff/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user with this email already exists")
)

// Names are optional in the schema; staff accounts read them as empty strings.
const selectStaff = `
	SELECT id, email, password_hash,
	       COALESCE(first_name, '') AS first_name,
	       COALESCE(last_name, '')  AS last_name,
	       role, created_at, updated_at
	FROM users`

// UserRepository defines the interface for staff account access
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type userRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: sqlx.NewDb(db, "pgx")}
}

// Create stores a staff account; the email must be unique
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, role, created_at, updated_at)
		VALUES (:id, :email, :password_hash, :first_name, :last_name, :role, :created_at, :updated_at)`,
		user,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindByEmail retrieves a staff account by email, ignoring case
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, selectStaff+` WHERE LOWER(email) = LOWER($1)`, email)
}

func (r *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.findOne(ctx, selectStaff+` WHERE id = $1`, id)
}

func (r *userRepository) findOne(ctx context.Context, query string, arg interface{}) (*domain.User, error) {
	var user domain.User
	if err := r.db.GetContext(ctx, &user, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}
