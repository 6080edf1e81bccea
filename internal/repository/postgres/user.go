package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/PriceTracker/internal/domain"
	"github.com/utafrali/PriceTracker/pkg/database"
	apperrors "github.com/utafrali/PriceTracker/pkg/errors"
)

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db database.DBTX
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (err error) {
	query := `INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, $2, $3, $4)`

	ctx, end := database.TraceQuery(ctx, "InsertUser", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, u.ID, u.Email, u.PasswordHash, u.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.scanUser(ctx, "GetUser", `SELECT id, email, password_hash, created_at FROM users WHERE id = $1`, "id", id)
}

// GetByEmail retrieves a user by email, ignoring case.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.scanUser(ctx, "GetUserByEmail", `SELECT id, email, password_hash, created_at FROM users WHERE LOWER(email) = LOWER($1)`, "email", email)
}

func (r *UserRepository) scanUser(ctx context.Context, op, query, field, value string) (u *domain.User, err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	var user domain.User
	err = r.db.QueryRow(ctx, query, value).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("user", value)
	}
	if err != nil {
		return nil, fmt.Errorf("get user by %s: %w", field, err)
	}
	return &user, nil
}
