package repository

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"

	"github.com/worksafe-io/be-permits/internal/database"
	"github.com/worksafe-io/be-permits/internal/errors"
)

const userColumns = `id, name, email, password_hash, role, level, created_at, updated_at`

// UserRepository handles user persistence.
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user. A duplicate email fails with a Conflict,
// and a second ADMIN is rejected by the partial unique index.
func (r *UserRepository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (name, email, password_hash, role, level)
		VALUES ($1, LOWER($2), $3, $4::user_role, $5)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.Level,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if isUniqueViolation(err) {
		return errors.New(errors.ErrCodeConflict, "user already registered")
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create user")
	}
	return nil
}

// GetByID retrieves a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUserRow(r.db.QueryRow(ctx, query, id), id)
}

// GetByEmail retrieves a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = LOWER($1)`
	return r.scanUserRow(r.db.QueryRow(ctx, query, email), email)
}

// AdminExists reports whether an ADMIN user is already registered.
func (r *UserRepository) AdminExists(ctx context.Context) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE role = 'ADMIN')`).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to check for admin user")
	}
	return exists, nil
}

// ListIDsByLevel returns the ids of all users at an authority level,
// used to fan out approval-required notifications.
func (r *UserRepository) ListIDsByLevel(ctx context.Context, level int) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM users WHERE level = $1`, level)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list users by level")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan user id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *UserRepository) scanUserRow(row pgx.Row, key string) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.Level,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("user", key)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get user")
	}
	return user, nil
}
