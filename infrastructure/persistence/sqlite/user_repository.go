package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"postservice/application/ports"
	"postservice/domain/core/entities"
	apperrors "postservice/pkg/errors"
)

// UserRepository implements ports.UserRepository over the users table,
// a read replica of the user service
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID returns the user with the given id
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entities.User, error) {
	return r.get(ctx, `WHERE id = ?`, id)
}

// GetByUsername returns the user with the given username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*entities.User, error) {
	return r.get(ctx, `WHERE username = ?`, username)
}

// Upsert inserts or replaces a user record
func (r *UserRepository) Upsert(ctx context.Context, u *entities.User) error {
	_, err := r.db.conn(ctx).ExecContext(ctx, `
		INSERT INTO users (id, username, display_name, email, bio, profile_image_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			display_name = excluded.display_name,
			email = excluded.email,
			bio = excluded.bio,
			profile_image_url = excluded.profile_image_url`,
		u.ID, u.Username, u.DisplayName, u.Email, u.Bio, u.ProfileImageURL, toUnix(u.CreatedAt),
	)
	if isUniqueViolation(err) {
		return apperrors.NewConflictError("username already taken")
	}
	if err != nil {
		return apperrors.NewDatabaseError("upsert user", err)
	}
	return nil
}

func (r *UserRepository) get(ctx context.Context, where string, arg string) (*entities.User, error) {
	var (
		u         entities.User
		createdAt int64
	)
	err := r.db.conn(ctx).QueryRowContext(ctx, `
		SELECT id, username, display_name, email, bio, profile_image_url, created_at
		FROM users `+where, arg,
	).Scan(&u.ID, &u.Username, &u.DisplayName, &u.Email, &u.Bio, &u.ProfileImageURL, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.UserNotFound(arg)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get user", err)
	}
	u.CreatedAt = fromUnix(createdAt)
	return &u, nil
}

var _ ports.UserRepository = (*UserRepository)(nil)
