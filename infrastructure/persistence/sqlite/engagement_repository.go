package sqlite

import (
	"context"
	"time"

	"postservice/application/ports"
	apperrors "postservice/pkg/errors"
)

// LikeRepository implements ports.LikeRepository
type LikeRepository struct {
	db *DB
}

// NewLikeRepository creates a new like repository
func NewLikeRepository(db *DB) *LikeRepository {
	return &LikeRepository{db: db}
}

// Exists reports whether the user liked the post
func (r *LikeRepository) Exists(ctx context.Context, userID, postID string) (bool, error) {
	var n int
	err := r.db.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(1) FROM likes WHERE user_id = ? AND post_id = ?`, userID, postID).Scan(&n)
	if err != nil {
		return false, apperrors.NewDatabaseError("check like", err)
	}
	return n > 0, nil
}

// Save records a like and reports whether it was new
func (r *LikeRepository) Save(ctx context.Context, userID, postID string, at time.Time) (bool, error) {
	res, err := r.db.conn(ctx).ExecContext(ctx, `
		INSERT INTO likes (user_id, post_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id, post_id) DO NOTHING`,
		userID, postID, toUnix(at),
	)
	if err != nil {
		return false, apperrors.NewDatabaseError("save like", err)
	}
	return affected(res), nil
}

// Delete removes a like and reports whether one existed
func (r *LikeRepository) Delete(ctx context.Context, userID, postID string) (bool, error) {
	res, err := r.db.conn(ctx).ExecContext(ctx, `DELETE FROM likes WHERE user_id = ? AND post_id = ?`, userID, postID)
	if err != nil {
		return false, apperrors.NewDatabaseError("delete like", err)
	}
	return affected(res), nil
}

// ViewRepository implements ports.ViewRepository
type ViewRepository struct {
	db *DB
}

// NewViewRepository creates a new view repository
func NewViewRepository(db *DB) *ViewRepository {
	return &ViewRepository{db: db}
}

// Save records a view and reports whether it was the user's first
func (r *ViewRepository) Save(ctx context.Context, userID, postID string, at time.Time) (bool, error) {
	res, err := r.db.conn(ctx).ExecContext(ctx, `
		INSERT INTO views (user_id, post_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id, post_id) DO NOTHING`,
		userID, postID, toUnix(at),
	)
	if err != nil {
		return false, apperrors.NewDatabaseError("save view", err)
	}
	return affected(res), nil
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func affected(res rowsAffecter) bool {
	n, err := res.RowsAffected()
	return err == nil && n > 0
}

var (
	_ ports.LikeRepository = (*LikeRepository)(nil)
	_ ports.ViewRepository = (*ViewRepository)(nil)
)
