package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"postservice/application/ports"
	"postservice/domain/core/entities"
	apperrors "postservice/pkg/errors"
)

const postColumns = `p.id, p.parent_post_id, p.repost_parent_id, p.user_id, p.content,
	p.media_url, p.media_width, p.media_height, p.deleted, p.deleted_at, p.created_at`

// Replies and reposts are counted only while live so the counts agree with
// the decrements applied to cached views on delete.
const aggregatedColumns = postColumns + `,
	(SELECT COUNT(1) FROM likes l WHERE l.post_id = p.id),
	(SELECT COUNT(1) FROM posts r WHERE r.parent_post_id = p.id AND r.deleted = 0),
	(SELECT COUNT(1) FROM posts rp WHERE rp.repost_parent_id = p.id AND rp.deleted = 0),
	(SELECT COUNT(1) FROM views v WHERE v.post_id = p.id)`

// PostRepository implements ports.PostRepository
type PostRepository struct {
	db *DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *DB) *PostRepository {
	return &PostRepository{db: db}
}

// Save persists a new post
func (r *PostRepository) Save(ctx context.Context, post *entities.Post) error {
	_, err := r.db.conn(ctx).ExecContext(ctx, `
		INSERT INTO posts (id, parent_post_id, repost_parent_id, user_id, content,
			media_url, media_width, media_height, deleted, deleted_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?)`,
		post.ID, nullString(post.ParentPostID), nullString(post.RepostParentID), post.UserID, post.Content,
		nullString(post.MediaURL), nullInt(post.MediaWidth), nullInt(post.MediaHeight), toUnix(post.CreatedAt),
	)
	if isUniqueViolation(err) {
		return apperrors.NewConflictError(fmt.Sprintf("post %s already exists", post.ID))
	}
	if err != nil {
		return apperrors.NewDatabaseError("save post", err)
	}
	return nil
}

// GetByID retrieves a post row, soft-deleted rows included
func (r *PostRepository) GetByID(ctx context.Context, id string) (*entities.Post, error) {
	row := r.db.conn(ctx).QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts p WHERE p.id = ?`, id)
	post, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.PostNotFound(id)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get post", err)
	}
	return post, nil
}

// FetchAggregatedPostView computes the view with its counters
func (r *PostRepository) FetchAggregatedPostView(ctx context.Context, id string) (*entities.PostView, error) {
	row := r.db.conn(ctx).QueryRowContext(ctx, `SELECT `+aggregatedColumns+` FROM posts p WHERE p.id = ?`, id)

	var counts [4]int64
	post, err := scanPost(row, &counts[0], &counts[1], &counts[2], &counts[3])
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.PostNotFound(id)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("fetch post view", err)
	}

	view := entities.NewPostView(post)
	view.LikeCount = counts[0]
	view.ReplyCount = counts[1]
	view.RepostCount = counts[2]
	view.ViewCount = counts[3]
	return &view, nil
}

// SoftDelete clears content and media and marks the post deleted
func (r *PostRepository) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	res, err := r.db.conn(ctx).ExecContext(ctx, `
		UPDATE posts
		SET content = '', media_url = NULL, media_width = NULL, media_height = NULL,
			deleted = 1, deleted_at = ?
		WHERE id = ?`,
		toUnix(deletedAt), id,
	)
	if err != nil {
		return apperrors.NewDatabaseError("soft delete post", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.PostNotFound(id)
	}
	return nil
}

// FindRepostsOf returns the live reposts targeting a post
func (r *PostRepository) FindRepostsOf(ctx context.Context, postID string) ([]*entities.Post, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx, `
		SELECT `+postColumns+` FROM posts p
		WHERE p.repost_parent_id = ? AND p.deleted = 0
		ORDER BY p.created_at, p.id`, postID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("find reposts", err)
	}
	defer rows.Close()

	var posts []*entities.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseError("scan repost", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("find reposts", err)
	}
	return posts, nil
}

// FindIDs returns a page of live post ids, newest first, and the total count
func (r *PostRepository) FindIDs(ctx context.Context, filter ports.PostFilter, offset, limit int) ([]string, int, error) {
	where, args := filterClause(filter)

	var total int
	if err := r.db.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(1) FROM posts p WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, apperrors.NewDatabaseError("count posts", err)
	}
	if total == 0 || offset >= total {
		return []string{}, total, nil
	}

	rows, err := r.db.conn(ctx).QueryContext(ctx,
		`SELECT p.id FROM posts p WHERE `+where+` ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, apperrors.NewDatabaseError("list posts", err)
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, 0, apperrors.NewDatabaseError("scan post id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperrors.NewDatabaseError("list posts", err)
	}
	return ids, total, nil
}

// CountByUser counts the live posts of a user
func (r *PostRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(1) FROM posts WHERE user_id = ? AND deleted = 0`, userID).Scan(&n)
	if err != nil {
		return 0, apperrors.NewDatabaseError("count user posts", err)
	}
	return n, nil
}

func filterClause(filter ports.PostFilter) (string, []interface{}) {
	clauses := []string{"p.deleted = 0"}
	var args []interface{}
	if filter.UserID != "" {
		clauses = append(clauses, "p.user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.ParentPostID != "" {
		clauses = append(clauses, "p.parent_post_id = ?")
		args = append(args, filter.ParentPostID)
	}
	return strings.Join(clauses, " AND "), args
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanPost reads postColumns followed by any extra destinations
func scanPost(s scanner, extra ...interface{}) (*entities.Post, error) {
	var (
		post                      entities.Post
		parentID, repostID, media sql.NullString
		width, height, deletedAt  sql.NullInt64
		deleted                   bool
		createdAt                 int64
	)

	dest := append([]interface{}{
		&post.ID, &parentID, &repostID, &post.UserID, &post.Content,
		&media, &width, &height, &deleted, &deletedAt, &createdAt,
	}, extra...)
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}

	post.ParentPostID = stringPtr(parentID)
	post.RepostParentID = stringPtr(repostID)
	post.MediaURL = stringPtr(media)
	post.MediaWidth = intPtr(width)
	post.MediaHeight = intPtr(height)
	post.Deleted = deleted
	post.CreatedAt = fromUnix(createdAt)
	if deletedAt.Valid {
		t := fromUnix(deletedAt.Int64)
		post.DeletedAt = &t
	}
	return &post, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func intPtr(i sql.NullInt64) *int {
	if !i.Valid {
		return nil
	}
	v := int(i.Int64)
	return &v
}

var _ ports.PostRepository = (*PostRepository)(nil)
