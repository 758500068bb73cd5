package ports

import (
	"context"
	"time"

	"postservice/domain/core/entities"
)

// PostRepository defines the interface for post persistence in the authoritative store
// This is a port in hexagonal architecture - the domain doesn't know about the implementation
type PostRepository interface {
	// Save persists a new post
	Save(ctx context.Context, post *entities.Post) error

	// GetByID retrieves a post row, including soft-deleted ones.
	// Absence is reported as a NOT_FOUND AppError.
	GetByID(ctx context.Context, id string) (*entities.Post, error)

	// FetchAggregatedPostView computes the view with like, reply, repost and view counts.
	// Absence is reported as a NOT_FOUND AppError; soft-deleted posts are returned with Deleted set.
	FetchAggregatedPostView(ctx context.Context, id string) (*entities.PostView, error)

	// SoftDelete clears content and media and marks the post deleted
	SoftDelete(ctx context.Context, id string, deletedAt time.Time) error

	// FindRepostsOf returns the live reposts targeting a post
	FindRepostsOf(ctx context.Context, postID string) ([]*entities.Post, error)

	// FindIDs returns a page of live post ids, newest first, and the total count
	FindIDs(ctx context.Context, filter PostFilter, offset, limit int) ([]string, int, error)

	// CountByUser counts the live posts of a user
	CountByUser(ctx context.Context, userID string) (int, error)
}

// PostFilter narrows FindIDs. Empty fields do not filter.
type PostFilter struct {
	UserID       string
	ParentPostID string
}

// LikeRepository defines the interface for like persistence
type LikeRepository interface {
	// Exists is the authoritative like-existence predicate
	Exists(ctx context.Context, userID, postID string) (bool, error)

	// Save records a like and reports whether it was new
	Save(ctx context.Context, userID, postID string, at time.Time) (bool, error)

	// Delete removes a like and reports whether one existed
	Delete(ctx context.Context, userID, postID string) (bool, error)
}

// ViewRepository defines the interface for view persistence
type ViewRepository interface {
	// Save records a view and reports whether it was the user's first view of the post
	Save(ctx context.Context, userID, postID string, at time.Time) (bool, error)
}

// UserRepository is the authoritative source of user records
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*entities.User, error)
	GetByUsername(ctx context.Context, username string) (*entities.User, error)
}

// UserDirectory resolves user data for enrichment, backed by the user cache keys
type UserDirectory interface {
	// UserIDByUsername maps a username to its user id
	UserIDByUsername(ctx context.Context, username string) (string, error)

	// UserByID returns the full user record
	UserByID(ctx context.Context, id string) (*entities.User, error)

	// PublicUser returns the public projection used next to posts
	PublicUser(ctx context.Context, id string) (*entities.PublicUser, error)
}

// UnitOfWork defines a transaction boundary around a write and the events it emits
type UnitOfWork interface {
	// Within runs fn as one unit. Repositories and publishers called with the
	// context handed to fn take part in the same transaction, if there is one.
	Within(ctx context.Context, fn func(ctx context.Context) error) error
}

// Immediate is the UnitOfWork for publishers outside the store: each step
// commits on its own and fn runs directly
type Immediate struct{}

// Within runs fn
func (Immediate) Within(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
