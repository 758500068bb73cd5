package handlers

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"postservice/application/ports"
	"postservice/application/queries"
	"postservice/domain/config"
	"postservice/domain/core/entities"
	apperrors "postservice/pkg/errors"
)

// PostResolver resolves one enriched post view
type PostResolver interface {
	Resolve(ctx context.Context, postID, viewerID string) (*entities.PostView, error)
}

// LikeChecker answers like-existence questions
type LikeChecker interface {
	IsLiked(ctx context.Context, userID, postID string) bool
}

// PostQueryHandler serves the read side. Listings fetch ids from the
// authoritative store and resolve each id through the cache.
type PostQueryHandler struct {
	posts    ports.PostRepository
	resolver PostResolver
	likes    LikeChecker
	users    ports.UserDirectory
	cfg      *config.DomainConfig
	logger   *zap.Logger
}

// NewPostQueryHandler creates a new post query handler
func NewPostQueryHandler(
	posts ports.PostRepository,
	resolver PostResolver,
	likes LikeChecker,
	users ports.UserDirectory,
	cfg *config.DomainConfig,
	logger *zap.Logger,
) *PostQueryHandler {
	return &PostQueryHandler{
		posts:    posts,
		resolver: resolver,
		likes:    likes,
		users:    users,
		cfg:      cfg,
		logger:   logger,
	}
}

// GetPost resolves a single post
func (h *PostQueryHandler) GetPost(ctx context.Context, q queries.GetPostQuery) (*entities.PostView, error) {
	return h.resolver.Resolve(ctx, q.PostID, q.ViewerID)
}

// ListPosts lists the newest live posts
func (h *PostQueryHandler) ListPosts(ctx context.Context, q queries.ListPostsQuery) (*queries.PostPage, error) {
	return h.page(ctx, ports.PostFilter{}, q.PageRequest, q.ViewerID)
}

// ListUserPosts lists the posts of the user behind a username
func (h *PostQueryHandler) ListUserPosts(ctx context.Context, q queries.ListUserPostsQuery) (*queries.PostPage, error) {
	userID, err := h.users.UserIDByUsername(ctx, q.Username)
	if err != nil {
		return nil, err
	}
	return h.page(ctx, ports.PostFilter{UserID: userID}, q.PageRequest, q.ViewerID)
}

// ListReplies lists the direct replies to a post
func (h *PostQueryHandler) ListReplies(ctx context.Context, q queries.ListRepliesQuery) (*queries.PostPage, error) {
	return h.page(ctx, ports.PostFilter{ParentPostID: q.ParentPostID}, q.PageRequest, q.ViewerID)
}

// GetThread resolves the parent, a page of its replies and the direct replies
// of each of those. Replies are assembled concurrently.
func (h *PostQueryHandler) GetThread(ctx context.Context, q queries.GetThreadQuery) (*entities.PostThread, error) {
	parent, err := h.resolver.Resolve(ctx, q.ParentPostID, q.ViewerID)
	if err != nil {
		return nil, err
	}

	children, err := h.page(ctx, ports.PostFilter{ParentPostID: q.ParentPostID}, q.PageRequest, q.ViewerID)
	if err != nil {
		return nil, err
	}

	if len(children.Content) == 0 {
		return &entities.PostThread{ParentPost: parent, ChildPosts: []entities.ChildPost{}}, nil
	}

	childPosts := make([]entities.ChildPost, len(children.Content))
	g, gctx := errgroup.WithContext(ctx)
	for i, child := range children.Content {
		i, child := i, child
		g.Go(func() error {
			replies, err := h.page(gctx, ports.PostFilter{ParentPostID: child.ID}, queries.PageRequest{Size: h.cfg.MaxPageSize}, q.ViewerID)
			if err != nil {
				return err
			}
			childPosts[i] = entities.ChildPost{Post: child, ChildPosts: replies.Content}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &entities.PostThread{
		ParentPost:    parent,
		ChildPosts:    childPosts,
		HasNext:       children.HasNext,
		TotalElements: children.TotalElements,
		TotalPages:    children.TotalPages,
		PageSize:      children.Size,
		CurrentPage:   children.Page,
	}, nil
}

// GetLikeStatus reports whether the user liked the post
func (h *PostQueryHandler) GetLikeStatus(ctx context.Context, q queries.GetLikeStatusQuery) (*queries.LikeStatus, error) {
	return &queries.LikeStatus{PostID: q.PostID, Liked: h.likes.IsLiked(ctx, q.UserID, q.PostID)}, nil
}

// CountUserPosts counts the live posts of a user
func (h *PostQueryHandler) CountUserPosts(ctx context.Context, q queries.CountUserPostsQuery) (int, error) {
	count, err := h.posts.CountByUser(ctx, q.UserID)
	if err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return count, nil
}

// page fetches one page of ids and resolves them in order. Posts deleted
// between the id scan and the resolve are dropped from the page.
func (h *PostQueryHandler) page(ctx context.Context, filter ports.PostFilter, req queries.PageRequest, viewerID string) (*queries.PostPage, error) {
	size := h.cfg.ClampPageSize(req.Size)

	ids, total, err := h.posts.FindIDs(ctx, filter, req.Page*size, size)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	views := make([]*entities.PostView, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			view, err := h.resolver.Resolve(gctx, id, viewerID)
			if err != nil {
				if apperrors.IsNotFound(err) {
					return nil
				}
				return err
			}
			views[i] = view
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	content := make([]*entities.PostView, 0, len(views))
	for _, v := range views {
		if v != nil {
			content = append(content, v)
		}
	}

	return queries.NewPostPage(content, req.Page, size, total), nil
}
