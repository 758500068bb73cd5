package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"postservice/application/commands"
	"postservice/application/commands/bus"
	"postservice/application/queries"
	querybus "postservice/application/queries/bus"
	"postservice/domain/core/entities"
	"postservice/pkg/auth"
	"postservice/pkg/common"
	apperrors "postservice/pkg/errors"
)

// PostHandler handles post-related HTTP requests
type PostHandler struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	errors     *apperrors.ErrorHandler
	logger     *zap.Logger
}

// NewPostHandler creates a new post handler
func NewPostHandler(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	errorHandler *apperrors.ErrorHandler,
	logger *zap.Logger,
) *PostHandler {
	return &PostHandler{
		commandBus: commandBus,
		queryBus:   queryBus,
		errors:     errorHandler,
		logger:     logger,
	}
}

// CreatePostRequest represents the request body for creating a post
type CreatePostRequest struct {
	ParentPostID   *string `json:"parentPostId,omitempty"`
	RepostParentID *string `json:"repostParentId,omitempty"`
	Content        string  `json:"content"`
	MediaURL       *string `json:"mediaUrl,omitempty"`
	MediaWidth     *int    `json:"mediaWidth,omitempty"`
	MediaHeight    *int    `json:"mediaHeight,omitempty"`
}

// CountResponse is returned by the internal count endpoint
type CountResponse struct {
	UserID string `json:"userId"`
	Count  int    `json:"count"`
}

// CreatePost handles POST /api/posts
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req CreatePostRequest
	if err := common.ParseJSONBody(w, r, &req, common.MaxBodyBytes); err != nil {
		h.errors.Handle(w, r, apperrors.NewValidationError("Invalid request body: "+err.Error()))
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	cmd := commands.CreatePostCommand{
		PostID:         uuid.NewString(),
		UserID:         userID,
		ParentPostID:   req.ParentPostID,
		RepostParentID: req.RepostParentID,
		Content:        req.Content,
		MediaURL:       req.MediaURL,
		MediaWidth:     req.MediaWidth,
		MediaHeight:    req.MediaHeight,
	}

	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	view, err := querybus.AskAs[*entities.PostView](r.Context(), h.queryBus, queries.GetPostQuery{
		PostID:   cmd.PostID,
		ViewerID: userID,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	h.logger.Debug("Post created",
		zap.String("postID", cmd.PostID),
		zap.String("userID", userID),
	)
	common.RespondJSON(w, http.StatusCreated, view)
}

// GetPost handles GET /api/posts/{id}
func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	view, err := querybus.AskAs[*entities.PostView](r.Context(), h.queryBus, queries.GetPostQuery{
		PostID:   chi.URLParam(r, "id"),
		ViewerID: auth.UserIDFromContext(r.Context()),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, view)
}

// DeletePost handles DELETE /api/posts/{id}
func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, commands.DeletePostCommand{
		PostID: chi.URLParam(r, "id"),
		UserID: auth.UserIDFromContext(r.Context()),
	})
}

// ListPosts handles GET /api/posts
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	h.askPage(w, r, queries.ListPostsQuery{
		PageRequest: pageRequest(r),
		ViewerID:    auth.UserIDFromContext(r.Context()),
	})
}

// ListUserPosts handles GET /api/posts/user/{username}
func (h *PostHandler) ListUserPosts(w http.ResponseWriter, r *http.Request) {
	h.askPage(w, r, queries.ListUserPostsQuery{
		PageRequest: pageRequest(r),
		Username:    chi.URLParam(r, "username"),
		ViewerID:    auth.UserIDFromContext(r.Context()),
	})
}

// ListReplies handles GET /api/posts/parent/{id}
func (h *PostHandler) ListReplies(w http.ResponseWriter, r *http.Request) {
	h.askPage(w, r, queries.ListRepliesQuery{
		PageRequest:  pageRequest(r),
		ParentPostID: chi.URLParam(r, "id"),
		ViewerID:     auth.UserIDFromContext(r.Context()),
	})
}

// GetThread handles GET /api/posts/thread/{id}
func (h *PostHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	thread, err := querybus.AskAs[*entities.PostThread](r.Context(), h.queryBus, queries.GetThreadQuery{
		PageRequest:  pageRequest(r),
		ParentPostID: chi.URLParam(r, "id"),
		ViewerID:     auth.UserIDFromContext(r.Context()),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, thread)
}

// LikePost handles POST /api/posts/{id}/like
func (h *PostHandler) LikePost(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, commands.LikePostCommand{
		PostID: chi.URLParam(r, "id"),
		UserID: auth.UserIDFromContext(r.Context()),
	})
}

// UnlikePost handles DELETE /api/posts/{id}/like
func (h *PostHandler) UnlikePost(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, commands.UnlikePostCommand{
		PostID: chi.URLParam(r, "id"),
		UserID: auth.UserIDFromContext(r.Context()),
	})
}

// GetLikeStatus handles GET /api/posts/{id}/like
func (h *PostHandler) GetLikeStatus(w http.ResponseWriter, r *http.Request) {
	status, err := querybus.AskAs[*queries.LikeStatus](r.Context(), h.queryBus, queries.GetLikeStatusQuery{
		PostID: chi.URLParam(r, "id"),
		UserID: auth.UserIDFromContext(r.Context()),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, status)
}

// ViewPost handles POST /api/posts/{id}/view
func (h *PostHandler) ViewPost(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, commands.ViewPostCommand{
		PostID: chi.URLParam(r, "id"),
		UserID: auth.UserIDFromContext(r.Context()),
	})
}

// CountUserPosts handles GET /api/internal/posts/count?userId=
func (h *PostHandler) CountUserPosts(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	count, err := querybus.AskAs[int](r.Context(), h.queryBus, queries.CountUserPostsQuery{UserID: userID})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, CountResponse{UserID: userID, Count: count})
}

func (h *PostHandler) send(w http.ResponseWriter, r *http.Request, cmd bus.Command) {
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondNoContent(w)
}

func (h *PostHandler) askPage(w http.ResponseWriter, r *http.Request, q querybus.Query) {
	page, err := querybus.AskAs[*queries.PostPage](r.Context(), h.queryBus, q)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, page)
}

func pageRequest(r *http.Request) queries.PageRequest {
	p := common.ExtractPageParams(r)
	return queries.PageRequest{Page: p.Page, Size: p.Size}
}
