package queries

import (
	"postservice/domain/core/entities"
	"postservice/pkg/common"
	"postservice/pkg/utils"
)

// GetPostQuery resolves one post for an optional viewer
type GetPostQuery struct {
	PostID   string `json:"postId" validate:"required"`
	ViewerID string `json:"viewerId"`
}

// Validate validates the query
func (q GetPostQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// PageRequest is a zero-based page of a listing
type PageRequest struct {
	Page int `json:"page" validate:"min=0"`
	Size int `json:"size" validate:"min=0"`
}

// ListPostsQuery lists the newest live posts, replies included
type ListPostsQuery struct {
	PageRequest
	ViewerID string `json:"viewerId"`
}

// Validate validates the query
func (q ListPostsQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// ListUserPostsQuery lists the posts of a user found by username
type ListUserPostsQuery struct {
	PageRequest
	Username string `json:"username" validate:"required"`
	ViewerID string `json:"viewerId"`
}

// Validate validates the query
func (q ListUserPostsQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// ListRepliesQuery lists the direct replies to a post
type ListRepliesQuery struct {
	PageRequest
	ParentPostID string `json:"parentPostId" validate:"required"`
	ViewerID     string `json:"viewerId"`
}

// Validate validates the query
func (q ListRepliesQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// GetThreadQuery builds a post with a page of replies and their replies
type GetThreadQuery struct {
	PageRequest
	ParentPostID string `json:"parentPostId" validate:"required"`
	ViewerID     string `json:"viewerId"`
}

// Validate validates the query
func (q GetThreadQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// GetLikeStatusQuery asks whether a user liked a post
type GetLikeStatusQuery struct {
	PostID string `json:"postId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

// Validate validates the query
func (q GetLikeStatusQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// CountUserPostsQuery counts the live posts of a user
type CountUserPostsQuery struct {
	UserID string `json:"userId" validate:"required"`
}

// Validate validates the query
func (q CountUserPostsQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// PostPage is one page of resolved posts
type PostPage struct {
	Content       []*entities.PostView `json:"content"`
	Page          int                  `json:"page"`
	Size          int                  `json:"size"`
	TotalElements int                  `json:"totalElements"`
	TotalPages    int                  `json:"totalPages"`
	HasNext       bool                 `json:"hasNext"`
}

// NewPostPage fills the paging metadata for a zero-based page
func NewPostPage(content []*entities.PostView, page, size, total int) *PostPage {
	totalPages := common.CalculateTotalPages(total, size)
	if content == nil {
		content = []*entities.PostView{}
	}
	return &PostPage{
		Content:       content,
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    totalPages,
		HasNext:       page+1 < totalPages,
	}
}

// LikeStatus is the result of GetLikeStatusQuery
type LikeStatus struct {
	PostID string `json:"postId"`
	Liked  bool   `json:"liked"`
}
