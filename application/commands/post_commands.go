package commands

import (
	"time"

	"postservice/domain/core/entities"
	"postservice/pkg/utils"
)

// CreatePostCommand creates a post, a reply or a repost
type CreatePostCommand struct {
	PostID         string  `json:"postId" validate:"required,uuid"`
	UserID         string  `json:"userId" validate:"required"`
	ParentPostID   *string `json:"parentPostId" validate:"omitempty,min=1"`
	RepostParentID *string `json:"repostParentId" validate:"omitempty,min=1"`
	Content        string  `json:"content"`
	MediaURL       *string `json:"mediaUrl" validate:"omitempty,url"`
	MediaWidth     *int    `json:"mediaWidth" validate:"omitempty,gt=0"`
	MediaHeight    *int    `json:"mediaHeight" validate:"omitempty,gt=0"`
}

// Validate validates the command shape. Content rules are checked by the domain validator.
func (c CreatePostCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// ToPost builds the post entity the command describes
func (c CreatePostCommand) ToPost(createdAt time.Time) *entities.Post {
	return &entities.Post{
		ID:             c.PostID,
		ParentPostID:   c.ParentPostID,
		RepostParentID: c.RepostParentID,
		UserID:         c.UserID,
		Content:        c.Content,
		MediaURL:       c.MediaURL,
		MediaWidth:     c.MediaWidth,
		MediaHeight:    c.MediaHeight,
		CreatedAt:      createdAt,
	}
}

// DeletePostCommand soft-deletes a post owned by UserID
type DeletePostCommand struct {
	PostID string `json:"postId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

// Validate validates the command
func (c DeletePostCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// LikePostCommand records a like
type LikePostCommand struct {
	PostID string `json:"postId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

// Validate validates the command
func (c LikePostCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// UnlikePostCommand removes a like
type UnlikePostCommand struct {
	PostID string `json:"postId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

// Validate validates the command
func (c UnlikePostCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// ViewPostCommand records that a user viewed a post
type ViewPostCommand struct {
	PostID string `json:"postId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

// Validate validates the command
func (c ViewPostCommand) Validate() error {
	return utils.ValidateStruct(c)
}
