package entities

import (
	"strings"
	"time"
)

// Post is the authoritative record of a post as stored in the relational store
type Post struct {
	ID             string
	ParentPostID   *string
	RepostParentID *string
	UserID         string
	Content        string
	MediaURL       *string
	MediaWidth     *int
	MediaHeight    *int
	Deleted        bool
	DeletedAt      *time.Time
	CreatedAt      time.Time
}

// IsReply reports whether the post answers another post
func (p *Post) IsReply() bool {
	return p.ParentPostID != nil
}

// IsRepost reports whether the post reposts another post
func (p *Post) IsRepost() bool {
	return p.RepostParentID != nil
}

// HasOwnContent reports whether the post carries text or media of its own.
// A repost without own content is a pure repost; with content it is a quote.
func (p *Post) HasOwnContent() bool {
	return strings.TrimSpace(p.Content) != "" || p.MediaURL != nil
}

// SoftDelete clears content and media and marks the post deleted
func (p *Post) SoftDelete(now time.Time) {
	p.Content = ""
	p.MediaURL = nil
	p.MediaWidth = nil
	p.MediaHeight = nil
	p.Deleted = true
	p.DeletedAt = &now
}

// PostView is the denormalized read model of a post.
//
// The counters and identity fields are what the cache stores. The profile and
// nested repost fields are joined at read time and are stripped by Sanitize
// before anything is written to the cache.
type PostView struct {
	ID             string    `json:"id"`
	ParentPostID   *string   `json:"parentPostId,omitempty"`
	RepostParentID *string   `json:"repostParentId,omitempty"`
	AuthorID       string    `json:"authorId"`
	Content        string    `json:"content"`
	MediaURL       *string   `json:"mediaUrl,omitempty"`
	MediaWidth     *int      `json:"mediaWidth,omitempty"`
	MediaHeight    *int      `json:"mediaHeight,omitempty"`
	LikeCount      int64     `json:"likeCount"`
	ReplyCount     int64     `json:"replyCount"`
	RepostCount    int64     `json:"repostCount"`
	ViewCount      int64     `json:"viewCount"`
	Deleted        bool      `json:"deleted"`
	CreatedAt      time.Time `json:"createdAt"`

	// Read-time enrichment
	Username        string    `json:"username,omitempty"`
	DisplayName     string    `json:"displayName,omitempty"`
	ProfileImageURL string    `json:"profileImageUrl,omitempty"`
	IsLiked         *bool     `json:"isLiked,omitempty"`
	Repost          *PostView `json:"repost,omitempty"`
}

// NewPostView builds a view for a freshly created post with all counters at zero
func NewPostView(p *Post) PostView {
	return PostView{
		ID:             p.ID,
		ParentPostID:   p.ParentPostID,
		RepostParentID: p.RepostParentID,
		AuthorID:       p.UserID,
		Content:        p.Content,
		MediaURL:       p.MediaURL,
		MediaWidth:     p.MediaWidth,
		MediaHeight:    p.MediaHeight,
		Deleted:        p.Deleted,
		CreatedAt:      p.CreatedAt,
	}
}

// Sanitize returns a copy without profile fields and nested repost payload
func (v PostView) Sanitize() PostView {
	v.Username = ""
	v.DisplayName = ""
	v.ProfileImageURL = ""
	v.IsLiked = nil
	v.Repost = nil
	return v
}

// Tombstone returns the sanitized soft-deleted shape of the view. Counters
// and identity fields are kept.
func (v PostView) Tombstone() PostView {
	v = v.Sanitize()
	v.Content = ""
	v.MediaURL = nil
	v.MediaWidth = nil
	v.MediaHeight = nil
	v.Deleted = true
	return v
}

// IsRepost reports whether the view reposts another post
func (v *PostView) IsRepost() bool {
	return v.RepostParentID != nil
}

// HasOwnContent mirrors Post.HasOwnContent for cached views
func (v *PostView) HasOwnContent() bool {
	return strings.TrimSpace(v.Content) != "" || v.MediaURL != nil
}

// PostThread is a parent post with a page of its replies, each carrying its own direct replies
type PostThread struct {
	ParentPost    *PostView   `json:"parentPost"`
	ChildPosts    []ChildPost `json:"childPosts"`
	HasNext       bool        `json:"hasNext"`
	TotalElements int         `json:"totalElements"`
	TotalPages    int         `json:"totalPages"`
	PageSize      int         `json:"pageSize"`
	CurrentPage   int         `json:"currentPage"`
}

// ChildPost is one reply within a thread
type ChildPost struct {
	Post       *PostView   `json:"post"`
	ChildPosts []*PostView `json:"childPosts"`
}
