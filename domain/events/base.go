package events

import (
	"time"

	"postservice/domain/core/entities"

	"github.com/google/uuid"
)

// SourcePostService is the event source name used on the bus
const SourcePostService = "postservice.posts"

// Event types
const (
	TypePostCreated = "post.created"
	TypePostDeleted = "post.deleted"
	TypePostLiked   = "post.liked"
	TypePostUnliked = "post.unliked"
	TypePostViewed  = "post.viewed"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetEventID() string
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventID     string    `json:"eventId"`
	AggregateID string    `json:"aggregateId"`
	EventType   string    `json:"eventType"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetEventID() string      { return e.EventID }
func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

func newBase(aggregateID, eventType string, timestamp time.Time) BaseEvent {
	return BaseEvent{
		EventID:     uuid.NewString(),
		AggregateID: aggregateID,
		EventType:   eventType,
		Timestamp:   timestamp,
		Version:     1,
	}
}

// PostEvent is the closed set of events consumed by the counter synchronizer.
// Only the types in this package implement it; consumers switch over them exhaustively.
type PostEvent interface {
	DomainEvent
	// PartitionKey routes every event of one post to the same ordered stream
	PartitionKey() string
	postEvent()
}

// PostSnapshot carries the identifiers needed to locate the views a post event affects
type PostSnapshot struct {
	PostID         string    `json:"postId"`
	ParentPostID   *string   `json:"parentPostId,omitempty"`
	RepostParentID *string   `json:"repostParentId,omitempty"`
	AuthorID       string    `json:"authorId"`
	Content        string    `json:"content"`
	MediaURL       *string   `json:"mediaUrl,omitempty"`
	MediaWidth     *int      `json:"mediaWidth,omitempty"`
	MediaHeight    *int      `json:"mediaHeight,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// SnapshotOf captures a post for an event payload
func SnapshotOf(p *entities.Post) PostSnapshot {
	return PostSnapshot{
		PostID:         p.ID,
		ParentPostID:   p.ParentPostID,
		RepostParentID: p.RepostParentID,
		AuthorID:       p.UserID,
		Content:        p.Content,
		MediaURL:       p.MediaURL,
		MediaWidth:     p.MediaWidth,
		MediaHeight:    p.MediaHeight,
		CreatedAt:      p.CreatedAt,
	}
}

// ToPost rebuilds the post fields carried by the snapshot
func (s PostSnapshot) ToPost() *entities.Post {
	return &entities.Post{
		ID:             s.PostID,
		ParentPostID:   s.ParentPostID,
		RepostParentID: s.RepostParentID,
		UserID:         s.AuthorID,
		Content:        s.Content,
		MediaURL:       s.MediaURL,
		MediaWidth:     s.MediaWidth,
		MediaHeight:    s.MediaHeight,
		CreatedAt:      s.CreatedAt,
	}
}

// PostCreated is raised after a post is persisted
type PostCreated struct {
	BaseEvent
	Post PostSnapshot `json:"post"`
}

// NewPostCreated creates a PostCreated event
func NewPostCreated(post *entities.Post, timestamp time.Time) PostCreated {
	return PostCreated{
		BaseEvent: newBase(post.ID, TypePostCreated, timestamp),
		Post:      SnapshotOf(post),
	}
}

func (e PostCreated) PartitionKey() string { return e.Post.PostID }
func (PostCreated) postEvent()             {}

// PostDeleted is raised after a post is soft-deleted. The snapshot holds the
// pre-delete parent and repost-parent references.
type PostDeleted struct {
	BaseEvent
	Post PostSnapshot `json:"post"`
}

// NewPostDeleted creates a PostDeleted event
func NewPostDeleted(post *entities.Post, timestamp time.Time) PostDeleted {
	return PostDeleted{
		BaseEvent: newBase(post.ID, TypePostDeleted, timestamp),
		Post:      SnapshotOf(post),
	}
}

func (e PostDeleted) PartitionKey() string { return e.Post.PostID }
func (PostDeleted) postEvent()             {}

// PostLiked is raised when a user likes a post
type PostLiked struct {
	BaseEvent
	PostID string `json:"postId"`
	UserID string `json:"userId"`
}

// NewPostLiked creates a PostLiked event
func NewPostLiked(postID, userID string, timestamp time.Time) PostLiked {
	return PostLiked{
		BaseEvent: newBase(postID, TypePostLiked, timestamp),
		PostID:    postID,
		UserID:    userID,
	}
}

func (e PostLiked) PartitionKey() string { return e.PostID }
func (PostLiked) postEvent()             {}

// PostUnliked is raised when a user removes a like
type PostUnliked struct {
	BaseEvent
	PostID string `json:"postId"`
	UserID string `json:"userId"`
}

// NewPostUnliked creates a PostUnliked event
func NewPostUnliked(postID, userID string, timestamp time.Time) PostUnliked {
	return PostUnliked{
		BaseEvent: newBase(postID, TypePostUnliked, timestamp),
		PostID:    postID,
		UserID:    userID,
	}
}

func (e PostUnliked) PartitionKey() string { return e.PostID }
func (PostUnliked) postEvent()             {}

// PostViewed is raised the first time a user views a post
type PostViewed struct {
	BaseEvent
	PostID string `json:"postId"`
	UserID string `json:"userId"`
}

// NewPostViewed creates a PostViewed event
func NewPostViewed(postID, userID string, timestamp time.Time) PostViewed {
	return PostViewed{
		BaseEvent: newBase(postID, TypePostViewed, timestamp),
		PostID:    postID,
		UserID:    userID,
	}
}

func (e PostViewed) PartitionKey() string { return e.PostID }
func (PostViewed) postEvent()             {}
