package handlers

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"postservice/application/ports"
	"postservice/application/queries"
	"postservice/domain/config"
	"postservice/domain/core/entities"
	apperrors "postservice/pkg/errors"
)

// stubPosts holds posts ordered newest first by creation time
type stubPosts struct {
	posts []*entities.Post
}

func (s *stubPosts) Save(context.Context, *entities.Post) error { return nil }

func (s *stubPosts) GetByID(_ context.Context, id string) (*entities.Post, error) {
	for _, p := range s.posts {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, apperrors.PostNotFound(id)
}

func (s *stubPosts) FetchAggregatedPostView(ctx context.Context, id string) (*entities.PostView, error) {
	p, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	v := entities.NewPostView(p)
	return &v, nil
}

func (s *stubPosts) SoftDelete(context.Context, string, time.Time) error { return nil }

func (s *stubPosts) FindRepostsOf(context.Context, string) ([]*entities.Post, error) { return nil, nil }

func (s *stubPosts) FindIDs(_ context.Context, f ports.PostFilter, offset, limit int) ([]string, int, error) {
	var ids []string
	for _, p := range s.posts {
		if p.Deleted {
			continue
		}
		if f.UserID != "" && p.UserID != f.UserID {
			continue
		}
		if f.ParentPostID != "" && (p.ParentPostID == nil || *p.ParentPostID != f.ParentPostID) {
			continue
		}
		ids = append(ids, p.ID)
	}
	total := len(ids)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return ids[offset:end], total, nil
}

func (s *stubPosts) CountByUser(_ context.Context, userID string) (int, error) {
	n := 0
	for _, p := range s.posts {
		if p.UserID == userID && !p.Deleted {
			n++
		}
	}
	return n, nil
}

// stubResolver resolves straight from stubPosts; ids in hidden resolve as not found
type stubResolver struct {
	posts  *stubPosts
	hidden map[string]bool
	mu     sync.Mutex
	calls  []string
}

func (r *stubResolver) Resolve(ctx context.Context, postID, _ string) (*entities.PostView, error) {
	r.mu.Lock()
	r.calls = append(r.calls, postID)
	r.mu.Unlock()
	if r.hidden[postID] {
		return nil, apperrors.PostNotFound(postID)
	}
	return r.posts.FetchAggregatedPostView(ctx, postID)
}

type stubLikes map[string]bool

func (s stubLikes) IsLiked(_ context.Context, userID, postID string) bool {
	return s[userID+"/"+postID]
}

type stubUsers map[string]string

func (s stubUsers) UserIDByUsername(_ context.Context, username string) (string, error) {
	if id, ok := s[username]; ok {
		return id, nil
	}
	return "", apperrors.UserNotFound(username)
}

func (s stubUsers) UserByID(context.Context, string) (*entities.User, error) { return nil, nil }

func (s stubUsers) PublicUser(context.Context, string) (*entities.PublicUser, error) { return nil, nil }

func ptr(s string) *string { return &s }

func fixture() (*PostQueryHandler, *stubResolver) {
	posts := &stubPosts{posts: []*entities.Post{
		{ID: "r2", UserID: "bob", Content: "second reply", ParentPostID: ptr("root")},
		{ID: "rr1", UserID: "alice", Content: "reply to reply", ParentPostID: ptr("r1")},
		{ID: "r1", UserID: "carol", Content: "first reply", ParentPostID: ptr("root")},
		{ID: "root", UserID: "alice", Content: "root"},
		{ID: "old", UserID: "alice", Content: "old", Deleted: true},
	}}
	resolver := &stubResolver{posts: posts, hidden: map[string]bool{}}
	cfg := config.DefaultDomainConfig()
	cfg.DefaultPageSize = 2
	h := NewPostQueryHandler(posts, resolver, stubLikes{"bob/root": true}, stubUsers{"alice": "alice"}, cfg, zap.NewNop())
	return h, resolver
}

func ids(views []*entities.PostView) []string {
	out := make([]string, 0, len(views))
	for _, v := range views {
		out = append(out, v.ID)
	}
	return out
}

func TestListPosts_PagesInOrder(t *testing.T) {
	h, _ := fixture()
	ctx := context.Background()

	first, err := h.ListPosts(ctx, queries.ListPostsQuery{PageRequest: queries.PageRequest{Page: 0}})
	require.NoError(t, err)
	assert.Equal(t, []string{"r2", "rr1"}, ids(first.Content))
	assert.Equal(t, 4, first.TotalElements)
	assert.Equal(t, 2, first.TotalPages)
	assert.True(t, first.HasNext)

	second, err := h.ListPosts(ctx, queries.ListPostsQuery{PageRequest: queries.PageRequest{Page: 1}})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "root"}, ids(second.Content))
	assert.False(t, second.HasNext)
}

func TestListPosts_DropsPostsDeletedMidPage(t *testing.T) {
	h, resolver := fixture()
	resolver.hidden["rr1"] = true

	page, err := h.ListPosts(context.Background(), queries.ListPostsQuery{PageRequest: queries.PageRequest{Size: 10}})

	require.NoError(t, err)
	assert.Equal(t, []string{"r2", "r1", "root"}, ids(page.Content))
	assert.Equal(t, 4, page.TotalElements)
}

func TestListUserPosts(t *testing.T) {
	h, _ := fixture()
	ctx := context.Background()

	page, err := h.ListUserPosts(ctx, queries.ListUserPostsQuery{Username: "alice", PageRequest: queries.PageRequest{Size: 10}})
	require.NoError(t, err)
	assert.Equal(t, []string{"rr1", "root"}, ids(page.Content))

	_, err = h.ListUserPosts(ctx, queries.ListUserPostsQuery{Username: "nobody"})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGetThread_AssemblesRepliesOfReplies(t *testing.T) {
	h, _ := fixture()

	thread, err := h.GetThread(context.Background(), queries.GetThreadQuery{ParentPostID: "root", PageRequest: queries.PageRequest{Size: 10}})

	require.NoError(t, err)
	assert.Equal(t, "root", thread.ParentPost.ID)
	require.Len(t, thread.ChildPosts, 2)
	assert.Equal(t, "r2", thread.ChildPosts[0].Post.ID)
	assert.Empty(t, thread.ChildPosts[0].ChildPosts)
	assert.Equal(t, "r1", thread.ChildPosts[1].Post.ID)
	assert.Equal(t, []string{"rr1"}, ids(thread.ChildPosts[1].ChildPosts))
	assert.Equal(t, 2, thread.TotalElements)
	assert.Equal(t, 0, thread.CurrentPage)
}

func TestGetThread_LeafAndMissingParent(t *testing.T) {
	h, resolver := fixture()
	ctx := context.Background()

	leaf, err := h.GetThread(ctx, queries.GetThreadQuery{ParentPostID: "rr1"})
	require.NoError(t, err)
	assert.Empty(t, leaf.ChildPosts)
	assert.Zero(t, leaf.TotalElements)

	_, err = h.GetThread(ctx, queries.GetThreadQuery{ParentPostID: "missing"})
	assert.True(t, apperrors.IsNotFound(err))

	calls := append([]string(nil), resolver.calls...)
	sort.Strings(calls)
	assert.Contains(t, calls, "missing")
}

func TestGetLikeStatusAndCount(t *testing.T) {
	h, _ := fixture()
	ctx := context.Background()

	status, err := h.GetLikeStatus(ctx, queries.GetLikeStatusQuery{PostID: "root", UserID: "bob"})
	require.NoError(t, err)
	assert.True(t, status.Liked)

	status, err = h.GetLikeStatus(ctx, queries.GetLikeStatusQuery{PostID: "root", UserID: "carol"})
	require.NoError(t, err)
	assert.False(t, status.Liked)

	count, err := h.CountUserPosts(ctx, queries.CountUserPostsQuery{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
