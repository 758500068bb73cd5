package di

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postservice/application/queries"
	"postservice/domain/core/entities"
	"postservice/infrastructure/config"
	"postservice/infrastructure/persistence/sqlite"
	"postservice/pkg/auth"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		AWSRegion:   "us-east-1",
		Database:    config.DatabaseConfig{DSN: ":memory:"},
		Cache: config.CacheConfig{
			Backend:           "memory",
			TTL:               time.Hour,
			LockLease:         5 * time.Second,
			LockRetryAttempts: 3,
			LockRetryBackoff:  10 * time.Millisecond,
			StoreTimeout:      time.Second,
		},
		RateLimit: config.RateLimitConfig{
			Enabled:            true,
			GetRequests:        1000,
			GetWindowSeconds:   60,
			OtherRequests:      1000,
			OtherWindowSeconds: 60,
		},
		Events: config.EventsConfig{
			Transport:      "local",
			Workers:        2,
			OutboxInterval: time.Second,
		},
		Auth: config.AuthConfig{JWTSecret: "secret", JWTIssuer: "postservice"},
	}
}

type client struct {
	t     *testing.T
	srv   *httptest.Server
	token string
}

func (c *client) do(method, path, body string, out interface{}) int {
	c.t.Helper()
	req, err := http.NewRequest(method, c.srv.URL+path, strings.NewReader(body))
	require.NoError(c.t, err)
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestContainer_PostLifecycle(t *testing.T) {
	ctx := context.Background()
	container, err := InitializeContainer(ctx, testConfig())
	require.NoError(t, err)
	container.Start(ctx)
	t.Cleanup(func() { container.Shutdown(context.Background()) })

	require.NoError(t, sqlite.NewUserRepository(container.DB).Upsert(ctx, &entities.User{
		ID:          "u1",
		Username:    "alice",
		DisplayName: "Alice",
		CreatedAt:   time.Now().UTC(),
	}))

	srv := httptest.NewServer(container.Router.Setup())
	t.Cleanup(srv.Close)

	tok, err := auth.NewJWTGenerator("secret", "postservice", nil, time.Hour).GenerateToken("u1", "alice")
	require.NoError(t, err)
	c := &client{t: t, srv: srv, token: tok}

	var root entities.PostView
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/posts", `{"content":"hello"}`, &root))
	assert.Equal(t, "hello", root.Content)
	assert.Equal(t, "alice", root.Username)

	require.Equal(t, http.StatusNoContent, c.do(http.MethodPost, "/api/posts/"+root.ID+"/like", "", nil))

	var reply entities.PostView
	body := fmt.Sprintf(`{"content":"first","parentPostId":%q}`, root.ID)
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/posts", body, &reply))

	// counters converge once the synchronizer has applied the events
	assert.Eventually(t, func() bool {
		var view entities.PostView
		if c.do(http.MethodGet, "/api/posts/"+root.ID, "", &view) != http.StatusOK {
			return false
		}
		return view.LikeCount == 1 && view.ReplyCount == 1 && view.IsLiked != nil && *view.IsLiked
	}, 3*time.Second, 20*time.Millisecond)

	var status queries.LikeStatus
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/posts/"+root.ID+"/like", "", &status))
	assert.True(t, status.Liked)

	var thread entities.PostThread
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/posts/thread/"+root.ID, "", &thread))
	require.Len(t, thread.ChildPosts, 1)
	assert.Equal(t, reply.ID, thread.ChildPosts[0].Post.ID)

	var page queries.PostPage
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/posts/user/alice?size=10", "", &page))
	assert.Equal(t, 2, page.TotalElements)

	// deleting the reply takes it out of the parent's count
	require.Equal(t, http.StatusNoContent, c.do(http.MethodDelete, "/api/posts/"+reply.ID, "", nil))
	assert.Equal(t, http.StatusNotFound, c.do(http.MethodDelete, "/api/posts/"+reply.ID, "", nil))

	assert.Eventually(t, func() bool {
		var view entities.PostView
		c.do(http.MethodGet, "/api/posts/"+root.ID, "", &view)
		return view.ReplyCount == 0
	}, 3*time.Second, 20*time.Millisecond)
}
