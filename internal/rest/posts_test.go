package rest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/dfryer1193/webpress/api"
	"github.com/dfryer1193/webpress/blog/domain"
	"github.com/gin-gonic/gin"
	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// memoryPosts mirrors the store's listing rules closely enough for handler tests.
type memoryPosts []*domain.Post

func (m memoryPosts) Get(id string) (*domain.Post, bool) {
	for _, p := range m {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

func (m memoryPosts) ListPublic(now time.Time, opts domain.ListOptions) []*domain.Post {
	var out []*domain.Post
	for _, p := range m {
		if p.IsPublic(now) && (opts.Tag == "" || p.HasTag(opts.Tag)) {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b *domain.Post) int {
		if opts.Ascending {
			return a.Date.Compare(b.Date)
		}
		return b.Date.Compare(a.Date)
	})
	return out
}

func testPosts() memoryPosts {
	return memoryPosts{
		{ID: "aaa111", Title: "First", Snippet: "first post", Content: "<p>first post</p>", Date: testNow.Add(-48 * time.Hour), HasDate: true, Hashtags: []string{"go"}},
		{ID: "bbb222", Title: "Second", Snippet: "second post", Content: "<p>second post</p>", Date: testNow.Add(-24 * time.Hour), HasDate: true},
		{ID: "ccc333", Title: "Future", Content: "<p>later</p>", Date: testNow.Add(24 * time.Hour), HasDate: true},
		{ID: "ddd444", Title: "Undated", Content: "<p>draft</p>"},
	}
}

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := NewPostHandler(testPosts(), FeedConfig{
		SiteURL:        "https://blog.example/",
		Title:          "Test Blog",
		Description:    "posts",
		WebmentionPath: "/webmentions",
	})
	h.now = func() time.Time { return testNow }

	r := gin.New()
	h.RegisterRoutes(r)
	return r
}

func get(r http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func listIDs(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code)
	var list api.PostList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	ids := []string{}
	for _, p := range list.Posts {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestGetPosts(t *testing.T) {
	r := setupRouter(t)

	tests := []struct {
		name   string
		target string
		want   []string
	}{
		{"Newest first", "/", []string{"bbb222", "aaa111"}},
		{"Oldest first", "/oldest", []string{"aaa111", "bbb222"}},
		{"Tag filter", "/?tag=go", []string{"aaa111"}},
		{"Unknown tag", "/oldest?tag=rust", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, listIDs(t, get(r, tt.target)))
		})
	}
}

func TestGetPost(t *testing.T) {
	r := setupRouter(t)

	rec := get(r, "/post/aaa111")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `<https://blog.example/webmentions>; rel="webmention"`, rec.Header().Get("Link"))

	var post api.Post
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &post))
	assert.Equal(t, "https://blog.example/post/aaa111", post.URL)
	assert.Equal(t, "<p>first post</p>", post.Content)
	assert.Equal(t, []string{"go"}, post.Hashtags)
}

func TestGetPost_NotVisible(t *testing.T) {
	r := setupRouter(t)

	for _, id := range []string{"ccc333", "ddd444", "missing"} {
		assert.Equal(t, http.StatusNotFound, get(r, "/post/"+id).Code, id)
	}
}

func TestGetFeed(t *testing.T) {
	r := setupRouter(t)

	rec := get(r, "/posts.rss")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/rss+xml")

	feed, err := gofeed.NewParser().ParseString(rec.Body.String())
	require.NoError(t, err)

	assert.Equal(t, "Test Blog", feed.Title)
	require.Len(t, feed.Items, 2)
	assert.Equal(t, "Second", feed.Items[0].Title)
	assert.Equal(t, "https://blog.example/post/bbb222", feed.Items[0].Link)
	assert.Equal(t, "<p>second post</p>", feed.Items[0].Content)
	require.NotNil(t, feed.Items[0].PublishedParsed)
	assert.True(t, feed.Items[0].PublishedParsed.Equal(testNow.Add(-24*time.Hour)))
}

func TestGetFeed_Tag(t *testing.T) {
	r := setupRouter(t)

	feed, err := gofeed.NewParser().ParseString(get(r, "/posts.rss?tag=go").Body.String())
	require.NoError(t, err)

	assert.Equal(t, "Test Blog #go", feed.Title)
	require.Len(t, feed.Items, 1)
	assert.Equal(t, "First", feed.Items[0].Title)
}
