package rest

import (
	"net/http"
	"strings"
	"time"

	"github.com/dfryer1193/webpress/api"
	"github.com/dfryer1193/webpress/blog/domain"
	"github.com/gin-gonic/gin"
)

// FeedConfig describes the site for absolute URLs and the RSS channel.
type FeedConfig struct {
	SiteURL     string
	Title       string
	Description string
	// WebmentionPath is advertised on post pages when set.
	WebmentionPath string
}

type PostHandler struct {
	posts  domain.PostReader
	config FeedConfig
	now    func() time.Time
}

func NewPostHandler(posts domain.PostReader, config FeedConfig) *PostHandler {
	config.SiteURL = strings.TrimRight(config.SiteURL, "/")
	return &PostHandler{
		posts:  posts,
		config: config,
		now:    time.Now,
	}
}

// GetPosts lists public posts newest first.
func (h *PostHandler) GetPosts(c *gin.Context) {
	h.list(c, false)
}

// GetOldestPosts lists public posts oldest first.
func (h *PostHandler) GetOldestPosts(c *gin.Context) {
	h.list(c, true)
}

func (h *PostHandler) list(c *gin.Context, ascending bool) {
	tag := c.Query("tag")
	posts := h.posts.ListPublic(h.now(), domain.ListOptions{Tag: tag, Ascending: ascending})

	summaries := make([]api.PostSummary, 0, len(posts))
	for _, p := range posts {
		summaries = append(summaries, h.summary(p))
	}
	c.JSON(http.StatusOK, api.PostList{Posts: summaries, Tag: tag})
}

// GetPost returns one public post. Posts dated in the future are not found.
func (h *PostHandler) GetPost(c *gin.Context) {
	post, ok := h.posts.Get(c.Param("id"))
	if !ok || !post.IsPublic(h.now()) {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}

	if h.config.WebmentionPath != "" {
		c.Header("Link", "<"+h.config.SiteURL+h.config.WebmentionPath+`>; rel="webmention"`)
	}
	c.JSON(http.StatusOK, api.Post{
		PostSummary: h.summary(post),
		Content:     post.Content,
	})
}

func (h *PostHandler) summary(p *domain.Post) api.PostSummary {
	hashtags := p.Hashtags
	if hashtags == nil {
		hashtags = []string{}
	}
	return api.PostSummary{
		ID:       p.ID,
		URL:      h.postURL(p.ID),
		Title:    p.Title,
		Snippet:  p.Snippet,
		Date:     p.Date,
		Hashtags: hashtags,
	}
}

func (h *PostHandler) postURL(id string) string {
	return h.config.SiteURL + domain.PostPath(id)
}
