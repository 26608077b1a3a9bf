package rest

import (
	"net/http"

	"github.com/dfryer1193/webpress/blog/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/feeds"
	"github.com/rs/zerolog/log"
)

const (
	defaultFeedTitle = "webpress"
	feedItemLimit    = 50
)

// GetFeed serves the newest public posts as RSS 2.0, optionally filtered by ?tag=.
func (h *PostHandler) GetFeed(c *gin.Context) {
	tag := c.Query("tag")
	posts := h.posts.ListPublic(h.now(), domain.ListOptions{Tag: tag})
	if len(posts) > feedItemLimit {
		posts = posts[:feedItemLimit]
	}

	feed := h.buildFeed(tag, posts)

	c.Header("Content-Type", "application/rss+xml; charset=utf-8")
	c.Status(http.StatusOK)
	if err := feed.WriteRss(c.Writer); err != nil {
		log.Error().Err(err).Msg("Failed to write RSS feed")
	}
}

func (h *PostHandler) buildFeed(tag string, posts []*domain.Post) *feeds.Feed {
	title := h.config.Title
	if title == "" {
		title = defaultFeedTitle
	}
	if tag != "" {
		title += " #" + tag
	}

	feed := &feeds.Feed{
		Title:       title,
		Link:        &feeds.Link{Href: h.config.SiteURL + "/"},
		Description: h.config.Description,
	}
	if len(posts) > 0 {
		feed.Created = posts[0].Date
	}

	for _, p := range posts {
		link := h.postURL(p.ID)
		feed.Items = append(feed.Items, &feeds.Item{
			Id:          link,
			Title:       p.Title,
			Link:        &feeds.Link{Href: link},
			Description: p.Snippet,
			Content:     p.Content,
			Created:     p.Date,
		})
	}
	return feed
}
