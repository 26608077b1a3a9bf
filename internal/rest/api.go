package rest

import (
	"github.com/gin-gonic/gin"
)

const (
	PostsPath  = "/"
	OldestPath = "/oldest"
	PostPath   = "/post/:id"
	FeedPath   = "/posts.rss"
)

// RegisterRoutes registers the public read routes.
func (h *PostHandler) RegisterRoutes(r gin.IRouter) {
	r.GET(PostsPath, h.GetPosts)
	r.GET(OldestPath, h.GetOldestPosts)
	r.GET(PostPath, h.GetPost)
	r.GET(FeedPath, h.GetFeed)
}
