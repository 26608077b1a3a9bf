package domain

import (
	"context"
	"regexp"
	"slices"
	"time"
)

var postPathRegex = regexp.MustCompile(`^/post/([A-Za-z0-9_-]+)/?$`)

// Post represents a blog post
// A post is created from a Markdown file with YAML front-matter. Content is the rendered
// HTML and is recomputed from RawContent on every load; it is never written back to disk.
type Post struct {
	ID         string
	Path       string
	Title      string
	Snippet    string
	RawContent string
	Content    string
	Date       time.Time
	HasDate    bool
	Published  bool
	Hashtags   []string

	// Fields holds every front-matter key as decoded YAML, known keys included.
	Fields map[string]any
}

// IsPublic reports whether the post should appear in public listings at now.
// Posts without a parseable date are never listed.
func (p *Post) IsPublic(now time.Time) bool {
	return p.HasDate && !p.Date.After(now)
}

// HasTag reports whether tag is one of the post's hashtags.
func (p *Post) HasTag(tag string) bool {
	return slices.Contains(p.Hashtags, tag)
}

// ListOptions controls ListPublic filtering and ordering.
type ListOptions struct {
	Tag       string
	Ascending bool
}

// PostReader is the read side of the post store, safe for concurrent use by HTTP handlers.
type PostReader interface {
	Get(id string) (*Post, bool)
	ListPublic(now time.Time, opts ListOptions) []*Post
}

type PostStore interface {
	PostReader

	// LoadAll re-reads the content directory and rebuilds the id index.
	LoadAll(ctx context.Context) error
	// AssignAndPersist allocates an id for a pending file and writes it back to disk.
	AssignAndPersist(ctx context.Context, path string) (*Post, error)
	// MarkPublished records that outbound notifications for the post were sent.
	MarkPublished(ctx context.Context, id string) error
	// Pending returns the paths still waiting for an id, in queue order.
	Pending() []string
	Stats() StoreStats
}

// StoreStats is a point-in-time view of the index, used for metrics.
type StoreStats struct {
	Posts        int
	Pending      int
	LoadFailures int
}

// IDGenerator produces identifiers that do not collide with existing.
type IDGenerator interface {
	Generate(existing map[string]struct{}) string
}

// PostPath returns the public URL path of a post.
func PostPath(id string) string {
	return "/post/" + id
}

// PostIDFromPath extracts the post id from a URL path like "/post/abc123".
func PostIDFromPath(path string) (string, bool) {
	matches := postPathRegex.FindStringSubmatch(path)
	if len(matches) < 2 {
		return "", false
	}
	return matches[1], true
}
