package api

import "time"

// PostSummary is a listing entry.
type PostSummary struct {
	ID       string    `json:"id"`
	URL      string    `json:"url"`
	Title    string    `json:"title"`
	Snippet  string    `json:"snippet"`
	Date     time.Time `json:"date"`
	Hashtags []string  `json:"hashtags"`
}

// Post is a single post with its rendered content.
type Post struct {
	PostSummary
	Content string `json:"content"`
}

type PostList struct {
	Posts []PostSummary `json:"posts"`
	Tag   string        `json:"tag,omitempty"`
}
