package persistence

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/dfryer1193/webpress/blog/document"
	"github.com/dfryer1193/webpress/blog/domain"
	"github.com/rs/zerolog/log"
)

var _ domain.PostStore = (*FilePostStore)(nil)

// FilePostStore implements domain.PostStore over a directory of front-matter Markdown files.
//
// Readers take mu for reading only. Every pass that changes the index or a file also holds
// writeMu for its whole duration, so loads, id assignment and publish bookkeeping never
// interleave and no pending file can be given two ids.
type FilePostStore struct {
	dir    string
	parser *document.Parser
	ids    domain.IDGenerator

	writeMu sync.Mutex

	mu           sync.RWMutex
	posts        map[string]*domain.Post
	paths        map[string]string
	pending      []string
	loadFailures int

	writeFile func(path string, data []byte) error
}

// NewFilePostStore creates an empty store; call LoadAll to populate it.
func NewFilePostStore(dir string, parser *document.Parser, ids domain.IDGenerator) *FilePostStore {
	return &FilePostStore{
		dir:       dir,
		parser:    parser,
		ids:       ids,
		posts:     make(map[string]*domain.Post),
		paths:     make(map[string]string),
		writeFile: atomicWriteFile,
	}
}

// Dir returns the content directory.
func (s *FilePostStore) Dir() string {
	return s.dir
}

// LoadAll reads every file in the content directory and swaps in a freshly built index.
// Files that fail to read or parse are logged and skipped. Files without an id are queued.
func (s *FilePostStore) LoadAll(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read content directory %s: %w", s.dir, err)
	}

	posts := make(map[string]*domain.Post, len(entries))
	paths := make(map[string]string, len(entries))
	var withoutID []string
	failures := 0

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() || isIgnoredFile(entry.Name()) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		doc, err := s.readDocument(path)
		if err != nil {
			failures++
			log.Error().Err(err).Str("path", path).Msg("Failed to load post file")
			continue
		}

		post, err := newPost(path, doc)
		if err != nil {
			failures++
			log.Error().Err(err).Str("path", path).Msg("Failed to load post file")
			continue
		}

		if post.ID == "" {
			withoutID = append(withoutID, path)
			continue
		}

		if previous, dup := paths[post.ID]; dup {
			log.Warn().
				Str("id", post.ID).
				Str("path", path).
				Str("previousPath", previous).
				Msg("Duplicate post id, keeping the last file read")
		}
		posts[post.ID] = post
		paths[post.ID] = path
	}

	s.mu.Lock()
	s.posts = posts
	s.paths = paths
	s.pending = mergePending(s.pending, withoutID)
	s.loadFailures = failures
	s.mu.Unlock()

	return nil
}

// mergePending keeps queued paths that still lack an id, in their original order, then
// appends newly found ones. Paths that gained an id or disappeared leave the queue.
func mergePending(queued []string, withoutID []string) []string {
	still := make(map[string]struct{}, len(withoutID))
	for _, p := range withoutID {
		still[p] = struct{}{}
	}

	merged := make([]string, 0, len(withoutID))
	seen := make(map[string]struct{}, len(withoutID))
	for _, p := range queued {
		if _, ok := still[p]; ok {
			merged = append(merged, p)
			seen[p] = struct{}{}
		}
	}
	for _, p := range withoutID {
		if _, ok := seen[p]; !ok {
			merged = append(merged, p)
			seen[p] = struct{}{}
		}
	}
	return merged
}

// AssignAndPersist gives the file at path a fresh id and writes it back to disk.
// When the write fails the path stays queued and the index is unchanged.
func (s *FilePostStore) AssignAndPersist(ctx context.Context, path string) (*domain.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	doc, err := s.readDocument(path)
	if err != nil {
		return nil, err
	}

	// the file may have been given an id by hand since it was queued
	if _, ok := doc.Meta.String("id"); ok {
		post, err := newPost(path, doc)
		if err != nil {
			return nil, err
		}
		s.insert(post)
		return post, nil
	}

	id := s.ids.Generate(s.IDs())
	if err := doc.Meta.Set("id", id); err != nil {
		return nil, err
	}

	data, err := document.Encode(doc.Meta, doc.RawBody)
	if err != nil {
		return nil, err
	}

	if err := s.writeFile(path, data); err != nil {
		return nil, fmt.Errorf("failed to persist id for %s: %w", path, err)
	}

	post, err := newPost(path, doc)
	if err != nil {
		return nil, err
	}
	s.insert(post)

	log.Info().Str("id", id).Str("path", path).Msg("Assigned post id")
	return post, nil
}

// MarkPublished sets `published: true` in the post's front-matter and in the index.
func (s *FilePostStore) MarkPublished(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	path, ok := s.paths[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("failed to mark post %s published: %w", id, domain.ErrPostNotFound)
	}

	doc, err := s.readDocument(path)
	if err != nil {
		return err
	}
	if fileID, _ := doc.Meta.String("id"); fileID != id {
		return fmt.Errorf("failed to mark post %s published (%s): %w", id, path, domain.ErrIDChanged)
	}

	if err := doc.Meta.Set("published", true); err != nil {
		return err
	}

	data, err := document.Encode(doc.Meta, doc.RawBody)
	if err != nil {
		return err
	}
	if err := s.writeFile(path, data); err != nil {
		return fmt.Errorf("failed to persist published flag for %s: %w", path, err)
	}

	post, err := newPost(path, doc)
	if err != nil {
		return err
	}
	s.insert(post)
	return nil
}

// Get returns the post with id. The returned post must be treated as read-only.
func (s *FilePostStore) Get(id string) (*domain.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, ok := s.posts[id]
	return post, ok
}

// ListPublic returns posts dated at or before now, optionally filtered by tag.
func (s *FilePostStore) ListPublic(now time.Time, opts domain.ListOptions) []*domain.Post {
	s.mu.RLock()
	posts := make([]*domain.Post, 0, len(s.posts))
	for _, p := range s.posts {
		if !p.IsPublic(now) {
			continue
		}
		if opts.Tag != "" && !p.HasTag(opts.Tag) {
			continue
		}
		posts = append(posts, p)
	}
	s.mu.RUnlock()

	slices.SortFunc(posts, func(a, b *domain.Post) int {
		c := a.Date.Compare(b.Date)
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if !opts.Ascending {
			c = -c
		}
		return c
	})
	return posts
}

// Pending returns a copy of the pending queue.
func (s *FilePostStore) Pending() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.pending)
}

// IDs returns a snapshot of the assigned ids.
func (s *FilePostStore) IDs() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make(map[string]struct{}, len(s.posts))
	for id := range s.posts {
		ids[id] = struct{}{}
	}
	return ids
}

// Stats reports index and pending queue sizes from the last load.
func (s *FilePostStore) Stats() domain.StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return domain.StoreStats{
		Posts:        len(s.posts),
		Pending:      len(s.pending),
		LoadFailures: s.loadFailures,
	}
}

func (s *FilePostStore) insert(post *domain.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.posts[post.ID] = post
	s.paths[post.ID] = post.Path
	s.pending = slices.DeleteFunc(s.pending, func(p string) bool {
		return p == post.Path
	})
}

func (s *FilePostStore) readDocument(path string) (*document.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read post file: %w", err)
	}

	doc, err := s.parser.Parse(data)
	if err != nil {
		var parseErr *document.ParseError
		if errors.As(err, &parseErr) {
			parseErr.Path = path
		}
		return nil, err
	}
	return doc, nil
}

func newPost(path string, doc *document.Document) (*domain.Post, error) {
	fields, err := doc.Meta.Fields()
	if err != nil {
		return nil, &document.ParseError{Path: path, Err: err}
	}

	post := &domain.Post{
		Path:       path,
		Title:      doc.Title,
		Snippet:    doc.Snippet,
		RawContent: doc.RawBody,
		Content:    doc.Rendered,
		Hashtags:   doc.Meta.Strings("hashtags"),
		Fields:     fields,
	}
	post.ID, _ = doc.Meta.String("id")
	post.Date, post.HasDate = doc.Meta.Time("date")
	post.Published, _ = doc.Meta.Bool("published")

	return post, nil
}
