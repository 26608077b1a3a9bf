package application

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dfryer1193/webpress/blog/domain"
	"github.com/rs/zerolog/log"
)

// OutboundNotifier sends webmentions for a freshly public post. Both calls return
// immediately; delivery happens in the background.
type OutboundNotifier interface {
	Notify(sourceURL string, targetURL string)
	NotifyLinks(sourceURL string, html string)
}

// Metrics receives reconciliation outcomes.
type Metrics interface {
	RecordReconcile(duration time.Duration, stats domain.StoreStats)
	RecordIDAssignment(err error)
}

type noopMetrics struct{}

func (noopMetrics) RecordReconcile(time.Duration, domain.StoreStats) {}
func (noopMetrics) RecordIDAssignment(error)                         {}

// PostServiceConfig controls the publish hook that runs after each reconciliation.
type PostServiceConfig struct {
	// SiteURL is the scheme and host posts are served from, e.g. "https://blog.example".
	SiteURL         string
	SendWebmentions bool
	// AlwaysNotify receives a webmention for every newly public post, e.g. a bridging service.
	AlwaysNotify []string
}

type PostService struct {
	store    domain.PostStore
	notifier OutboundNotifier
	metrics  Metrics
	config   PostServiceConfig
	now      func() time.Time

	// reconcileMu serializes reconciliation passes; the store has its own locking.
	reconcileMu sync.Mutex
	trigger     chan struct{}

	// Service lifecycle context - cancelled when Close() is called
	ctx    context.Context
	cancel context.CancelFunc
	wg     *sync.WaitGroup
}

func NewPostService(store domain.PostStore, notifier OutboundNotifier, metrics Metrics, config PostServiceConfig) *PostService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	config.SiteURL = strings.TrimRight(config.SiteURL, "/")

	ctx, cancel := context.WithCancel(context.Background())
	wg := sync.WaitGroup{}
	return &PostService{
		store:    store,
		notifier: notifier,
		metrics:  metrics,
		config:   config,
		now:      time.Now,
		trigger:  make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		wg:       &wg,
	}
}

// Close gracefully shuts down the PostService by cancelling all background workers
func (s *PostService) Close() error {
	s.cancel()
	s.wg.Wait()

	return nil
}

// Reconcile runs one full pass: reload the content directory, give every pending file an
// id, then send webmentions for posts that became public since the last pass.
// Failures on individual files are logged and never abort the pass.
func (s *PostService) Reconcile(ctx context.Context) error {
	s.reconcileMu.Lock()
	defer s.reconcileMu.Unlock()

	start := time.Now()

	if err := s.store.LoadAll(ctx); err != nil {
		return fmt.Errorf("failed to load posts: %w", err)
	}

	for _, path := range s.store.Pending() {
		log.Info().Str("path", path).Msg("Generating post id")
		_, err := s.store.AssignAndPersist(ctx, path)
		s.metrics.RecordIDAssignment(err)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("Failed to assign post id, leaving it pending")
		}
	}

	s.publishDue(ctx)

	stats := s.store.Stats()
	duration := time.Since(start)
	s.metrics.RecordReconcile(duration, stats)
	log.Debug().
		Int("posts", stats.Posts).
		Int("pending", stats.Pending).
		Int("loadFailures", stats.LoadFailures).
		Dur("duration", duration).
		Msg("Reconciled posts")

	return nil
}

// publishDue notifies the outbound links of every public post not yet marked published.
func (s *PostService) publishDue(ctx context.Context) {
	if !s.config.SendWebmentions || s.notifier == nil || s.config.SiteURL == "" {
		return
	}

	for _, post := range s.store.ListPublic(s.now(), domain.ListOptions{Ascending: true}) {
		if post.Published {
			continue
		}

		source := s.PostURL(post.ID)
		s.notifier.NotifyLinks(source, post.Content)
		for _, target := range s.config.AlwaysNotify {
			s.notifier.Notify(source, target)
		}

		if err := s.store.MarkPublished(ctx, post.ID); err != nil {
			log.Error().Err(err).Str("postID", post.ID).Msg("Failed to mark post published")
			continue
		}
		log.Info().Str("postID", post.ID).Msg("Published post")
	}
}

// PostURL returns the absolute URL of a post.
func (s *PostService) PostURL(id string) string {
	return s.config.SiteURL + domain.PostPath(id)
}

func (s *PostService) reconcileAndLog() {
	if err := s.Reconcile(s.ctx); err != nil {
		log.Error().Err(err).Msg("Failed to reconcile posts")
	}
}
