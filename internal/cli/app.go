package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	blogapp "github.com/dfryer1193/webpress/blog/application"
	"github.com/dfryer1193/webpress/blog/document"
	blogpersistence "github.com/dfryer1193/webpress/blog/persistence"
	"github.com/dfryer1193/webpress/internal/config"
	"github.com/dfryer1193/webpress/internal/metrics"
	"github.com/dfryer1193/webpress/internal/middleware"
	"github.com/dfryer1193/webpress/internal/rest"
	"github.com/dfryer1193/webpress/shared/db/sqlite"
	"github.com/dfryer1193/webpress/shared/fetch"
	wmapp "github.com/dfryer1193/webpress/webmention/application"
	wmhttp "github.com/dfryer1193/webpress/webmention/http"
	wmpersistence "github.com/dfryer1193/webpress/webmention/persistence"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

const metricsPath = "/metrics"

// app holds every wired component of a running instance.
type app struct {
	config   *config.Config
	database *sqlite.SQLiteDB
	registry *prometheus.Registry
	metrics  *metrics.Collector
	store    *blogpersistence.FilePostStore
	sender   *wmapp.Sender
	receiver *wmapp.Receiver
	service  *blogapp.PostService
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	database := sqlite.NewSQLiteDB(sqlite.NewSQLiteConfig(cfg.SQLiteDBPath))
	if err := database.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	renderer, err := document.NewMarkdownRenderer(cfg.SiteURL())
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	fetcher := fetch.NewSafeClient(cfg.FetchTimeout, fetch.DefaultMaxBodySize)
	deliveries := wmpersistence.NewDeliveryRepository(database.DB())
	sender := wmapp.NewSender(fetcher, deliveries, collector, cfg.FetchTimeout)

	store := blogpersistence.NewFilePostStore(cfg.ContentDir, document.NewParser(renderer), blogapp.NewIDAllocator())
	service := blogapp.NewPostService(store, sender, collector, blogapp.PostServiceConfig{
		SiteURL:         cfg.SiteURL(),
		SendWebmentions: cfg.SendWebmentions,
		AlwaysNotify:    cfg.AlwaysNotify,
	})

	return &app{
		config:   cfg,
		database: database,
		registry: registry,
		metrics:  collector,
		store:    store,
		sender:   sender,
		receiver: wmapp.NewReceiver(store, fetcher, collector, cfg.FetchTimeout),
		service:  service,
	}, nil
}

// router builds the HTTP surface. The rate limiter guards the webmention endpoint only.
func (a *app) router(limiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.CustomRecovery(middleware.HandlePanics()))
	r.Use(middleware.Logging(a.metrics))

	posts := rest.NewPostHandler(a.store, rest.FeedConfig{
		SiteURL:        a.config.SiteURL(),
		Title:          a.config.FeedTitle,
		Description:    a.config.FeedDescription,
		WebmentionPath: wmhttp.EndpointPath,
	})
	posts.RegisterRoutes(r)

	var guards []gin.HandlerFunc
	if limiter != nil {
		guards = append(guards, limiter.Middleware())
	}
	wmhttp.NewWebmentionHandler(a.receiver).RegisterRoutes(r, guards...)

	r.GET(metricsPath, gin.WrapH(metrics.Handler(a.registry)))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return r
}

// Close stops background work, waits for in-flight webmentions, then closes the database.
func (a *app) Close() error {
	var errs []error
	if err := a.service.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close post service: %w", err))
	}
	if err := a.sender.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close sender: %w", err))
	}
	if err := a.database.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}
	return errors.Join(errs...)
}

func (a *app) closeAndLog() {
	if err := a.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to shut down cleanly")
	}
}
