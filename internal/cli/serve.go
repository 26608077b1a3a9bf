package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dfryer1193/webpress/internal/config"
	"github.com/dfryer1193/webpress/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 5 * time.Second
	watchDebounce   = 500 * time.Millisecond
)

type serveOptions struct {
	port       int
	contentDir string
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve posts and receive webmentions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, func(cfg *config.Config) {
				if cmd.Flags().Changed("port") {
					cfg.Port = opts.port
				}
				if cmd.Flags().Changed("content-dir") {
					cfg.ContentDir = opts.contentDir
				}
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().IntVarP(&opts.port, "port", "p", 8080, "listen port, overrides PORT")
	cmd.Flags().StringVar(&opts.contentDir, "content-dir", "", "content directory, overrides CONTENT_DIR")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.closeAndLog()

	limiter := middleware.NewRateLimiter(cfg.WebmentionRate)
	defer limiter.Stop()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           a.router(limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.service.Start(cfg.ReconcileInterval)
	if cfg.WatchContent {
		if err := a.service.WatchContent(cfg.ContentDir, watchDebounce); err != nil {
			log.Warn().Err(err).Str("dir", cfg.ContentDir).Msg("Failed to watch content directory, relying on interval")
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Str("contentDir", cfg.ContentDir).Str("siteURL", cfg.SiteURL()).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	log.Info().Msg("Server stopped")
	return nil
}
