package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dfryer1193/webpress/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Pretty   bool
	LogLevel string
}

// NewRootCommand creates the webpress command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "webpress",
		Short: "Self-hosted Markdown publisher with Webmention support",
		Long: `webpress serves a directory of Markdown posts, assigns each new post a
permanent id, receives Webmention replies and notifies the pages a post links to.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(cmd.ErrOrStderr(), opts)
		},
	}

	cmd.PersistentFlags().BoolVar(&opts.Pretty, "pretty", false, "human-readable console logs")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level, overrides LOG_LEVEL")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewSendCommand(opts))

	return cmd
}

func setupLogging(w io.Writer, opts *RootOptions) error {
	zerolog.TimeFieldFormat = time.RFC3339
	if opts.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	}

	level := os.Getenv("LOG_LEVEL")
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	if level == "" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		return nil
	}

	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(parsed)
	return nil
}

// loadConfig reads the environment and applies the command's flag overrides.
func loadConfig(cmd *cobra.Command, override func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if override != nil {
		override(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid flags: %w", err)
		}
	}
	return cfg, nil
}
