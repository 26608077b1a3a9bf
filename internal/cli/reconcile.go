package cli

import (
	"fmt"

	"github.com/dfryer1193/webpress/internal/config"
	"github.com/spf13/cobra"
)

func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	var contentDir string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass and exit",
		Long: `Load the content directory, write ids into new posts and, when sending is
enabled, notify links of posts that became public. Waits for notifications to finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, func(cfg *config.Config) {
				if contentDir != "" {
					cfg.ContentDir = contentDir
				}
			})
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			if err := a.service.Reconcile(cmd.Context()); err != nil {
				a.closeAndLog()
				return err
			}
			if err := a.Close(); err != nil {
				return err
			}

			stats := a.store.Stats()
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "posts: %d, pending: %d, load failures: %d\n",
				stats.Posts, stats.Pending, stats.LoadFailures)
			return err
		},
	}

	cmd.Flags().StringVar(&contentDir, "content-dir", "", "content directory, overrides CONTENT_DIR")

	return cmd
}
