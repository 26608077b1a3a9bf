package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <source> <target>",
		Short: "Send one webmention and report the result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.closeAndLog()

			if err := a.sender.Send(cmd.Context(), args[0], args[1]); err != nil {
				return fmt.Errorf("failed to send webmention: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "sent %s -> %s\n", args[0], args[1])
			return err
		},
	}

	return cmd
}
