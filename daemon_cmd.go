package main

import (
	"github.com/spf13/cobra"

	"github.com/tunesync/tunesync/internal/daemon"
)

func newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the sync daemon in the foreground",
		Long: `Start the sync daemon. It syncs immediately, then on the configured
interval, and serves the control socket used by the other commands.
Stop it with SIGTERM, Ctrl-C, or 'tunesync stop'.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return daemon.Run(cmd.Context(), flagConfigPath)
		},
	}
}
