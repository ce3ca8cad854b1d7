package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tunesync/tunesync/internal/config"
	"github.com/tunesync/tunesync/internal/rpc"
)

func newSyncCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Trigger a sync cycle now",
		Long: `Ask the running daemon for an immediate sync cycle. The cycle runs in
the daemon; watch progress with 'tunesync status' or the sync log.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			if mode != "" && mode != config.ModeFull && mode != config.ModeIncremental {
				return fmt.Errorf("invalid --mode %q (full or incremental)", mode)
			}

			if _, err := callDaemon("sync_now", rpc.SyncParams{Mode: mode}); err != nil {
				return err
			}

			fmt.Println("Sync triggered.")

			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "override sync mode for this cycle (full or incremental)")

	return cmd
}
