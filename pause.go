package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause scheduled syncing",
		Long: `Suspend the scheduler. A cycle already in flight completes; no new
cycles start and manual triggers are discarded until resume.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			if _, err := callDaemon("pause", nil); err != nil {
				return err
			}

			fmt.Println("Syncing paused.")

			return nil
		},
	}
}
