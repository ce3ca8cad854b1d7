package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume scheduled syncing",
		RunE: func(_ *cobra.Command, _ []string) error {
			if _, err := callDaemon("resume", nil); err != nil {
				return err
			}

			fmt.Println("Syncing resumed.")

			return nil
		},
	}
}
