package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tunesync/tunesync/internal/config"
	"github.com/tunesync/tunesync/internal/daemon"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Long: `Ask the daemon to shut down gracefully over the control socket. If the
socket does not answer, fall back to SIGTERM via the pid file.`,
		RunE: runStop,
	}
}

func runStop(_ *cobra.Command, _ []string) error {
	if _, err := callDaemon("shutdown", nil); err == nil {
		fmt.Println("Daemon stopping.")

		return nil
	}

	// Socket unreachable — the daemon may still be alive with a broken
	// control plane. Try the pid file.
	pidPath := config.PIDFilePath()

	if _, err := os.Stat(pidPath); os.IsNotExist(err) {
		fmt.Println("Daemon is not running.")

		return nil
	}

	if err := daemon.SignalRunning(pidPath); err != nil {
		return err
	}

	fmt.Println("Daemon stopping (SIGTERM).")

	return nil
}
