package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tunesync/tunesync/internal/config"
	"github.com/tunesync/tunesync/internal/rpc"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
)

// newRootCmd builds the fully-assembled root command. Called once from
// main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tunesync",
		Short:   "Keep Spotify and Yandex Music liked tracks in sync",
		Long:    "A daemon that mirrors liked tracks bidirectionally between Spotify and Yandex Music,\nwith fuzzy cross-service track matching and a durable audit trail.",
		Version: version,
		// Silence Cobra's default error/usage printing — main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")

	cmd.AddCommand(newDaemonCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newPauseCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// configPath returns the effective config file location.
func configPath() string {
	if flagConfigPath != "" {
		return flagConfigPath
	}

	return config.DefaultConfigPath()
}

// dialDaemon connects to the running daemon's control socket.
func dialDaemon() (*rpc.Client, error) {
	client, err := rpc.Dial(config.SocketPath())
	if err != nil {
		return nil, fmt.Errorf("daemon is not running (start it with 'tunesync daemon')")
	}

	return client, nil
}

// wantJSON reports whether output should be machine-readable: either
// --json was given or stdout is not a terminal.
func wantJSON() bool {
	return flagJSON || !isatty.IsTerminal(os.Stdout.Fd())
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

// callDaemon runs one control command and fails on an ok=false reply.
func callDaemon(cmd string, params any) (rpc.Response, error) {
	client, err := dialDaemon()
	if err != nil {
		return rpc.Response{}, err
	}
	defer client.Close()

	resp, err := client.Call(cmd, params)
	if err != nil {
		return rpc.Response{}, err
	}

	if !resp.OK {
		return rpc.Response{}, fmt.Errorf("%s", resp.Error)
	}

	return resp, nil
}
