package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/tunesync/tunesync/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigSetCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration with secrets masked",
		RunE:  runConfigShow,
	}
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadOrDefault(configPath(), cliLogger())
	if err != nil {
		return err
	}

	masked := cfg.Masked()

	if wantJSON() {
		return printJSON(masked)
	}

	if err := toml.NewEncoder(os.Stdout).Encode(masked); err != nil {
		return fmt.Errorf("rendering config: %w", err)
	}

	return nil
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one configuration key and save the file",
		Long: `Set a configuration key using its dotted name, for example:

  tunesync config set sync.interval_minutes 15
  tunesync config set spotify.refresh_token <token>

The running daemon picks the change up without a restart.`,
		Args: cobra.ExactArgs(2),
		RunE: runConfigSet,
	}
}

func runConfigSet(_ *cobra.Command, args []string) error {
	path := configPath()

	cfg, err := config.LoadOrDefault(path, cliLogger())
	if err != nil {
		return err
	}

	if err := cfg.Set(args[0], args[1]); err != nil {
		return err
	}

	if err := config.Save(path, cfg); err != nil {
		return err
	}

	fmt.Printf("Set %s.\n", args[0])

	return nil
}

// cliLogger logs config warnings (loose permissions, unknown keys) to
// stderr where the user can see them.
func cliLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
