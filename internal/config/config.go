// Package config implements TOML configuration loading, validation, and
// state-directory path resolution for tunesync. The key set is closed:
// unknown keys in the config file are fatal, and secret-bearing fields
// are masked in every rendered form.
package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Log levels accepted in daemon.log_level.
const (
	LogLevelDebug   = "debug"
	LogLevelInfo    = "info"
	LogLevelWarning = "warning"
	LogLevelError   = "error"
)

// Sync modes accepted in sync.mode.
const (
	ModeFull        = "full"
	ModeIncremental = "incremental"
)

// maskedValue replaces secret fields in rendered output.
const maskedValue = "********"

// Config is the complete tunesync configuration, parsed from a TOML
// file. The four sections are the whole recognised key set — there is
// no open key-value escape hatch.
type Config struct {
	Daemon  DaemonConfig  `toml:"daemon"`
	Sync    SyncConfig    `toml:"sync"`
	Spotify SpotifyConfig `toml:"spotify"`
	Yandex  YandexConfig  `toml:"yandex"`
}

// DaemonConfig controls the daemon process itself.
type DaemonConfig struct {
	DashboardPort int    `toml:"dashboard_port"`
	LogLevel      string `toml:"log_level"`
}

// SyncConfig controls the scheduling loop and the default cycle shape.
type SyncConfig struct {
	IntervalMinutes    int    `toml:"interval_minutes"`
	Mode               string `toml:"mode"`
	PropagateDeletions bool   `toml:"propagate_deletions"`
}

// SpotifyConfig holds the OAuth application credentials and the
// long-lived refresh token for the Spotify account.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	RefreshToken string `toml:"refresh_token"`
}

// YandexConfig holds the static bearer token for the Yandex Music
// account.
type YandexConfig struct {
	Token string `toml:"token"`
}

// DefaultConfig returns a Config with every non-credential field set to
// its default. Credentials have no defaults.
func DefaultConfig() *Config {
	return &Config{
		Daemon: DaemonConfig{
			DashboardPort: 8080,
			LogLevel:      LogLevelInfo,
		},
		Sync: SyncConfig{
			IntervalMinutes:    30,
			Mode:               ModeIncremental,
			PropagateDeletions: false,
		},
	}
}

// Validate checks every field against its allowed domain. Credentials
// are allowed to be empty here — their absence is reported at session
// acquisition, where the failing config key can be named.
func Validate(cfg *Config) error {
	if cfg.Daemon.DashboardPort < 1 || cfg.Daemon.DashboardPort > 65535 {
		return fmt.Errorf("daemon.dashboard_port must be in 1..65535, got %d", cfg.Daemon.DashboardPort)
	}

	switch cfg.Daemon.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
	default:
		return fmt.Errorf("daemon.log_level must be one of debug, info, warning, error; got %q", cfg.Daemon.LogLevel)
	}

	if cfg.Sync.IntervalMinutes < 1 {
		return fmt.Errorf("sync.interval_minutes must be >= 1, got %d", cfg.Sync.IntervalMinutes)
	}

	switch cfg.Sync.Mode {
	case ModeFull, ModeIncremental:
	default:
		return fmt.Errorf("sync.mode must be full or incremental, got %q", cfg.Sync.Mode)
	}

	return nil
}

// Masked returns a copy of the config with every secret-bearing field
// replaced by a placeholder. Empty secrets stay empty so the rendered
// form still shows which credentials are unset.
func (c *Config) Masked() *Config {
	out := *c

	if out.Spotify.ClientSecret != "" {
		out.Spotify.ClientSecret = maskedValue
	}

	if out.Spotify.RefreshToken != "" {
		out.Spotify.RefreshToken = maskedValue
	}

	if out.Yandex.Token != "" {
		out.Yandex.Token = maskedValue
	}

	return &out
}

// Set assigns one dotted key from the closed key set, parsing the value
// into the field's type. Unknown keys and unparseable values are errors;
// the updated config is re-validated before Set returns nil.
func (c *Config) Set(key, value string) error {
	switch strings.ToLower(key) {
	case "daemon.dashboard_port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("daemon.dashboard_port: %q is not an integer", value)
		}

		c.Daemon.DashboardPort = port
	case "daemon.log_level":
		c.Daemon.LogLevel = value
	case "sync.interval_minutes":
		minutes, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("sync.interval_minutes: %q is not an integer", value)
		}

		c.Sync.IntervalMinutes = minutes
	case "sync.mode":
		c.Sync.Mode = value
	case "sync.propagate_deletions":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("sync.propagate_deletions: %q is not a boolean", value)
		}

		c.Sync.PropagateDeletions = b
	case "spotify.client_id":
		c.Spotify.ClientID = value
	case "spotify.client_secret":
		c.Spotify.ClientSecret = value
	case "spotify.redirect_uri":
		c.Spotify.RedirectURI = value
	case "spotify.refresh_token":
		c.Spotify.RefreshToken = value
	case "yandex.token":
		c.Yandex.Token = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}

	return Validate(c)
}
