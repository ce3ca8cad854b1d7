package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Daemon.DashboardPort)
	assert.Equal(t, LogLevelInfo, cfg.Daemon.LogLevel)
	assert.Equal(t, 30, cfg.Sync.IntervalMinutes)
	assert.Equal(t, ModeIncremental, cfg.Sync.Mode)
	assert.False(t, cfg.Sync.PropagateDeletions)
	require.NoError(t, Validate(cfg))
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Daemon.DashboardPort = 0 }},
		{"port too large", func(c *Config) { c.Daemon.DashboardPort = 70000 }},
		{"bad log level", func(c *Config) { c.Daemon.LogLevel = "verbose" }},
		{"interval zero", func(c *Config) { c.Sync.IntervalMinutes = 0 }},
		{"bad mode", func(c *Config) { c.Sync.Mode = "partial" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestMasked(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Spotify.ClientID = "app-id"
	cfg.Spotify.ClientSecret = "app-secret"
	cfg.Spotify.RefreshToken = "refresh-me"
	cfg.Yandex.Token = "ym-token"

	masked := cfg.Masked()

	assert.Equal(t, "app-id", masked.Spotify.ClientID)
	assert.Equal(t, maskedValue, masked.Spotify.ClientSecret)
	assert.Equal(t, maskedValue, masked.Spotify.RefreshToken)
	assert.Equal(t, maskedValue, masked.Yandex.Token)

	// Original untouched.
	assert.Equal(t, "app-secret", cfg.Spotify.ClientSecret)
}

func TestMaskedLeavesEmptySecretsEmpty(t *testing.T) {
	masked := DefaultConfig().Masked()

	assert.Empty(t, masked.Spotify.ClientSecret)
	assert.Empty(t, masked.Yandex.Token)
}

func TestSet(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Set("sync.interval_minutes", "5"))
	assert.Equal(t, 5, cfg.Sync.IntervalMinutes)

	require.NoError(t, cfg.Set("sync.mode", ModeFull))
	assert.Equal(t, ModeFull, cfg.Sync.Mode)

	require.NoError(t, cfg.Set("sync.propagate_deletions", "true"))
	assert.True(t, cfg.Sync.PropagateDeletions)

	require.NoError(t, cfg.Set("yandex.token", "tok"))
	assert.Equal(t, "tok", cfg.Yandex.Token)
}

func TestSetRejectsUnknownKeyAndBadValues(t *testing.T) {
	cfg := DefaultConfig()

	assert.Error(t, cfg.Set("sync.cadence", "5"))
	assert.Error(t, cfg.Set("sync.interval_minutes", "soon"))
	assert.Error(t, cfg.Set("sync.interval_minutes", "0"))
	assert.Error(t, cfg.Set("sync.propagate_deletions", "maybe"))
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := DefaultConfig()
	cfg.Sync.IntervalMinutes = 15
	cfg.Spotify.RefreshToken = "secret-token"

	require.NoError(t, Save(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path, testLogger())
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[sync]\ncadence_minutes = 5\n"), 0o600))

	_, err := Load(path, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config keys")
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"), testLogger())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sync.IntervalMinutes = 0

	err := Save(filepath.Join(t.TempDir(), "config.toml"), cfg)
	assert.Error(t, err)
}

func TestStateDirHonorsEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(stateDirEnv, dir)

	assert.Equal(t, dir, StateDir())
	assert.Equal(t, filepath.Join(dir, "config.toml"), DefaultConfigPath())
	assert.Equal(t, filepath.Join(dir, "daemon.pid"), PIDFilePath())
	assert.Equal(t, filepath.Join(dir, "daemon.sock"), SocketPath())
	assert.Equal(t, filepath.Join(dir, "tunesync.db"), DatabasePath())
	assert.Equal(t, filepath.Join(dir, "logs"), LogDir())
}
