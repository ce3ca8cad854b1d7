package config

import (
	"os"
	"path/filepath"
)

// stateDirName is the per-user state directory under $HOME. Everything
// the daemon owns — config, pid file, control socket, store, logs —
// lives inside it.
const stateDirName = ".tunesync"

// File names inside the state directory.
const (
	configFileName = "config.toml"
	pidFileName    = "daemon.pid"
	socketFileName = "daemon.sock"
	dbFileName     = "tunesync.db"
	logDirName     = "logs"
)

// stateDirEnv overrides the state directory location, mainly for tests
// and for running several instances side by side.
const stateDirEnv = "TUNESYNC_HOME"

// StateDir returns the tunesync state directory. TUNESYNC_HOME wins
// when set; otherwise ~/.tunesync. An empty string means the home
// directory could not be determined.
func StateDir() string {
	if dir := os.Getenv(stateDirEnv); dir != "" {
		return dir
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, stateDirName)
}

// DefaultConfigPath returns the full path to the config file.
func DefaultConfigPath() string { return stateFile(configFileName) }

// PIDFilePath returns the full path to the daemon pid file.
func PIDFilePath() string { return stateFile(pidFileName) }

// SocketPath returns the full path to the control socket.
func SocketPath() string { return stateFile(socketFileName) }

// DatabasePath returns the full path to the SQLite store.
func DatabasePath() string { return stateFile(dbFileName) }

// LogDir returns the directory holding the rotated log files.
func LogDir() string { return stateFile(logDirName) }

func stateFile(name string) string {
	dir := StateDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, name)
}
