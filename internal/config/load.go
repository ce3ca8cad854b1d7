package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads and parses the TOML config file, validates it, and returns
// the resulting Config. Unknown keys are fatal — silently ignoring a
// typo in a credentials file leads to hard-to-debug auth failures. A
// file mode wider than 0600 is logged as a warning because the file
// carries service tokens.
func Load(path string, logger *slog.Logger) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}

		return nil, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	warnOnLoosePermissions(path, logger)

	return cfg, nil
}

// LoadOrDefault reads the config file if it exists, otherwise returns a
// Config with defaults only. First run works without a config file; the
// missing credentials surface later as auth errors naming the key.
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path, logger)
}

// warnOnLoosePermissions logs when the config file is readable by group
// or others. The check is advisory — the file still loads.
func warnOnLoosePermissions(path string, logger *slog.Logger) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}

	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		logger.Warn("config file permissions are too permissive, expected 0600",
			"path", path,
			"mode", fmt.Sprintf("%04o", mode),
		)
	}
}
