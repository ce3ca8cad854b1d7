// Package logging builds the daemon's log sinks: a rotating
// human-readable stream for the process as a whole and a rotating
// structured-JSON stream carrying only sync-engine events.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tunesync/tunesync/internal/config"
)

const (
	daemonLogName = "tunesync.log"
	syncLogName   = "sync.log"

	// Rotation policy for both files.
	maxSizeMB  = 10
	maxBackups = 5
)

// Loggers holds the two daemon log streams. Sync-engine events written
// through Sync land in both files: human-readable in the daemon log,
// structured JSON in the sync log.
type Loggers struct {
	Daemon *slog.Logger
	Sync   *slog.Logger

	sinks []io.Closer
}

// ParseLevel maps a config log level to a slog.Level. Unknown levels
// are an error rather than a silent default.
func ParseLevel(level string) (slog.Level, error) {
	switch level {
	case config.LogLevelDebug:
		return slog.LevelDebug, nil
	case config.LogLevelInfo:
		return slog.LevelInfo, nil
	case config.LogLevelWarning:
		return slog.LevelWarn, nil
	case config.LogLevelError:
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logging: unknown log level %q", level)
	}
}

// New creates the log streams under dir. With console set, the daemon
// stream additionally copies to stderr (foreground runs).
func New(dir, level string, console bool) (*Loggers, error) {
	slogLevel, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("logging: creating log directory: %w", err)
	}

	daemonSink := &lumberjack.Logger{
		Filename:   filepath.Join(dir, daemonLogName),
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	}

	syncSink := &lumberjack.Logger{
		Filename:   filepath.Join(dir, syncLogName),
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	}

	var daemonOut io.Writer = daemonSink
	if console {
		daemonOut = io.MultiWriter(os.Stderr, daemonSink)
	}

	opts := &slog.HandlerOptions{Level: slogLevel}

	daemonHandler := slog.NewTextHandler(daemonOut, opts)
	syncHandler := slog.NewJSONHandler(syncSink, opts)

	return &Loggers{
		Daemon: slog.New(daemonHandler),
		Sync:   slog.New(newTeeHandler(daemonHandler, syncHandler)),
		sinks:  []io.Closer{daemonSink, syncSink},
	}, nil
}

// Close flushes and closes the rotating files.
func (l *Loggers) Close() error {
	var firstErr error

	for _, sink := range l.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// teeHandler fans one record out to every wrapped handler.
type teeHandler struct {
	handlers []slog.Handler
}

func newTeeHandler(handlers ...slog.Handler) *teeHandler {
	return &teeHandler{handlers: handlers}
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

func (h *teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error

	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}

		if err := handler.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	wrapped := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		wrapped[i] = handler.WithAttrs(attrs)
	}

	return &teeHandler{handlers: wrapped}
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	wrapped := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		wrapped[i] = handler.WithGroup(name)
	}

	return &teeHandler{handlers: wrapped}
}
