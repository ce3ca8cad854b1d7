// Package daemon wires the long-running process together: config,
// logging, store, engine, scheduler, control socket, pid file, config
// reload, and signal-driven shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/tunesync/tunesync/internal/config"
	"github.com/tunesync/tunesync/internal/engine"
	"github.com/tunesync/tunesync/internal/logging"
	"github.com/tunesync/tunesync/internal/rpc"
	"github.com/tunesync/tunesync/internal/sched"
	"github.com/tunesync/tunesync/internal/spotify"
	"github.com/tunesync/tunesync/internal/store"
	"github.com/tunesync/tunesync/internal/yandex"
)

// Daemon holds the running process's components. It implements
// rpc.Backend for the control socket.
type Daemon struct {
	holder    *config.Holder
	store     *store.Store
	engine    *engine.Engine
	scheduler *sched.Scheduler
	logger    *slog.Logger

	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// Run starts the daemon in the foreground and blocks until shutdown.
// configPath empty means the default location under the state
// directory.
func Run(ctx context.Context, configPath string) error {
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}

	// Config problems are reported to stderr before the log files exist.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.LoadOrDefault(configPath, bootLogger)
	if err != nil {
		return err
	}

	logs, err := logging.New(config.LogDir(), cfg.Daemon.LogLevel, true)
	if err != nil {
		return err
	}
	defer logs.Close()

	logger := logs.Daemon
	holder := config.NewHolder(cfg, configPath)

	removePID, err := writePIDFile(config.PIDFilePath())
	if err != nil {
		return err
	}
	defer removePID()

	st, err := store.New(config.DatabasePath(), logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(shutdownContext(ctx, logger))
	defer cancel()

	eng := engine.New(st, holder,
		spotifySessions(holder, logs.Sync),
		yandexSessions(holder, logs.Sync),
		logs.Sync,
	)

	d := &Daemon{
		holder:    holder,
		store:     st,
		engine:    eng,
		scheduler: sched.New(eng, holder, logger),
		logger:    logger,
		cancel:    cancel,
	}

	socketPath := config.SocketPath()
	if err := removeStaleSocket(socketPath, logger); err != nil {
		return err
	}

	server, err := rpc.NewServer(socketPath, d, logger)
	if err != nil {
		return err
	}

	go func() {
		if err := server.Serve(); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Error("control socket server stopped", slog.String("error", err.Error()))
		}
	}()

	if err := watchConfig(ctx, holder, logger); err != nil {
		logger.Warn("config watch unavailable, edits require a restart",
			slog.String("error", err.Error()),
		)
	}

	logger.Info("daemon started",
		slog.String("config", configPath),
		slog.String("socket", socketPath),
		slog.Int("interval_minutes", cfg.Sync.IntervalMinutes),
	)

	d.scheduler.Start(ctx)

	<-ctx.Done()

	logger.Info("daemon shutting down")
	d.scheduler.Stop()
	server.Close()
	os.Remove(socketPath)

	return nil
}

// Status composes the scheduler, engine, and store views for the
// status command.
func (d *Daemon) Status(ctx context.Context) (rpc.StatusPayload, error) {
	counts, err := d.store.CountSummary(ctx)
	if err != nil {
		return rpc.StatusPayload{}, err
	}

	return rpc.StatusPayload{
		Scheduler: d.scheduler.Status(),
		Engine: rpc.EngineStatus{
			State:     d.engine.State(),
			LastStats: d.engine.LastStats(),
		},
		Store: counts,
	}, nil
}

// Health reports whether the store is reachable.
func (d *Daemon) Health(ctx context.Context) error {
	return d.store.Ping(ctx)
}

// SyncNow asks the scheduler for an immediate cycle.
func (d *Daemon) SyncNow(mode string) error {
	return d.scheduler.TriggerNow(mode)
}

// Pause suspends scheduled syncing.
func (d *Daemon) Pause() { d.scheduler.Pause() }

// Resume re-enables scheduled syncing.
func (d *Daemon) Resume() { d.scheduler.Resume() }

// Shutdown requests a graceful stop. Idempotent.
func (d *Daemon) Shutdown() {
	d.shutdownOnce.Do(func() {
		d.logger.Info("shutdown requested over control socket")
		d.cancel()
	})
}

// spotifySessions builds a session factory that reads credentials from
// the holder at each cycle, so a config reload takes effect without a
// restart.
func spotifySessions(holder *config.Holder, logger *slog.Logger) engine.SessionFactory {
	return func(ctx context.Context) (engine.Client, error) {
		creds := holder.Config().Spotify

		return spotify.New(spotify.Credentials{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURI:  creds.RedirectURI,
			RefreshToken: creds.RefreshToken,
		}, logger)
	}
}

func yandexSessions(holder *config.Holder, logger *slog.Logger) engine.SessionFactory {
	return func(ctx context.Context) (engine.Client, error) {
		return yandex.New(ctx, holder.Config().Yandex.Token, logger)
	}
}

// removeStaleSocket deletes a socket file left behind by a crashed
// instance, but only when nothing answers on it.
func removeStaleSocket(path string, logger *slog.Logger) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	conn, err := net.DialTimeout("unix", path, time.Second)
	if err == nil {
		conn.Close()

		return fmt.Errorf("another daemon is already listening on %s", path)
	}

	logger.Warn("removing stale control socket", slog.String("path", path))

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing stale socket: %w", err)
	}

	return nil
}
