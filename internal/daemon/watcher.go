package daemon

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/tunesync/tunesync/internal/config"
)

// watchConfig reloads the config file into the holder whenever it
// changes on disk. Interval, mode, and deletion-propagation changes
// apply from the next cycle; credential changes apply at the next
// session acquisition. The watch covers the parent directory because
// editors typically replace the file rather than write in place.
func watchConfig(ctx context.Context, holder *config.Holder, logger *slog.Logger) error {
	path := holder.Path()
	if path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()

		return err
	}

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				if event.Name != path || !event.Op.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}

				cfg, err := config.Load(path, logger)
				if err != nil {
					logger.Warn("config reload failed, keeping previous config",
						slog.String("error", err.Error()),
					)

					continue
				}

				holder.Update(cfg)
				logger.Info("config reloaded",
					slog.Int("interval_minutes", cfg.Sync.IntervalMinutes),
					slog.String("mode", cfg.Sync.Mode),
				)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}

				logger.Warn("config watcher error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}
