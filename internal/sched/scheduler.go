// Package sched drives the sync engine on a fixed interval, with a
// manual trigger, pause/resume, and cooperative stop.
package sched

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tunesync/tunesync/internal/config"
	"github.com/tunesync/tunesync/internal/engine"
)

// ErrPaused is returned by TriggerNow while the scheduler is paused.
// Triggers received while paused are discarded, not queued.
var ErrPaused = errors.New("sched: scheduler is paused")

// ErrNotRunning is returned by TriggerNow before Start or after Stop.
var ErrNotRunning = errors.New("sched: scheduler is not running")

// SyncRunner is the engine surface the scheduler drives.
type SyncRunner interface {
	RunSync(ctx context.Context, modeOverride string) (engine.Stats, error)
	SetPaused(paused bool)
}

// Scheduler owns one engine and fires sync cycles: one immediately on
// Start, then one per configured interval, plus manual triggers. An
// engine error is logged and the loop continues.
type Scheduler struct {
	runner SyncRunner
	holder *config.Holder
	logger *slog.Logger

	// triggerCh carries at most one pending trigger; a trigger that
	// arrives while one is pending coalesces into it.
	triggerCh chan string
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once

	nowFunc func() time.Time

	mu       sync.Mutex
	running  bool
	paused   bool
	lastSync time.Time
	nextSync time.Time
}

// Status is the scheduler's contribution to the daemon status surface.
type Status struct {
	Running         bool      `json:"running"`
	Paused          bool      `json:"paused"`
	IntervalMinutes int       `json:"interval_minutes"`
	Mode            string    `json:"mode"`
	LastSyncAt      time.Time `json:"last_sync_at,omitzero"`
	NextSyncAt      time.Time `json:"next_sync_at,omitzero"`
}

// New creates a Scheduler. Interval and default mode are read from the
// holder before each wait, so config reloads apply without restart.
func New(runner SyncRunner, holder *config.Holder, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		runner:    runner,
		holder:    holder,
		logger:    logger,
		triggerCh: make(chan string, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		nowFunc:   time.Now,
	}
}

// Start launches the scheduling loop. The first cycle fires
// immediately. Start is a no-op when already running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()

		return
	}

	s.running = true
	s.mu.Unlock()

	go s.loop(ctx)
}

// Stop ends the loop and waits for any in-flight cycle to drain. There
// is no hard deadline: the cycle's own work bounds the wait.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	if running {
		<-s.doneCh
	}
}

// TriggerNow requests an immediate cycle with an optional mode
// override. While paused, the trigger is discarded with ErrPaused.
func (s *Scheduler) TriggerNow(mode string) error {
	s.mu.Lock()
	running, paused := s.running, s.paused
	s.mu.Unlock()

	if !running {
		return ErrNotRunning
	}

	if paused {
		return ErrPaused
	}

	select {
	case s.triggerCh <- mode:
	default:
		// A trigger is already pending; this one coalesces into it.
	}

	return nil
}

// Pause suspends scheduling. A cycle already in flight completes;
// further timer fires and triggers are discarded until Resume.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()

	// Drop a trigger that arrived before the pause.
	select {
	case <-s.triggerCh:
	default:
	}

	s.runner.SetPaused(true)
	s.logger.Info("scheduler paused")
}

// Resume re-enables scheduling. The next cycle fires on the current
// interval deadline.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()

	s.runner.SetPaused(false)
	s.logger.Info("scheduler resumed")
}

// Paused reports whether the scheduler is paused.
func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.paused
}

// Status returns a snapshot for the status surface.
func (s *Scheduler) Status() Status {
	cfg := s.holder.Config()

	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		Running:         s.running,
		Paused:          s.paused,
		IntervalMinutes: cfg.Sync.IntervalMinutes,
		Mode:            cfg.Sync.Mode,
		LastSyncAt:      s.lastSync,
		NextSyncAt:      s.nextSync,
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(s.doneCh)
	}()

	s.runOnce(ctx, "")

	for {
		interval := time.Duration(s.holder.Config().Sync.IntervalMinutes) * time.Minute

		s.mu.Lock()
		s.nextSync = s.nowFunc().Add(interval)
		s.mu.Unlock()

		timer := time.NewTimer(interval)

		select {
		case <-ctx.Done():
			timer.Stop()

			return
		case <-s.stopCh:
			timer.Stop()

			return
		case mode := <-s.triggerCh:
			timer.Stop()
			s.runOnce(ctx, mode)
		case <-timer.C:
			s.runOnce(ctx, "")
		}
	}
}

// runOnce executes one cycle unless paused. Engine errors are logged;
// the loop never dies of a cycle error.
func (s *Scheduler) runOnce(ctx context.Context, mode string) {
	s.mu.Lock()
	paused := s.paused
	s.mu.Unlock()

	if paused {
		s.logger.Debug("skipping sync cycle while paused")

		return
	}

	s.mu.Lock()
	s.lastSync = s.nowFunc()
	s.mu.Unlock()

	if _, err := s.runner.RunSync(ctx, mode); err != nil {
		s.logger.Error("sync cycle failed", slog.String("error", err.Error()))
	}
}
