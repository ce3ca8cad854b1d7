// Package engine implements the bidirectional sync cycle between the
// two liked-track libraries: cross-matching newly observed tracks,
// propagating additions and deletions, retrying the unmatched backlog,
// and recording a durable audit row per cycle.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tunesync/tunesync/internal/config"
	"github.com/tunesync/tunesync/internal/store"
	"github.com/tunesync/tunesync/internal/track"
)

// maxUnmatchedAttempts caps retries of one backlog row. Rows at the cap
// stay in the store for manual inspection but are skipped by the retry
// pass.
const maxUnmatchedAttempts = 5

// ErrBusy is returned when a sync cycle is requested while one is
// already running. The running cycle is unaffected.
var ErrBusy = errors.New("engine: sync already in progress")

// State is the engine's externally visible condition.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StatePaused  State = "paused"
	StateError   State = "error"
)

// Stats accumulates one cycle's outcome counts. Field order matches the
// serialised stats payload on the sync-run row.
type Stats struct {
	SpotifyAdded   int `json:"sp_added"`
	YandexAdded    int `json:"ym_added"`
	SpotifyRemoved int `json:"sp_removed"`
	YandexRemoved  int `json:"ym_removed"`
	CrossMatched   int `json:"cross_matched"`
	Unmatched      int `json:"unmatched"`
	RetriedOK      int `json:"retried_ok"`
	Errors         int `json:"errors"`
}

// JSON renders the stats payload stored on the sync-run row.
func (s Stats) JSON() string {
	b, err := json.Marshal(s)
	if err != nil {
		return "{}"
	}

	return string(b)
}

// Client is the per-service operation set the engine needs. Both
// service clients satisfy it.
type Client interface {
	FetchLiked(ctx context.Context, since time.Time) ([]track.Remote, error)
	Like(ctx context.Context, ids []string) error
	Unlike(ctx context.Context, ids []string) error
	Search(ctx context.Context, artist, title string) (*track.Remote, error)
}

// SessionFactory acquires a service session for the duration of one
// cycle. Credentials are read inside the factory, so a config update
// applies from the next cycle.
type SessionFactory func(ctx context.Context) (Client, error)

// Engine runs sync cycles. Exactly one cycle runs at a time; a second
// request fails fast with ErrBusy.
type Engine struct {
	store      *store.Store
	holder     *config.Holder
	newSpotify SessionFactory
	newYandex  SessionFactory
	logger     *slog.Logger

	runMu sync.Mutex // held for the duration of one cycle

	mu        sync.RWMutex
	syncing   bool
	paused    bool
	failed    bool
	lastStats *Stats
}

// New creates an Engine. The factories are invoked once per cycle.
func New(st *store.Store, holder *config.Holder, newSpotify, newYandex SessionFactory, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		store:      st,
		holder:     holder,
		newSpotify: newSpotify,
		newYandex:  newYandex,
		logger:     logger,
	}
}

// State derives the externally visible state. Syncing wins over paused:
// a cycle already in flight completes even when a pause arrives.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	switch {
	case e.syncing:
		return StateSyncing
	case e.paused:
		return StatePaused
	case e.failed:
		return StateError
	default:
		return StateIdle
	}
}

// LastStats returns the most recent completed cycle's stats, or nil.
func (e *Engine) LastStats() *Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.lastStats == nil {
		return nil
	}

	stats := *e.lastStats

	return &stats
}

// SetPaused flips the paused flag shown on the status surface. Pausing
// does not interrupt a cycle in flight.
func (e *Engine) SetPaused(paused bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.paused = paused
}

// RunSync executes one sync cycle. modeOverride selects full or
// incremental for this cycle only; empty means the configured default.
// The first cycle ever is always full regardless of override or config.
// A concurrent call returns ErrBusy without side effects.
func (e *Engine) RunSync(ctx context.Context, modeOverride string) (Stats, error) {
	if !e.runMu.TryLock() {
		return Stats{}, ErrBusy
	}
	defer e.runMu.Unlock()

	e.setSyncing(true)
	defer e.setSyncing(false)

	stats, err := e.doSync(ctx, modeOverride)

	e.mu.Lock()
	e.failed = err != nil
	if err == nil {
		e.lastStats = &stats
	}
	e.mu.Unlock()

	return stats, err
}

func (e *Engine) setSyncing(v bool) {
	e.mu.Lock()
	e.syncing = v
	e.mu.Unlock()
}

func (e *Engine) doSync(ctx context.Context, modeOverride string) (Stats, error) {
	lastRun, err := e.store.LastSuccessfulRun(ctx)
	if err != nil {
		return Stats{}, err
	}

	// Mode gating: without a successful baseline run, only a full sync
	// produces correct deletion semantics.
	var mode string

	switch {
	case lastRun == nil:
		mode = config.ModeFull
	case modeOverride != "":
		mode = modeOverride
	default:
		mode = e.holder.Config().Sync.Mode
	}

	logger := e.logger.With("cycle_id", uuid.NewString(), "mode", mode)
	logger.Info("sync cycle starting")

	run, err := e.store.StartRun(ctx, store.DirectionBidirectional, mode, 0)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats

	cycleErr := e.runCycle(ctx, logger, mode, lastRun, &stats)
	if cycleErr != nil {
		status := store.RunFailed
		if errors.Is(cycleErr, context.Canceled) {
			status = store.RunCancelled
		}

		if _, err := e.store.FinishRun(ctx, run.ID, status, "", cycleErr.Error()); err != nil {
			logger.Error("closing failed sync run", "error", err)
		}

		logger.Error("sync cycle failed", "error", cycleErr)

		return stats, cycleErr
	}

	if _, err := e.store.FinishRun(ctx, run.ID, store.RunCompleted, stats.JSON(), ""); err != nil {
		return stats, fmt.Errorf("engine: closing sync run: %w", err)
	}

	logger.Info("sync cycle completed", "stats", stats.JSON())

	return stats, nil
}

func (e *Engine) runCycle(ctx context.Context, logger *slog.Logger, mode string, lastRun *store.SyncRun, stats *Stats) error {
	sp, err := e.newSpotify(ctx)
	if err != nil {
		return fmt.Errorf("engine: acquiring spotify session: %w", err)
	}

	ym, err := e.newYandex(ctx)
	if err != nil {
		return fmt.Errorf("engine: acquiring yandex session: %w", err)
	}

	spCol, ymCol, err := e.ensureCollections(ctx)
	if err != nil {
		return err
	}

	c := &cycle{
		engine:  e,
		logger:  logger,
		sp:      sp,
		ym:      ym,
		spColID: spCol.ID,
		ymColID: ymCol.ID,
		stats:   stats,
	}

	if mode == config.ModeFull {
		return c.full(ctx)
	}

	var since time.Time
	if lastRun != nil {
		since = lastRun.FinishedAt
	}

	return c.incremental(ctx, since)
}

// ensureCollections creates and pairs the two liked collections on
// first use.
func (e *Engine) ensureCollections(ctx context.Context) (store.Collection, store.Collection, error) {
	spCol, err := e.store.EnsureLikedCollection(ctx, track.Spotify)
	if err != nil {
		return store.Collection{}, store.Collection{}, err
	}

	ymCol, err := e.store.EnsureLikedCollection(ctx, track.Yandex)
	if err != nil {
		return store.Collection{}, store.Collection{}, err
	}

	if spCol.PairedID == 0 || ymCol.PairedID == 0 {
		if err := e.store.PairCollections(ctx, spCol.ID, ymCol.ID); err != nil {
			return store.Collection{}, store.Collection{}, err
		}

		spCol.PairedID = ymCol.ID
		ymCol.PairedID = spCol.ID
	}

	return spCol, ymCol, nil
}
