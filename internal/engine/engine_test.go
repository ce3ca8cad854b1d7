package engine

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tunesync/tunesync/internal/config"
	"github.com/tunesync/tunesync/internal/store"
	"github.com/tunesync/tunesync/internal/track"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testLogWriter adapts testing.T to io.Writer for slog.
type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

// fakeClient is an in-memory service client. Search answers from a
// fixed artist/title table; mutation calls are recorded.
type fakeClient struct {
	mu sync.Mutex

	liked       []track.Remote
	searchTable map[string]track.Remote

	likeCalls   [][]string
	unlikeCalls [][]string

	// fetchStarted/fetchRelease make FetchLiked block, for the
	// single-flight test. Nil means no blocking.
	fetchStarted chan struct{}
	fetchRelease chan struct{}
}

func searchKey(artist, title string) string { return artist + "\x00" + title }

func (f *fakeClient) FetchLiked(ctx context.Context, since time.Time) ([]track.Remote, error) {
	if f.fetchStarted != nil {
		f.fetchStarted <- struct{}{}
		<-f.fetchRelease
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]track.Remote, len(f.liked))
	copy(out, f.liked)

	return out, nil
}

func (f *fakeClient) Like(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.likeCalls = append(f.likeCalls, ids)

	return nil
}

func (f *fakeClient) Unlike(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.unlikeCalls = append(f.unlikeCalls, ids)

	return nil
}

func (f *fakeClient) Search(ctx context.Context, artist, title string) (*track.Remote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if found, ok := f.searchTable[searchKey(artist, title)]; ok {
		return &found, nil
	}

	return nil, nil
}

func sp(id, artist, title string) track.Remote {
	return track.Remote{Service: track.Spotify, RemoteID: id, Artist: artist, Title: title}
}

func ym(id, artist, title string) track.Remote {
	return track.Remote{Service: track.Yandex, RemoteID: id, Artist: artist, Title: title}
}

type testEnv struct {
	engine *Engine
	store  *store.Store
	spFake *fakeClient
	ymFake *fakeClient
	cfg    *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "test.db"), testLogger(t))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}

	t.Cleanup(func() { st.Close() })

	env := &testEnv{
		store:  st,
		spFake: &fakeClient{searchTable: map[string]track.Remote{}},
		ymFake: &fakeClient{searchTable: map[string]track.Remote{}},
		cfg:    config.DefaultConfig(),
	}

	holder := config.NewHolder(env.cfg, "")

	env.engine = New(st, holder,
		func(ctx context.Context) (Client, error) { return env.spFake, nil },
		func(ctx context.Context) (Client, error) { return env.ymFake, nil },
		testLogger(t),
	)

	return env
}

func TestFirstSyncForcesFullAndPropagates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.spFake.liked = []track.Remote{sp("sp1", "Artist A", "Song One")}
	env.ymFake.searchTable[searchKey("Artist A", "Song One")] = ym("ym1", "Artist A", "Song One")

	// Config says incremental; with no prior successful run the cycle
	// must still be full.
	env.cfg.Sync.Mode = config.ModeIncremental

	stats, err := env.engine.RunSync(ctx, "")
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}

	if stats.YandexAdded != 1 || stats.CrossMatched != 0 || stats.Unmatched != 0 {
		t.Errorf("stats = %+v", stats)
	}

	if len(env.ymFake.likeCalls) != 1 || env.ymFake.likeCalls[0][0] != "ym1" {
		t.Errorf("yandex like calls = %v, want [[ym1]]", env.ymFake.likeCalls)
	}

	mapping, err := env.store.FindMappingByRemote(ctx, track.Spotify, "sp1")
	if err != nil || mapping == nil {
		t.Fatalf("mapping lookup: %v, %v", mapping, err)
	}

	if mapping.YandexID != "ym1" {
		t.Errorf("mapping = %+v, want both ids set", mapping)
	}

	runs, _ := env.store.ListRuns(ctx, 1, 0)
	if len(runs) != 1 || runs[0].Mode != config.ModeFull {
		t.Errorf("run = %+v, want mode full", runs)
	}
}

func TestCrossMatchOnFirstSync(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.spFake.liked = []track.Remote{
		sp("sp1", "Artist A", "Song One"),
		sp("sp2", "Artist B", "Song Two"),
	}
	env.ymFake.liked = []track.Remote{ym("ym1", "Artist A", "Song One")}
	// No search result for Artist B — it becomes unmatched.

	stats, err := env.engine.RunSync(ctx, "")
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}

	if stats.CrossMatched != 1 || stats.Unmatched != 1 {
		t.Errorf("stats = %+v", stats)
	}

	if len(env.ymFake.likeCalls) != 0 || len(env.spFake.likeCalls) != 0 {
		t.Errorf("unexpected like calls: sp=%v ym=%v", env.spFake.likeCalls, env.ymFake.likeCalls)
	}

	mapping, _ := env.store.FindMappingByRemote(ctx, track.Spotify, "sp1")
	if mapping == nil || mapping.YandexID != "ym1" {
		t.Errorf("cross-matched mapping = %+v", mapping)
	}

	backlog, _ := env.store.ListUnmatched(ctx, track.Spotify)
	if len(backlog) != 1 || backlog[0].SourceID != "sp2" {
		t.Errorf("backlog = %+v", backlog)
	}
}

func TestBidirectionalAdditionPropagation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.spFake.liked = []track.Remote{sp("sp1", "Art", "Song")}
	env.ymFake.liked = []track.Remote{ym("ym1", "YmArt", "YmSong")}
	env.ymFake.searchTable[searchKey("Art", "Song")] = ym("ym_found", "Art", "Song")
	env.spFake.searchTable[searchKey("YmArt", "YmSong")] = sp("sp_found", "YmArt", "YmSong")

	stats, err := env.engine.RunSync(ctx, "")
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}

	if stats.SpotifyAdded != 1 || stats.YandexAdded != 1 {
		t.Errorf("stats = %+v", stats)
	}

	if len(env.ymFake.likeCalls) != 1 || env.ymFake.likeCalls[0][0] != "ym_found" {
		t.Errorf("yandex like calls = %v", env.ymFake.likeCalls)
	}

	if len(env.spFake.likeCalls) != 1 || env.spFake.likeCalls[0][0] != "sp_found" {
		t.Errorf("spotify like calls = %v", env.spFake.likeCalls)
	}
}

// seedPairedMapping records a mapping liked on both sides, as a prior
// completed full sync would have left it.
func seedPairedMapping(t *testing.T, env *testEnv) {
	t.Helper()

	ctx := context.Background()

	spCol, _, err := env.engine.ensureCollections(ctx)
	if err != nil {
		t.Fatalf("ensureCollections: %v", err)
	}

	m, err := env.store.UpsertMapping(ctx, "Artist", "Song", "sp1", "ym1", 1.0)
	if err != nil {
		t.Fatalf("UpsertMapping: %v", err)
	}

	ymCol, _ := env.store.EnsureLikedCollection(ctx, track.Yandex)

	if _, err := env.store.AddToCollection(ctx, spCol.ID, m.ID, 0, time.Time{}); err != nil {
		t.Fatalf("AddToCollection(sp): %v", err)
	}

	if _, err := env.store.AddToCollection(ctx, ymCol.ID, m.ID, 0, time.Time{}); err != nil {
		t.Fatalf("AddToCollection(ym): %v", err)
	}
}

func TestFullModeDeletionPropagation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	seedPairedMapping(t, env)
	env.cfg.Sync.PropagateDeletions = true

	// Both remote libraries are now empty.
	stats, err := env.engine.RunSync(ctx, config.ModeFull)
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}

	if stats.SpotifyRemoved != 1 {
		t.Errorf("sp_removed = %d, want 1", stats.SpotifyRemoved)
	}

	if len(env.ymFake.unlikeCalls) != 1 || env.ymFake.unlikeCalls[0][0] != "ym1" {
		t.Errorf("yandex unlike calls = %v, want [[ym1]]", env.ymFake.unlikeCalls)
	}

	spCol, _ := env.store.EnsureLikedCollection(ctx, track.Spotify)

	active, _ := env.store.ListCollectionTracks(ctx, spCol.ID, false)
	if len(active) != 0 {
		t.Errorf("active spotify memberships = %+v, want none", active)
	}
}

func TestDeletionsNotPropagatedWhenDisabled(t *testing.T) {
	env := newTestEnv(t)

	seedPairedMapping(t, env)
	env.cfg.Sync.PropagateDeletions = false

	stats, err := env.engine.RunSync(context.Background(), config.ModeFull)
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}

	if stats.SpotifyRemoved != 0 || stats.YandexRemoved != 0 {
		t.Errorf("stats = %+v, want no removals", stats)
	}

	if len(env.ymFake.unlikeCalls) != 0 || len(env.spFake.unlikeCalls) != 0 {
		t.Errorf("unexpected unlike calls")
	}
}

func TestIncrementalSkipsRemovals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A prior completed run so incremental mode is allowed.
	run, _ := env.store.StartRun(ctx, store.DirectionBidirectional, config.ModeFull, 0)
	env.store.FinishRun(ctx, run.ID, store.RunCompleted, "", "")

	seedPairedMapping(t, env)
	env.cfg.Sync.PropagateDeletions = true
	env.cfg.Sync.Mode = config.ModeIncremental

	stats, err := env.engine.RunSync(ctx, "")
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}

	if stats.SpotifyRemoved != 0 || stats.YandexRemoved != 0 {
		t.Errorf("stats = %+v, want no removals in incremental mode", stats)
	}

	if len(env.ymFake.unlikeCalls) != 0 || len(env.spFake.unlikeCalls) != 0 {
		t.Error("unlike called during incremental sync")
	}
}

func TestRetryUnmatched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.store.AddUnmatched(ctx, track.Spotify, "sp1", "Art", "Song"); err != nil {
		t.Fatalf("AddUnmatched: %v", err)
	}

	env.ymFake.searchTable[searchKey("Art", "Song")] = ym("ym_found", "Art", "Song")

	stats, err := env.engine.RunSync(ctx, config.ModeFull)
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}

	if stats.RetriedOK != 1 {
		t.Errorf("retried_ok = %d, want 1", stats.RetriedOK)
	}

	if len(env.ymFake.likeCalls) != 1 || env.ymFake.likeCalls[0][0] != "ym_found" {
		t.Errorf("yandex like calls = %v", env.ymFake.likeCalls)
	}

	backlog, _ := env.store.ListUnmatched(ctx, track.Spotify)
	if len(backlog) != 0 {
		t.Errorf("backlog = %+v, want resolved", backlog)
	}
}

func TestRetryMissBumpsAttempts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.store.AddUnmatched(ctx, track.Spotify, "sp1", "Art", "Song"); err != nil {
		t.Fatalf("AddUnmatched: %v", err)
	}

	// No search result: the retry misses again.
	if _, err := env.engine.RunSync(ctx, config.ModeFull); err != nil {
		t.Fatalf("RunSync: %v", err)
	}

	backlog, _ := env.store.ListUnmatched(ctx, track.Spotify)
	if len(backlog) != 1 || backlog[0].Attempts != 2 {
		t.Errorf("backlog = %+v, want attempts 2", backlog)
	}
}

func TestRetrySkipsExhaustedRows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < maxUnmatchedAttempts; i++ {
		if _, err := env.store.AddUnmatched(ctx, track.Spotify, "sp1", "Art", "Song"); err != nil {
			t.Fatalf("AddUnmatched: %v", err)
		}
	}

	env.ymFake.searchTable[searchKey("Art", "Song")] = ym("ym_found", "Art", "Song")

	stats, err := env.engine.RunSync(ctx, config.ModeFull)
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}

	if stats.RetriedOK != 0 {
		t.Errorf("retried_ok = %d, want 0 for exhausted row", stats.RetriedOK)
	}

	if len(env.ymFake.likeCalls) != 0 {
		t.Errorf("like calls = %v, want none", env.ymFake.likeCalls)
	}
}

func TestSingleFlight(t *testing.T) {
	env := newTestEnv(t)

	env.spFake.fetchStarted = make(chan struct{}, 1)
	env.spFake.fetchRelease = make(chan struct{})

	done := make(chan error, 1)

	go func() {
		_, err := env.engine.RunSync(context.Background(), "")
		done <- err
	}()

	// Wait until the first cycle is inside its fetch.
	<-env.spFake.fetchStarted

	if env.engine.State() != StateSyncing {
		t.Errorf("state = %q, want syncing", env.engine.State())
	}

	if _, err := env.engine.RunSync(context.Background(), ""); err != ErrBusy {
		t.Errorf("concurrent RunSync error = %v, want ErrBusy", err)
	}

	close(env.spFake.fetchRelease)

	if err := <-done; err != nil {
		t.Fatalf("first RunSync: %v", err)
	}

	if env.engine.State() != StateIdle {
		t.Errorf("state after cycle = %q, want idle", env.engine.State())
	}
}

func TestPausedStateVisible(t *testing.T) {
	env := newTestEnv(t)

	env.engine.SetPaused(true)

	if env.engine.State() != StatePaused {
		t.Errorf("state = %q, want paused", env.engine.State())
	}

	env.engine.SetPaused(false)

	if env.engine.State() != StateIdle {
		t.Errorf("state = %q, want idle", env.engine.State())
	}
}

func TestNoDuplicateLikesInOneCycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Two distinct spotify tracks resolve to the same yandex track.
	env.spFake.liked = []track.Remote{
		sp("sp1", "Art", "Song"),
		sp("sp2", "Art", "Song (Deluxe)"),
	}
	found := ym("ym_same", "Art", "Song")
	env.ymFake.searchTable[searchKey("Art", "Song")] = found
	env.ymFake.searchTable[searchKey("Art", "Song (Deluxe)")] = found

	if _, err := env.engine.RunSync(ctx, ""); err != nil {
		t.Fatalf("RunSync: %v", err)
	}

	total := 0
	for _, call := range env.ymFake.likeCalls {
		for _, id := range call {
			if id == "ym_same" {
				total++
			}
		}
	}

	if total != 1 {
		t.Errorf("ym_same liked %d times, want exactly once", total)
	}
}
