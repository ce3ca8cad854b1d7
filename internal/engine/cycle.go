package engine

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tunesync/tunesync/internal/match"
	"github.com/tunesync/tunesync/internal/store"
	"github.com/tunesync/tunesync/internal/track"
)

// cycle carries the per-cycle wiring so the step methods stay readable.
type cycle struct {
	engine  *Engine
	logger  *slog.Logger
	sp, ym  Client
	spColID int64
	ymColID int64
	stats   *Stats
}

// full reconciles complete snapshots of both libraries: cross-match new
// tracks, propagate removals (when enabled) and additions, then retry
// the unmatched backlog.
func (c *cycle) full(ctx context.Context) error {
	spTracks, ymTracks, err := c.fetchBoth(ctx, time.Time{})
	if err != nil {
		return err
	}

	// Index the store's view of both collections by remote id.
	spDB, err := c.engine.store.ListCollectionTracks(ctx, c.spColID, false)
	if err != nil {
		return err
	}

	ymDB, err := c.engine.store.ListCollectionTracks(ctx, c.ymColID, false)
	if err != nil {
		return err
	}

	spMappingIDs := make(map[int64]bool, len(spDB))
	for _, ct := range spDB {
		spMappingIDs[ct.MappingID] = true
	}

	ymMappingIDs := make(map[int64]bool, len(ymDB))
	for _, ct := range ymDB {
		ymMappingIDs[ct.MappingID] = true
	}

	allIDs := make([]int64, 0, len(spMappingIDs)+len(ymMappingIDs))
	for id := range spMappingIDs {
		allIDs = append(allIDs, id)
	}

	for id := range ymMappingIDs {
		if !spMappingIDs[id] {
			allIDs = append(allIDs, id)
		}
	}

	mappings, err := c.engine.store.GetMappingsByIDs(ctx, allIDs)
	if err != nil {
		return err
	}

	knownSpotify := make(map[string]bool)
	knownYandex := make(map[string]bool)

	for _, m := range mappings {
		if m.SpotifyID != "" {
			knownSpotify[m.SpotifyID] = true
		}

		if m.YandexID != "" {
			knownYandex[m.YandexID] = true
		}
	}

	remoteSpotify := remoteIDSet(spTracks)
	remoteYandex := remoteIDSet(ymTracks)

	// New = liked remotely but unknown to the store.
	var spNew, ymNew []track.Remote

	for _, t := range spTracks {
		if !knownSpotify[t.RemoteID] {
			spNew = append(spNew, t)
		}
	}

	for _, t := range ymTracks {
		if !knownYandex[t.RemoteID] {
			ymNew = append(ymNew, t)
		}
	}

	// Removed = active in the store but absent from the full snapshot.
	var spRemoved, ymRemoved []store.Mapping

	for id, m := range mappings {
		if spMappingIDs[id] && m.SpotifyID != "" && !remoteSpotify[m.SpotifyID] {
			spRemoved = append(spRemoved, m)
		}

		if ymMappingIDs[id] && m.YandexID != "" && !remoteYandex[m.YandexID] {
			ymRemoved = append(ymRemoved, m)
		}
	}

	matches, unmatchedSp, unmatchedYm := match.CrossMatch(spNew, ymNew)
	c.recordCrossMatches(ctx, matches)

	if c.engine.holder.Config().Sync.PropagateDeletions {
		c.propagateDeletions(ctx, spRemoved, ymRemoved)
	}

	c.propagateAdditions(ctx, unmatchedSp, unmatchedYm, remoteSpotify, remoteYandex)
	c.retryUnmatched(ctx)

	return nil
}

// incremental only considers tracks liked since the cutoff. Removals
// cannot be detected from a partial snapshot and are skipped.
func (c *cycle) incremental(ctx context.Context, since time.Time) error {
	spTracks, ymTracks, err := c.fetchBoth(ctx, since)
	if err != nil {
		return err
	}

	matches, unmatchedSp, unmatchedYm := match.CrossMatch(spTracks, ymTracks)
	c.recordCrossMatches(ctx, matches)

	c.propagateAdditions(ctx, unmatchedSp, unmatchedYm,
		remoteIDSet(spTracks), remoteIDSet(ymTracks))

	return nil
}

// fetchBoth pulls the two liked lists in parallel. A failure on either
// side fails the cycle; there is no point reconciling half a picture.
func (c *cycle) fetchBoth(ctx context.Context, since time.Time) (spTracks, ymTracks []track.Remote, err error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error

		spTracks, err = c.sp.FetchLiked(gctx, since)

		return err
	})

	g.Go(func() error {
		var err error

		ymTracks, err = c.ym.FetchLiked(gctx, since)

		return err
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return spTracks, ymTracks, nil
}

// recordCrossMatches persists tracks found on both sides at once. No
// service calls are needed; both sides already have the track.
func (c *cycle) recordCrossMatches(ctx context.Context, matches []match.Pair) {
	for _, pair := range matches {
		mapping, err := c.engine.store.UpsertMapping(ctx,
			pair.A.Artist, pair.A.Title, pair.A.RemoteID, pair.B.RemoteID, pair.Confidence)
		if err != nil {
			c.perTrackError("recording cross-match", err)

			continue
		}

		if _, err := c.engine.store.AddToCollection(ctx, c.spColID, mapping.ID, 0, pair.A.AddedAt); err != nil {
			c.perTrackError("recording cross-match", err)

			continue
		}

		if _, err := c.engine.store.AddToCollection(ctx, c.ymColID, mapping.ID, 0, pair.B.AddedAt); err != nil {
			c.perTrackError("recording cross-match", err)

			continue
		}

		c.stats.CrossMatched++
	}
}

// propagateDeletions mirrors unlikes: a track gone from one side is
// soft-deleted locally and unliked on the other side.
func (c *cycle) propagateDeletions(ctx context.Context, spRemoved, ymRemoved []store.Mapping) {
	for _, m := range spRemoved {
		if err := c.removeOneSide(ctx, m, c.spColID, c.ymColID, m.YandexID, c.ym); err != nil {
			c.perTrackError("propagating spotify removal", err)

			continue
		}

		c.stats.SpotifyRemoved++
	}

	for _, m := range ymRemoved {
		if err := c.removeOneSide(ctx, m, c.ymColID, c.spColID, m.SpotifyID, c.sp); err != nil {
			c.perTrackError("propagating yandex removal", err)

			continue
		}

		c.stats.YandexRemoved++
	}
}

func (c *cycle) removeOneSide(ctx context.Context, m store.Mapping, sourceColID, targetColID int64, targetID string, target Client) error {
	if err := c.engine.store.MarkRemoved(ctx, sourceColID, m.ID); err != nil {
		return err
	}

	if targetID == "" {
		return nil
	}

	if err := target.Unlike(ctx, []string{targetID}); err != nil {
		return err
	}

	return c.engine.store.MarkRemoved(ctx, targetColID, m.ID)
}

// propagateAdditions handles tracks present on one side only: search
// the other service, validate the candidate, like it, and record both
// memberships. Rejected or missing candidates go to the unmatched
// backlog. existing id sets prevent duplicate like calls within one
// cycle.
func (c *cycle) propagateAdditions(ctx context.Context, unmatchedSp, unmatchedYm []track.Remote, existingSp, existingYm map[string]bool) {
	for _, t := range unmatchedSp {
		if err := c.propagateOne(ctx, t, propagateTarget{
			client:      c.ym,
			service:     track.Yandex,
			sourceColID: c.spColID,
			targetColID: c.ymColID,
			existing:    existingYm,
			added:       &c.stats.YandexAdded,
		}); err != nil {
			c.perTrackError("propagating spotify addition", err)
		}
	}

	for _, t := range unmatchedYm {
		if err := c.propagateOne(ctx, t, propagateTarget{
			client:      c.sp,
			service:     track.Spotify,
			sourceColID: c.ymColID,
			targetColID: c.spColID,
			existing:    existingSp,
			added:       &c.stats.SpotifyAdded,
		}); err != nil {
			c.perTrackError("propagating yandex addition", err)
		}
	}
}

type propagateTarget struct {
	client      Client
	service     track.Service
	sourceColID int64
	targetColID int64
	existing    map[string]bool
	added       *int
}

func (c *cycle) propagateOne(ctx context.Context, t track.Remote, target propagateTarget) error {
	// Record the source side first so the track is known even when the
	// counterpart search fails.
	mapping, err := c.upsertHalfMapping(ctx, t)
	if err != nil {
		return err
	}

	if _, err := c.engine.store.AddToCollection(ctx, target.sourceColID, mapping.ID, 0, t.AddedAt); err != nil {
		return err
	}

	found, err := target.client.Search(ctx, t.Artist, t.Title)
	if err != nil {
		return err
	}

	if found == nil || !goodMatch(t, *found) {
		if found != nil {
			c.logger.Info("search result rejected by matcher",
				"source", t.Service.String(),
				"query_artist", t.Artist,
				"query_title", t.Title,
				"found_artist", found.Artist,
				"found_title", found.Title,
			)
		}

		if _, err := c.engine.store.AddUnmatched(ctx, t.Service, t.RemoteID, t.Artist, t.Title); err != nil {
			return err
		}

		c.stats.Unmatched++

		return nil
	}

	spotifyID, yandexID := orientIDs(t, *found)

	mapping, err = c.engine.store.UpsertMapping(ctx, t.Artist, t.Title, spotifyID, yandexID, 1.0)
	if err != nil {
		return err
	}

	if !target.existing[found.RemoteID] {
		if err := target.client.Like(ctx, []string{found.RemoteID}); err != nil {
			return err
		}

		*target.added++
	}

	if _, err := c.engine.store.AddToCollection(ctx, target.targetColID, mapping.ID, 0, found.AddedAt); err != nil {
		return err
	}

	target.existing[found.RemoteID] = true

	return nil
}

// retryUnmatched walks the backlog of both sides, searching again on
// the counterpart service. Successes are liked, recorded, and removed
// from the backlog; fresh misses bump the attempt counter. Rows at the
// attempt cap are skipped.
func (c *cycle) retryUnmatched(ctx context.Context) {
	retries := []struct {
		source      track.Service
		client      Client
		targetColID int64
	}{
		{track.Spotify, c.ym, c.ymColID},
		{track.Yandex, c.sp, c.spColID},
	}

	for _, r := range retries {
		backlog, err := c.engine.store.ListUnmatched(ctx, r.source)
		if err != nil {
			c.perTrackError("listing unmatched backlog", err)

			continue
		}

		for _, um := range backlog {
			if um.Attempts >= maxUnmatchedAttempts {
				continue
			}

			if err := c.retryOne(ctx, um, r.client, r.targetColID); err != nil {
				c.perTrackError("retrying unmatched track", err)
			}
		}
	}
}

func (c *cycle) retryOne(ctx context.Context, um store.Unmatched, target Client, targetColID int64) error {
	found, err := target.Search(ctx, um.Artist, um.Title)
	if err != nil {
		return err
	}

	query := match.Query{Artist: um.Artist, Title: um.Title}

	if found == nil || !match.IsGoodMatch(query, match.Query{Artist: found.Artist, Title: found.Title}) {
		// Still missing: bump the attempt counter via the same upsert.
		_, err := c.engine.store.AddUnmatched(ctx, um.SourceService, um.SourceID, um.Artist, um.Title)

		return err
	}

	var spotifyID, yandexID string
	if um.SourceService == track.Spotify {
		spotifyID, yandexID = um.SourceID, found.RemoteID
	} else {
		spotifyID, yandexID = found.RemoteID, um.SourceID
	}

	mapping, err := c.engine.store.UpsertMapping(ctx, um.Artist, um.Title, spotifyID, yandexID, 1.0)
	if err != nil {
		return err
	}

	if err := target.Like(ctx, []string{found.RemoteID}); err != nil {
		return err
	}

	if _, err := c.engine.store.AddToCollection(ctx, targetColID, mapping.ID, 0, time.Time{}); err != nil {
		return err
	}

	if err := c.engine.store.ResolveUnmatched(ctx, um.SourceService, um.SourceID); err != nil {
		return err
	}

	c.stats.RetriedOK++

	return nil
}

// upsertHalfMapping records a track known on its own service only.
func (c *cycle) upsertHalfMapping(ctx context.Context, t track.Remote) (store.Mapping, error) {
	spotifyID, yandexID := "", ""
	if t.Service == track.Spotify {
		spotifyID = t.RemoteID
	} else {
		yandexID = t.RemoteID
	}

	return c.engine.store.UpsertMapping(ctx, t.Artist, t.Title, spotifyID, yandexID, 1.0)
}

// perTrackError counts and logs a failure that stays local to one
// track. The cycle continues.
func (c *cycle) perTrackError(what string, err error) {
	c.logger.Warn(what, "error", err)
	c.stats.Errors++
}

// goodMatch adapts the matcher predicate to remote tracks.
func goodMatch(query, found track.Remote) bool {
	return match.IsGoodMatch(
		match.Query{Artist: query.Artist, Title: query.Title, DurationMS: query.DurationMS},
		match.Query{Artist: found.Artist, Title: found.Title, DurationMS: found.DurationMS},
	)
}

// orientIDs assigns the two remote ids to their service slots.
func orientIDs(source, found track.Remote) (spotifyID, yandexID string) {
	if source.Service == track.Spotify {
		return source.RemoteID, found.RemoteID
	}

	return found.RemoteID, source.RemoteID
}

func remoteIDSet(tracks []track.Remote) map[string]bool {
	set := make(map[string]bool, len(tracks))
	for _, t := range tracks {
		set[t.RemoteID] = true
	}

	return set
}
