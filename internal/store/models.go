package store

import (
	"time"

	"github.com/tunesync/tunesync/internal/track"
)

// Collection kinds.
const (
	CollectionLiked    = "liked"
	CollectionPlaylist = "playlist"
	CollectionAlbum    = "album"
)

// Sync-run directions.
const (
	DirectionSpotifyToYandex = "spotify_to_yandex"
	DirectionYandexToSpotify = "yandex_to_spotify"
	DirectionBidirectional   = "bidirectional"
)

// Sync-run statuses. A run leaves Running exactly once.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// Mapping links one track's identity across the two services. At least
// one of SpotifyID/YandexID is set; an empty string means "not yet
// discovered on that service".
type Mapping struct {
	ID         int64
	SpotifyID  string
	YandexID   string
	Artist     string
	Title      string
	Confidence float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RemoteID returns the mapping's id on the given service.
func (m Mapping) RemoteID(svc track.Service) string {
	if svc == track.Spotify {
		return m.SpotifyID
	}

	return m.YandexID
}

// Collection is one synchronised track container on one service. Liked
// collections have no remote id and are unique per service.
type Collection struct {
	ID        int64
	Service   track.Service
	Type      string
	RemoteID  string
	Title     string
	PairedID  int64 // 0 when unpaired
	CreatedAt time.Time
}

// CollectionTrack is one mapping's membership in one collection.
// RemovedAt zero means the membership is active.
type CollectionTrack struct {
	CollectionID int64
	MappingID    int64
	Position     int // 0 when unknown
	AddedAt      time.Time
	SyncedAt     time.Time
	RemovedAt    time.Time
}

// Removed reports whether the membership is soft-deleted.
func (ct CollectionTrack) Removed() bool {
	return !ct.RemovedAt.IsZero()
}

// Unmatched is a track observed on one service that could not be
// located on the other. Each failed retry bumps Attempts.
type Unmatched struct {
	ID            int64
	SourceService track.Service
	SourceID      string
	Artist        string
	Title         string
	Attempts      int
	LastAttemptAt time.Time
	CreatedAt     time.Time
}

// SyncRun is one audit row per sync cycle. FinishedAt is zero while the
// run is still in status "running".
type SyncRun struct {
	ID           int64
	StartedAt    time.Time
	FinishedAt   time.Time
	CollectionID int64 // 0 when the run covers no single collection
	Direction    string
	Mode         string
	Status       string
	StatsJSON    string
	ErrorMessage string
}

// Counts are the aggregate numbers exposed on the status surface.
type Counts struct {
	Mappings     int64 `json:"mappings"`
	SpotifyLiked int64 `json:"spotify_liked"`
	YandexLiked  int64 `json:"yandex_liked"`
	Unmatched    int64 `json:"unmatched"`
	Runs         int64 `json:"runs"`
}
