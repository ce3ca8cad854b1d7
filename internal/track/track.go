// Package track defines the value types shared between the service
// clients, the matcher, and the sync engine.
package track

import "time"

// Service identifies one of the two synchronised streaming services.
type Service string

// Service values. These strings are persisted in the store and must not
// change without a schema migration.
const (
	Spotify Service = "spotify"
	Yandex  Service = "yandex"
)

// Other returns the opposite service.
func (s Service) Other() Service {
	if s == Spotify {
		return Yandex
	}

	return Spotify
}

// Valid reports whether s is a known service tag.
func (s Service) Valid() bool {
	return s == Spotify || s == Yandex
}

func (s Service) String() string { return string(s) }

// Remote is a track as fetched from a remote service API. Artist is the
// first credited artist; AddedAt is when the user liked the track (zero
// when the endpoint does not report it); DurationMS is 0 when unknown.
type Remote struct {
	Service    Service
	RemoteID   string
	Artist     string
	Title      string
	AddedAt    time.Time
	DurationMS int
}
