package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/tunesync/tunesync/internal/track"
)

const sqlUpsertMapping = `INSERT INTO track_mapping
	(spotify_id, yandex_id, artist, title, match_confidence, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (spotify_id) DO UPDATE SET
	 yandex_id = COALESCE(excluded.yandex_id, track_mapping.yandex_id),
	 artist = excluded.artist,
	 title = excluded.title,
	 match_confidence = excluded.match_confidence,
	 updated_at = excluded.updated_at
	ON CONFLICT (yandex_id) DO UPDATE SET
	 spotify_id = COALESCE(excluded.spotify_id, track_mapping.spotify_id),
	 artist = excluded.artist,
	 title = excluded.title,
	 match_confidence = excluded.match_confidence,
	 updated_at = excluded.updated_at
	RETURNING id, spotify_id, yandex_id, artist, title, match_confidence,
	 created_at, updated_at`

const sqlSelectMapping = `SELECT id, spotify_id, yandex_id, artist, title,
	match_confidence, created_at, updated_at FROM track_mapping`

// UpsertMapping inserts a mapping, or — on a remote-id conflict on
// either service — fills in the missing counterpart id and refreshes
// artist, title, and confidence. Mappings are never deleted. At least
// one remote id must be given.
func (s *Store) UpsertMapping(ctx context.Context, artist, title, spotifyID, yandexID string, confidence float64) (Mapping, error) {
	if spotifyID == "" && yandexID == "" {
		return Mapping{}, errors.New("store: upsert mapping requires at least one remote id")
	}

	now := s.now()

	row := s.db.QueryRowContext(ctx, sqlUpsertMapping,
		nullString(spotifyID), nullString(yandexID), artist, title, confidence, now, now)

	m, err := scanMapping(row)
	if err != nil {
		return Mapping{}, fmt.Errorf("store: upserting mapping: %w", err)
	}

	return m, nil
}

// FindMappingByRemote looks a mapping up by its id on one service.
// Returns nil when absent.
func (s *Store) FindMappingByRemote(ctx context.Context, svc track.Service, remoteID string) (*Mapping, error) {
	if !svc.Valid() {
		return nil, fmt.Errorf("store: unknown service %q", svc)
	}

	column := "spotify_id"
	if svc == track.Yandex {
		column = "yandex_id"
	}

	row := s.db.QueryRowContext(ctx, sqlSelectMapping+" WHERE "+column+" = ?", remoteID)

	m, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("store: finding mapping by %s remote id: %w", svc, err)
	}

	return &m, nil
}

// GetMappingsByIDs bulk-fetches mappings by primary key, keyed by id.
// Unknown ids are silently absent from the result.
func (s *Store) GetMappingsByIDs(ctx context.Context, ids []int64) (map[int64]Mapping, error) {
	out := make(map[int64]Mapping, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, sqlSelectMapping+" WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("store: fetching mappings by ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning mapping: %w", err)
		}

		out[m.ID] = m
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating mappings: %w", err)
	}

	return out, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMapping(row rowScanner) (Mapping, error) {
	var (
		m         Mapping
		spotifyID sql.NullString
		yandexID  sql.NullString
		createdAt string
		updatedAt string
	)

	err := row.Scan(&m.ID, &spotifyID, &yandexID, &m.Artist, &m.Title,
		&m.Confidence, &createdAt, &updatedAt)
	if err != nil {
		return Mapping{}, err
	}

	m.SpotifyID = spotifyID.String
	m.YandexID = yandexID.String
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)

	return m, nil
}
