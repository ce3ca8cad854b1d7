package store

import (
	"context"
	"fmt"

	"github.com/tunesync/tunesync/internal/track"
)

const (
	sqlUpsertUnmatched = `INSERT INTO unmatched
		(source_service, source_id, artist, title, last_attempt_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_service, source_id) DO UPDATE SET
		 attempts = unmatched.attempts + 1,
		 last_attempt_at = excluded.last_attempt_at
		RETURNING id, source_service, source_id, artist, title, attempts,
		 last_attempt_at, created_at`

	sqlDeleteUnmatched = `DELETE FROM unmatched
		WHERE source_service = ? AND source_id = ?`

	sqlSelectUnmatched = `SELECT id, source_service, source_id, artist, title,
		attempts, last_attempt_at, created_at FROM unmatched`
)

// AddUnmatched records that a source-service track could not be located
// on the other service. A repeat for the same (service, id) bumps
// attempts and touches last_attempt_at instead of inserting.
func (s *Store) AddUnmatched(ctx context.Context, svc track.Service, sourceID, artist, title string) (Unmatched, error) {
	if !svc.Valid() {
		return Unmatched{}, fmt.Errorf("store: unknown service %q", svc)
	}

	now := s.now()

	row := s.db.QueryRowContext(ctx, sqlUpsertUnmatched,
		svc.String(), sourceID, artist, title, now, now)

	u, err := scanUnmatched(row)
	if err != nil {
		return Unmatched{}, fmt.Errorf("store: adding unmatched %s track %s: %w", svc, sourceID, err)
	}

	return u, nil
}

// ResolveUnmatched deletes the backlog row for a track that finally
// found its counterpart. Deleting an absent row is a no-op.
func (s *Store) ResolveUnmatched(ctx context.Context, svc track.Service, sourceID string) error {
	_, err := s.db.ExecContext(ctx, sqlDeleteUnmatched, svc.String(), sourceID)
	if err != nil {
		return fmt.Errorf("store: resolving unmatched %s track %s: %w", svc, sourceID, err)
	}

	return nil
}

// ListUnmatched returns the backlog ordered by id, oldest first. An
// empty service lists both sides.
func (s *Store) ListUnmatched(ctx context.Context, svc track.Service) ([]Unmatched, error) {
	query := sqlSelectUnmatched
	args := []any{}

	if svc != "" {
		query += " WHERE source_service = ?"
		args = append(args, svc.String())
	}

	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: listing unmatched tracks: %w", err)
	}
	defer rows.Close()

	var out []Unmatched

	for rows.Next() {
		u, err := scanUnmatched(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning unmatched track: %w", err)
		}

		out = append(out, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating unmatched tracks: %w", err)
	}

	return out, nil
}

func scanUnmatched(row rowScanner) (Unmatched, error) {
	var (
		u             Unmatched
		service       string
		lastAttemptAt string
		createdAt     string
	)

	err := row.Scan(&u.ID, &service, &u.SourceID, &u.Artist, &u.Title,
		&u.Attempts, &lastAttemptAt, &createdAt)
	if err != nil {
		return Unmatched{}, err
	}

	u.SourceService = track.Service(service)
	u.LastAttemptAt = parseTime(lastAttemptAt)
	u.CreatedAt = parseTime(createdAt)

	return u, nil
}
