package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tunesync/tunesync/internal/track"
)

const (
	sqlSelectCollection = `SELECT id, service, collection_type, remote_id, title,
		paired_id, created_at FROM collection`

	sqlInsertLikedCollection = `INSERT INTO collection
		(service, collection_type, remote_id, title, paired_id, created_at)
		VALUES (?, 'liked', NULL, ?, NULL, ?)
		RETURNING id, service, collection_type, remote_id, title, paired_id, created_at`

	sqlUpsertCollectionTrack = `INSERT INTO collection_track
		(collection_id, track_mapping_id, position, added_at, synced_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection_id, track_mapping_id) DO UPDATE SET
		 position = excluded.position,
		 synced_at = excluded.synced_at,
		 removed_at = NULL
		RETURNING collection_id, track_mapping_id, position, added_at, synced_at, removed_at`

	sqlMarkTrackRemoved = `UPDATE collection_track SET removed_at = ?
		WHERE collection_id = ? AND track_mapping_id = ?`

	sqlSelectCollectionTracks = `SELECT collection_id, track_mapping_id, position,
		added_at, synced_at, removed_at FROM collection_track WHERE collection_id = ?`
)

// EnsureLikedCollection returns the service's liked collection, creating
// it on first use. The partial unique index on (service) for liked rows
// guarantees there is never more than one.
func (s *Store) EnsureLikedCollection(ctx context.Context, svc track.Service) (Collection, error) {
	if !svc.Valid() {
		return Collection{}, fmt.Errorf("store: unknown service %q", svc)
	}

	row := s.db.QueryRowContext(ctx,
		sqlSelectCollection+" WHERE service = ? AND collection_type = 'liked'", svc.String())

	c, err := scanCollection(row)
	if err == nil {
		return c, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return Collection{}, fmt.Errorf("store: looking up liked collection for %s: %w", svc, err)
	}

	title := fmt.Sprintf("%s liked tracks", svc)

	row = s.db.QueryRowContext(ctx, sqlInsertLikedCollection, svc.String(), title, s.now())

	c, err = scanCollection(row)
	if err != nil {
		return Collection{}, fmt.Errorf("store: creating liked collection for %s: %w", svc, err)
	}

	s.logger.Info("created liked collection",
		"service", svc.String(),
		"collection_id", c.ID,
	)

	return c, nil
}

// PairCollections sets each collection's paired_id to the other,
// atomically. Pairing is symmetric by construction.
func (s *Store) PairCollections(ctx context.Context, aID, bID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: beginning pair transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "UPDATE collection SET paired_id = ? WHERE id = ?", bID, aID); err != nil {
		return fmt.Errorf("store: pairing collection %d: %w", aID, err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE collection SET paired_id = ? WHERE id = ?", aID, bID); err != nil {
		return fmt.Errorf("store: pairing collection %d: %w", bID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: committing pair transaction: %w", err)
	}

	return nil
}

// AddToCollection upserts one membership. A re-add of a soft-deleted
// membership clears removed_at and refreshes synced_at, so removal is
// reversible. position <= 0 and the zero addedAt store as NULL.
func (s *Store) AddToCollection(ctx context.Context, collectionID, mappingID int64, position int, addedAt time.Time) (CollectionTrack, error) {
	var pos sql.NullInt64
	if position > 0 {
		pos = sql.NullInt64{Int64: int64(position), Valid: true}
	}

	row := s.db.QueryRowContext(ctx, sqlUpsertCollectionTrack,
		collectionID, mappingID, pos, nullTime(addedAt), s.now())

	ct, err := scanCollectionTrack(row)
	if err != nil {
		return CollectionTrack{}, fmt.Errorf("store: adding mapping %d to collection %d: %w", mappingID, collectionID, err)
	}

	return ct, nil
}

// MarkRemoved soft-deletes one membership by setting removed_at.
func (s *Store) MarkRemoved(ctx context.Context, collectionID, mappingID int64) error {
	_, err := s.db.ExecContext(ctx, sqlMarkTrackRemoved, s.now(), collectionID, mappingID)
	if err != nil {
		return fmt.Errorf("store: marking mapping %d removed from collection %d: %w", mappingID, collectionID, err)
	}

	return nil
}

// ListCollectionTracks returns a collection's memberships ordered by
// position. Soft-deleted rows are excluded unless includeRemoved.
func (s *Store) ListCollectionTracks(ctx context.Context, collectionID int64, includeRemoved bool) ([]CollectionTrack, error) {
	query := sqlSelectCollectionTracks
	if !includeRemoved {
		query += " AND removed_at IS NULL"
	}

	query += " ORDER BY position"

	rows, err := s.db.QueryContext(ctx, query, collectionID)
	if err != nil {
		return nil, fmt.Errorf("store: listing tracks of collection %d: %w", collectionID, err)
	}
	defer rows.Close()

	var out []CollectionTrack

	for rows.Next() {
		ct, err := scanCollectionTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning collection track: %w", err)
		}

		out = append(out, ct)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating collection tracks: %w", err)
	}

	return out, nil
}

func scanCollection(row rowScanner) (Collection, error) {
	var (
		c         Collection
		service   string
		remoteID  sql.NullString
		pairedID  sql.NullInt64
		createdAt string
	)

	err := row.Scan(&c.ID, &service, &c.Type, &remoteID, &c.Title, &pairedID, &createdAt)
	if err != nil {
		return Collection{}, err
	}

	c.Service = track.Service(service)
	c.RemoteID = remoteID.String
	c.PairedID = pairedID.Int64
	c.CreatedAt = parseTime(createdAt)

	return c, nil
}

func scanCollectionTrack(row rowScanner) (CollectionTrack, error) {
	var (
		ct        CollectionTrack
		position  sql.NullInt64
		addedAt   sql.NullString
		syncedAt  sql.NullString
		removedAt sql.NullString
	)

	err := row.Scan(&ct.CollectionID, &ct.MappingID, &position, &addedAt, &syncedAt, &removedAt)
	if err != nil {
		return CollectionTrack{}, err
	}

	ct.Position = int(position.Int64)
	ct.AddedAt = parseTime(addedAt.String)
	ct.SyncedAt = parseTime(syncedAt.String)
	ct.RemovedAt = parseTime(removedAt.String)

	return ct, nil
}
