package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const (
	sqlInsertRun = `INSERT INTO sync_runs
		(started_at, collection_id, direction, mode, status)
		VALUES (?, ?, ?, ?, 'running')
		RETURNING id, started_at, finished_at, collection_id, direction, mode,
		 status, stats_json, error_message`

	sqlFinishRun = `UPDATE sync_runs
		SET finished_at = ?, status = ?, stats_json = ?, error_message = ?
		WHERE id = ? AND status = 'running'
		RETURNING id, started_at, finished_at, collection_id, direction, mode,
		 status, stats_json, error_message`

	sqlSelectRun = `SELECT id, started_at, finished_at, collection_id, direction,
		mode, status, stats_json, error_message FROM sync_runs`
)

// StartRun opens a sync-run audit row in status "running".
// collectionID 0 means the run covers no single collection.
func (s *Store) StartRun(ctx context.Context, direction, mode string, collectionID int64) (SyncRun, error) {
	row := s.db.QueryRowContext(ctx, sqlInsertRun,
		s.now(), nullInt64(collectionID), direction, mode)

	run, err := scanRun(row)
	if err != nil {
		return SyncRun{}, fmt.Errorf("store: starting sync run: %w", err)
	}

	return run, nil
}

// FinishRun closes a run exactly once: the update only applies while
// the row is still "running", so a second close is an error rather
// than a silent overwrite.
func (s *Store) FinishRun(ctx context.Context, runID int64, status, statsJSON, errorMessage string) (SyncRun, error) {
	switch status {
	case RunCompleted, RunFailed, RunCancelled:
	default:
		return SyncRun{}, fmt.Errorf("store: invalid final run status %q", status)
	}

	row := s.db.QueryRowContext(ctx, sqlFinishRun,
		s.now(), status, nullString(statsJSON), nullString(errorMessage), runID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SyncRun{}, fmt.Errorf("store: sync run %d is not running", runID)
	}

	if err != nil {
		return SyncRun{}, fmt.Errorf("store: finishing sync run %d: %w", runID, err)
	}

	return run, nil
}

// LastSuccessfulRun returns the most recent completed run, or nil when
// none has completed yet. The engine derives its incremental cutoff
// and its mode gating from this.
func (s *Store) LastSuccessfulRun(ctx context.Context) (*SyncRun, error) {
	row := s.db.QueryRowContext(ctx,
		sqlSelectRun+" WHERE status = 'completed' ORDER BY id DESC LIMIT 1")

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("store: finding last successful run: %w", err)
	}

	return &run, nil
}

// ListRuns returns run history, newest first.
func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		sqlSelectRun+" ORDER BY id DESC LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("store: listing sync runs: %w", err)
	}
	defer rows.Close()

	var out []SyncRun

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning sync run: %w", err)
		}

		out = append(out, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating sync runs: %w", err)
	}

	return out, nil
}

// CountSummary returns the aggregate numbers for the status surface:
// total mappings, active liked memberships per service, backlog size,
// and total runs.
func (s *Store) CountSummary(ctx context.Context) (Counts, error) {
	var c Counts

	queries := []struct {
		dest  *int64
		query string
	}{
		{&c.Mappings, "SELECT COUNT(*) FROM track_mapping"},
		{&c.Unmatched, "SELECT COUNT(*) FROM unmatched"},
		{&c.Runs, "SELECT COUNT(*) FROM sync_runs"},
		{&c.SpotifyLiked, sqlCountActiveLiked("spotify")},
		{&c.YandexLiked, sqlCountActiveLiked("yandex")},
	}

	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return Counts{}, fmt.Errorf("store: counting rows: %w", err)
		}
	}

	return c, nil
}

func sqlCountActiveLiked(service string) string {
	return fmt.Sprintf(`SELECT COUNT(*) FROM collection_track ct
		JOIN collection c ON c.id = ct.collection_id
		WHERE c.service = '%s' AND c.collection_type = 'liked'
		 AND ct.removed_at IS NULL`, service)
}

func scanRun(row rowScanner) (SyncRun, error) {
	var (
		run          SyncRun
		startedAt    string
		finishedAt   sql.NullString
		collectionID sql.NullInt64
		statsJSON    sql.NullString
		errorMessage sql.NullString
	)

	err := row.Scan(&run.ID, &startedAt, &finishedAt, &collectionID,
		&run.Direction, &run.Mode, &run.Status, &statsJSON, &errorMessage)
	if err != nil {
		return SyncRun{}, err
	}

	run.StartedAt = parseTime(startedAt)
	run.FinishedAt = parseTime(finishedAt.String)
	run.CollectionID = collectionID.Int64
	run.StatsJSON = statsJSON.String
	run.ErrorMessage = errorMessage.String

	return run, nil
}
