// Package playback persists resume information: the last offset reached in
// each track and the singleton "now playing" row.
package playback

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	dbutil "github.com/llehouerou/crate/internal/db"
)

// Position is the last playback offset of one track, in seconds.
type Position struct {
	Source        string  `db:"source"`
	SourceTrackID string  `db:"source_track_id"`
	Seconds       float64 `db:"position"`
	UpdatedAt     int64   `db:"updated_at"`
}

// State is the currently playing track and its index in the queue.
// At most one exists.
type State struct {
	Source        string `db:"source"`
	SourceTrackID string `db:"source_track_id"`
	QueueIndex    int    `db:"queue_index"`
	UpdatedAt     int64  `db:"updated_at"`
}

// Store provides database operations for playback positions and state.
type Store struct {
	db *sqlx.DB
}

// New creates a new Store instance.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// SavePosition records the offset reached in a track.
func (s *Store) SavePosition(ctx context.Context, p Position) error {
	return savePosition(ctx, s.db, p)
}

func savePosition(ctx context.Context, q dbutil.Querier, p Position) error {
	_, err := sqlx.NamedExecContext(ctx, q, `
		INSERT INTO playback_positions (source, source_track_id, position, updated_at)
		VALUES (:source, :source_track_id, :position, :updated_at)
		ON CONFLICT(source, source_track_id) DO UPDATE SET
			position = excluded.position,
			updated_at = excluded.updated_at
	`, p)
	return err
}

// Position returns the saved offset of a track, or nil if none.
func (s *Store) Position(ctx context.Context, source, sourceTrackID string) (*Position, error) {
	var p Position
	err := s.db.GetContext(ctx, &p, `
		SELECT source, source_track_id, position, updated_at
		FROM playback_positions WHERE source = ? AND source_track_id = ?
	`, source, sourceTrackID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // no saved position is valid
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DeletePosition forgets the offset of a track.
func (s *Store) DeletePosition(ctx context.Context, source, sourceTrackID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM playback_positions WHERE source = ? AND source_track_id = ?
	`, source, sourceTrackID)
	return err
}

// SaveState replaces the now-playing row.
func (s *Store) SaveState(ctx context.Context, st State) error {
	_, err := sqlx.NamedExecContext(ctx, s.db, `
		INSERT INTO playback_state (id, source, source_track_id, queue_index, updated_at)
		VALUES (1, :source, :source_track_id, :queue_index, :updated_at)
		ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			source_track_id = excluded.source_track_id,
			queue_index = excluded.queue_index,
			updated_at = excluded.updated_at
	`, st)
	return err
}

// State returns the now-playing row, or nil if nothing was saved.
func (s *Store) State(ctx context.Context) (*State, error) {
	var st State
	err := s.db.GetContext(ctx, &st, `
		SELECT source, source_track_id, queue_index, updated_at
		FROM playback_state WHERE id = 1
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // no saved state is valid on first run
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ClearState removes the now-playing row.
func (s *Store) ClearState(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM playback_state`)
	return err
}
