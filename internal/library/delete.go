package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"

	dbutil "github.com/llehouerou/crate/internal/db"
	"github.com/llehouerou/crate/internal/imports"
	"github.com/llehouerou/crate/internal/ordering"
	"github.com/llehouerou/crate/internal/search"
)

// Deleted describes a track removed by a delete cascade.
type Deleted struct {
	Track Track
	// Imports are the import records that were linked to the track. They
	// decide whether its file may be removed from disk.
	Imports []imports.Record
}

// DeleteTrack removes a track and every row that depends on it in one
// transaction. Playlists and the queue it was part of are renumbered.
// Returns nil when the track does not exist.
func (l *Library) DeleteTrack(ctx context.Context, id int64) (*Deleted, error) {
	var d *Deleted
	err := dbutil.WithTx(ctx, l.db, func(tx *sqlx.Tx) error {
		var err error
		d, err = deleteTrack(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// DeleteTracksUnderPath removes every track whose file lies in dir (or is
// dir itself), cascading each one, in a single transaction.
func (l *Library) DeleteTracksUnderPath(ctx context.Context, dir string) ([]Deleted, error) {
	prefix := dir
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}

	var deleted []Deleted
	err := dbutil.WithTx(ctx, l.db, func(tx *sqlx.Tx) error {
		var ids []int64
		if err := tx.SelectContext(ctx, &ids, `
			SELECT id FROM tracks
			WHERE file_ref = ? OR substr(file_ref, 1, length(?)) = ?
			ORDER BY id
		`, dir, prefix, prefix); err != nil {
			return err
		}
		for _, id := range ids {
			d, err := deleteTrack(ctx, tx, id)
			if err != nil {
				return err
			}
			if d != nil {
				deleted = append(deleted, *d)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func deleteTrack(ctx context.Context, tx *sqlx.Tx, id int64) (*Deleted, error) {
	t, err := trackWhere(ctx, tx, `id = ?`, id)
	if err != nil || t == nil {
		return nil, err
	}
	records, err := imports.ForTrack(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	byKey := []string{
		`DELETE FROM playback_state WHERE source = ? AND source_track_id = ?`,
		`DELETE FROM playback_positions WHERE source = ? AND source_track_id = ?`,
		`DELETE FROM history_entries WHERE source = ? AND source_track_id = ?`,
		`DELETE FROM lyrics WHERE source = ? AND source_track_id = ?`,
	}
	for _, q := range byKey {
		if _, err := tx.ExecContext(ctx, q, t.Source, t.SourceTrackID); err != nil {
			return nil, fmt.Errorf("delete dependents of track %d: %w", id, err)
		}
	}

	if err := removeFromQueue(ctx, tx, t.Key()); err != nil {
		return nil, err
	}
	if err := removeFromPlaylists(ctx, tx, id); err != nil {
		return nil, err
	}

	byID := []string{
		`DELETE FROM metadata_overrides WHERE track_id = ?`,
		`DELETE FROM import_records WHERE track_id = ?`,
		`DELETE FROM tracks WHERE id = ?`,
	}
	for _, q := range byID {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return nil, fmt.Errorf("delete track %d: %w", id, err)
		}
	}
	if err := search.Remove(ctx, tx, id); err != nil {
		return nil, err
	}

	return &Deleted{Track: *t, Imports: records}, nil
}

// removeFromQueue drops every queue item for key, renumbers the queue and
// moves the saved queue index back by the number of removed items before it.
// Positions are ranks in ord order, so a queue left with gaps still lines up
// with the saved index.
func removeFromQueue(ctx context.Context, tx *sqlx.Tx, key Key) error {
	var positions []int64
	if err := tx.SelectContext(ctx, &positions, `
		SELECT pos FROM (
			SELECT source, source_track_id, ROW_NUMBER() OVER (ORDER BY ord) - 1 AS pos
			FROM queue_items
		) WHERE source = ? AND source_track_id = ?
	`, key.Source, key.SourceTrackID); err != nil {
		return err
	}
	if len(positions) == 0 {
		return nil
	}

	var index sql.NullInt64
	err := tx.GetContext(ctx, &index, `SELECT queue_index FROM playback_state WHERE id = 1`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM queue_items WHERE source = ? AND source_track_id = ?
	`, key.Source, key.SourceTrackID); err != nil {
		return fmt.Errorf("delete queue items: %w", err)
	}

	if index.Valid {
		before := 0
		for _, pos := range positions {
			if pos < index.Int64 {
				before++
			}
		}
		if before > 0 {
			if _, err := tx.ExecContext(ctx, `
				UPDATE playback_state SET queue_index = queue_index - ? WHERE id = 1
			`, before); err != nil {
				return err
			}
		}
	}

	_, err = ordering.Compact(ctx, tx, ordering.QueueScope)
	return err
}

func removeFromPlaylists(ctx context.Context, tx *sqlx.Tx, trackID int64) error {
	var playlistIDs []int64
	if err := tx.SelectContext(ctx, &playlistIDs, `
		SELECT DISTINCT playlist_id FROM playlist_entries WHERE track_id = ?
	`, trackID); err != nil {
		return err
	}
	if len(playlistIDs) == 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM playlist_entries WHERE track_id = ?`, trackID); err != nil {
		return fmt.Errorf("delete playlist entries: %w", err)
	}
	for _, pid := range playlistIDs {
		if _, err := ordering.Compact(ctx, tx, ordering.PlaylistScope(pid)); err != nil {
			return err
		}
	}
	return nil
}
