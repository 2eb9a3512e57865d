package playlists

import (
	"context"

	"github.com/jmoiron/sqlx"

	dbutil "github.com/llehouerou/crate/internal/db"
	"github.com/llehouerou/crate/internal/ordering"
)

// Entry is one position in a playlist.
type Entry struct {
	ID         int64 `db:"id"`
	PlaylistID int64 `db:"playlist_id"`
	TrackID    int64 `db:"track_id"`
	Ord        int   `db:"ord"`
	AddedAt    int64 `db:"added_at"`
}

// Entries returns the entries of a playlist in order.
func (p *Playlists) Entries(ctx context.Context, playlistID int64) ([]Entry, error) {
	return entries(ctx, p.db, playlistID)
}

func entries(ctx context.Context, q dbutil.Querier, playlistID int64) ([]Entry, error) {
	var out []Entry
	err := q.SelectContext(ctx, &out, `
		SELECT id, playlist_id, track_id, ord, added_at
		FROM playlist_entries WHERE playlist_id = ?
		ORDER BY ord
	`, playlistID)
	return out, err
}

// TrackIDs returns the track ids of a playlist in order.
func (p *Playlists) TrackIDs(ctx context.Context, playlistID int64) ([]int64, error) {
	var ids []int64
	err := p.db.SelectContext(ctx, &ids, `
		SELECT track_id FROM playlist_entries WHERE playlist_id = ? ORDER BY ord
	`, playlistID)
	return ids, err
}

// TrackCount returns the number of entries in a playlist.
func (p *Playlists) TrackCount(ctx context.Context, playlistID int64) (int, error) {
	return ordering.Count(ctx, p.db, ordering.PlaylistScope(playlistID))
}

// AppendTracks adds tracks after the last entry of a playlist.
func (p *Playlists) AppendTracks(ctx context.Context, playlistID int64, trackIDs []int64, at int64) error {
	if len(trackIDs) == 0 {
		return nil
	}
	return dbutil.WithTx(ctx, p.db, func(tx *sqlx.Tx) error {
		if err := exists(ctx, tx, playlistID); err != nil {
			return err
		}
		start, err := ordering.Next(ctx, tx, ordering.PlaylistScope(playlistID))
		if err != nil {
			return err
		}
		return p.insertRun(ctx, tx, playlistID, start, trackIDs, at)
	})
}

// InsertTracks inserts tracks at pos, in the given order, shifting the
// entries at or after pos. pos is clamped to the playlist bounds.
func (p *Playlists) InsertTracks(ctx context.Context, playlistID int64, pos int, trackIDs []int64, at int64) error {
	if len(trackIDs) == 0 {
		return nil
	}
	return dbutil.WithTx(ctx, p.db, func(tx *sqlx.Tx) error {
		if err := exists(ctx, tx, playlistID); err != nil {
			return err
		}
		start, err := ordering.MakeRoom(ctx, tx, ordering.PlaylistScope(playlistID), pos, len(trackIDs))
		if err != nil {
			return err
		}
		return p.insertRun(ctx, tx, playlistID, start, trackIDs, at)
	})
}

// insertRun writes trackIDs at consecutive ords from start and bumps the
// playlist's updated_at.
func (p *Playlists) insertRun(ctx context.Context, tx *sqlx.Tx, playlistID int64, start int, trackIDs []int64, at int64) error {
	added := make([]int64, len(trackIDs))
	for i := range added {
		added[i] = at
	}
	if err := writeEntries(ctx, tx, playlistID, start, trackIDs, added); err != nil {
		return err
	}
	return touch(ctx, tx, playlistID, at)
}

func writeEntries(ctx context.Context, tx *sqlx.Tx, playlistID int64, start int, trackIDs, addedAt []int64) error {
	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO playlist_entries (playlist_id, track_id, ord, added_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, trackID := range trackIDs {
		if _, err := stmt.ExecContext(ctx, playlistID, trackID, start+i, addedAt[i]); err != nil {
			return err
		}
	}
	return nil
}

// RemoveTrack removes every entry of trackID from a playlist without
// renumbering and returns how many were removed.
func (p *Playlists) RemoveTrack(ctx context.Context, playlistID, trackID int64, at int64) (int64, error) {
	var n int64
	err := dbutil.WithTx(ctx, p.db, func(tx *sqlx.Tx) error {
		var err error
		n, err = dbutil.Affected(ctx, tx, `
			DELETE FROM playlist_entries WHERE playlist_id = ? AND track_id = ?
		`, playlistID, trackID)
		if err != nil || n == 0 {
			return err
		}
		return touch(ctx, tx, playlistID, at)
	})
	return n, err
}

// RemoveAt removes the entry at ord without renumbering. Reports whether an
// entry was there.
func (p *Playlists) RemoveAt(ctx context.Context, playlistID int64, ord int, at int64) (bool, error) {
	var n int64
	err := dbutil.WithTx(ctx, p.db, func(tx *sqlx.Tx) error {
		var err error
		n, err = dbutil.Affected(ctx, tx, `
			DELETE FROM playlist_entries WHERE playlist_id = ? AND ord = ?
		`, playlistID, ord)
		if err != nil || n == 0 {
			return err
		}
		return touch(ctx, tx, playlistID, at)
	})
	return n > 0, err
}

// Reorder replaces the entries of a playlist with trackIDs in that order.
// Tracks that were already present keep their added_at.
func (p *Playlists) Reorder(ctx context.Context, playlistID int64, trackIDs []int64, at int64) error {
	return dbutil.WithTx(ctx, p.db, func(tx *sqlx.Tx) error {
		if err := exists(ctx, tx, playlistID); err != nil {
			return err
		}
		return reorder(ctx, tx, playlistID, trackIDs, at)
	})
}

func reorder(ctx context.Context, tx *sqlx.Tx, playlistID int64, trackIDs []int64, at int64) error {
	current, err := entries(ctx, tx, playlistID)
	if err != nil {
		return err
	}
	previous := make(map[int64][]int64, len(current))
	for _, e := range current {
		previous[e.TrackID] = append(previous[e.TrackID], e.AddedAt)
	}

	next := ordering.Reorder(trackIDs)
	ids := make([]int64, len(next))
	added := make([]int64, len(next))
	for i, e := range next {
		ids[i] = e.Item
		added[i] = at
		if prev := previous[e.Item]; len(prev) > 0 {
			added[i] = prev[0]
			previous[e.Item] = prev[1:]
		}
	}

	if _, err := ordering.Clear(ctx, tx, ordering.PlaylistScope(playlistID)); err != nil {
		return err
	}
	if err := writeEntries(ctx, tx, playlistID, 0, ids, added); err != nil {
		return err
	}
	return touch(ctx, tx, playlistID, at)
}

// Move shifts the entries at positions by delta as a block and returns
// their new positions. It is a full reorder under the hood. Positions are
// indices into the playlist's current order. Out-of-bounds moves are
// ignored and return positions unchanged.
func (p *Playlists) Move(ctx context.Context, playlistID int64, positions []int, delta int, at int64) ([]int, error) {
	var moved []int
	err := dbutil.WithTx(ctx, p.db, func(tx *sqlx.Tx) error {
		current, err := entries(ctx, tx, playlistID)
		if err != nil {
			return err
		}
		calc := newPositionCalculator(positions, len(current), delta)
		if !calc.canMove() {
			moved = positions
			return nil
		}

		order := calc.order()
		ids := make([]int64, len(order))
		for i, from := range order {
			ids[i] = current[from].TrackID
		}
		moved = calc.newPositions(positions)
		return reorder(ctx, tx, playlistID, ids, at)
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

// Compact renumbers a playlist left with gaps by removals.
func (p *Playlists) Compact(ctx context.Context, playlistID int64) error {
	return dbutil.WithTx(ctx, p.db, func(tx *sqlx.Tx) error {
		_, err := ordering.Compact(ctx, tx, ordering.PlaylistScope(playlistID))
		return err
	})
}
