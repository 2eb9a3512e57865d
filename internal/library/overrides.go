package library

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	dbutil "github.com/llehouerou/crate/internal/db"
	"github.com/llehouerou/crate/internal/search"
)

// Override replaces displayed metadata of one track. Nil fields fall back
// to the track's own values.
type Override struct {
	TrackID    int64   `db:"track_id"`
	Title      *string `db:"title"`
	ArtistName *string `db:"artist_name"`
	AlbumName  *string `db:"album_name"`
	Genre      *string `db:"genre"`
	UpdatedAt  int64   `db:"updated_at"`
}

// SetOverride stores the override of a track, replacing any previous one,
// and reindexes the track.
func (l *Library) SetOverride(ctx context.Context, o Override) error {
	return dbutil.WithTx(ctx, l.db, func(tx *sqlx.Tx) error {
		if _, err := sqlx.NamedExecContext(ctx, tx, `
			INSERT INTO metadata_overrides (track_id, title, artist_name, album_name, genre, updated_at)
			VALUES (:track_id, :title, :artist_name, :album_name, :genre, :updated_at)
			ON CONFLICT(track_id) DO UPDATE SET
				title = excluded.title,
				artist_name = excluded.artist_name,
				album_name = excluded.album_name,
				genre = excluded.genre,
				updated_at = excluded.updated_at
		`, o); err != nil {
			return err
		}
		return search.Reindex(ctx, tx, o.TrackID)
	})
}

// DeleteOverride removes the override of a track and reindexes it.
func (l *Library) DeleteOverride(ctx context.Context, trackID int64) error {
	return dbutil.WithTx(ctx, l.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM metadata_overrides WHERE track_id = ?`, trackID); err != nil {
			return err
		}
		return search.Reindex(ctx, tx, trackID)
	})
}

// Override returns the override of a track, or nil if it has none.
func (l *Library) Override(ctx context.Context, trackID int64) (*Override, error) {
	var o Override
	err := l.db.GetContext(ctx, &o, `
		SELECT track_id, title, artist_name, album_name, genre, updated_at
		FROM metadata_overrides WHERE track_id = ?
	`, trackID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // not found is not an error
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}
