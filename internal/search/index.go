// Package search maintains the denormalized full-text projection of every
// track and answers ranked queries against it.
//
// Each track has at most one row in track_search, keyed by rowid = track id.
// Its text is the override-resolved title/artist/album/genre plus the lyrics
// of the lexicographically first provider.
package search

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	dbutil "github.com/llehouerou/crate/internal/db"
)

// Projection is the searchable text stored for one track.
type Projection struct {
	TrackID int64  `db:"track_id"`
	Title   string `db:"title"`
	Artist  string `db:"artist"`
	Album   string `db:"album"`
	Genre   string `db:"genre"`
	Lyrics  string `db:"lyrics"`
}

// projectionSelect computes the resolved projection straight from the base
// tables. Overrides win wherever they are non-NULL.
const projectionSelect = `
	SELECT
		t.id AS track_id,
		COALESCE(o.title, t.title) AS title,
		COALESCE(o.artist_name, ar.name, '') AS artist,
		COALESCE(o.album_name, al.title, '') AS album,
		COALESCE(o.genre, t.genre, '') AS genre,
		COALESCE((
			SELECT l.content FROM lyrics l
			WHERE l.source = t.source AND l.source_track_id = t.source_track_id
			ORDER BY l.provider
			LIMIT 1
		), '') AS lyrics
	FROM tracks t
	LEFT JOIN artists ar ON ar.id = t.artist_id
	LEFT JOIN albums al ON al.id = t.album_id
	LEFT JOIN metadata_overrides o ON o.track_id = t.id
`

// Resolve computes what the index row for trackID should contain right now.
// Returns nil when the track does not exist.
func Resolve(ctx context.Context, q dbutil.Querier, trackID int64) (*Projection, error) {
	var p Projection
	err := q.GetContext(ctx, &p, projectionSelect+` WHERE t.id = ?`, trackID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // missing track is not an error
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Reindex recomputes and replaces the index row of one track. It is a no-op
// when the track no longer exists.
func Reindex(ctx context.Context, q dbutil.Querier, trackID int64) error {
	p, err := Resolve(ctx, q, trackID)
	if err != nil {
		return fmt.Errorf("resolve search projection: %w", err)
	}
	if p == nil {
		return nil
	}
	if err := Remove(ctx, q, trackID); err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO track_search (rowid, title, artist, album, genre, lyrics)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.TrackID, p.Title, p.Artist, p.Album, p.Genre, p.Lyrics)
	if err != nil {
		return fmt.Errorf("write search row: %w", err)
	}
	return nil
}

// ReindexKey reindexes the track identified by its composite key, if any.
func ReindexKey(ctx context.Context, q dbutil.Querier, source, sourceTrackID string) error {
	var id int64
	err := q.GetContext(ctx, &id, `SELECT id FROM tracks WHERE source = ? AND source_track_id = ?`, source, sourceTrackID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	return Reindex(ctx, q, id)
}

// ReindexWhere reindexes every track matching a WHERE clause on tracks t.
func ReindexWhere(ctx context.Context, q dbutil.Querier, where string, args ...any) error {
	var ids []int64
	if err := q.SelectContext(ctx, &ids, `SELECT t.id FROM tracks t WHERE `+where, args...); err != nil {
		return err
	}
	for _, id := range ids {
		if err := Reindex(ctx, q, id); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes the index row of a track.
func Remove(ctx context.Context, q dbutil.Querier, trackID int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM track_search WHERE rowid = ?`, trackID); err != nil {
		return fmt.Errorf("delete search row: %w", err)
	}
	return nil
}

// Row returns the stored index row of a track, or nil if it has none.
func Row(ctx context.Context, q dbutil.Querier, trackID int64) (*Projection, error) {
	var p Projection
	err := q.GetContext(ctx, &p, `
		SELECT rowid AS track_id, title, artist, album, genre, lyrics
		FROM track_search WHERE rowid = ?
	`, trackID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // no row is a valid state
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Rebuild recomputes the whole index from the base tables in one
// transaction.
func Rebuild(ctx context.Context, db *sqlx.DB) error {
	return dbutil.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM track_search`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO track_search (rowid, title, artist, album, genre, lyrics)
			SELECT track_id, title, artist, album, genre, lyrics FROM (`+projectionSelect+`)
		`)
		return err
	})
}

// Ensure rebuilds the index only when its row count disagrees with the
// track count. Call this on startup.
func Ensure(ctx context.Context, db *sqlx.DB) (bool, error) {
	var indexed, tracks int
	if err := db.GetContext(ctx, &indexed, `SELECT COUNT(*) FROM track_search`); err != nil {
		return false, err
	}
	if err := db.GetContext(ctx, &tracks, `SELECT COUNT(*) FROM tracks`); err != nil {
		return false, err
	}
	if indexed == tracks {
		return false, nil
	}
	return true, Rebuild(ctx, db)
}
