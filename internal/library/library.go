// Package library stores tracks and the entities that describe them:
// artists, albums, metadata overrides and lyrics. Every write that changes
// what a track looks like to search reindexes it in the same transaction.
package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	dbutil "github.com/llehouerou/crate/internal/db"
	"github.com/llehouerou/crate/internal/search"
)

// ErrMissingTrackAfterUpsert means a track row could not be read back right
// after being written, which points at an engine-level inconsistency.
var ErrMissingTrackAfterUpsert = errors.New("missing track after upsert")

// Source identifies where a track comes from.
type Source string

const (
	SourceLocal     Source = "local"
	SourceMusicKit  Source = "musicKit"
	SourceStreaming Source = "streaming"
	SourceURL       Source = "url"
)

// Key is the composite identity of a track within its source.
type Key struct {
	Source        Source `db:"source"`
	SourceTrackID string `db:"source_track_id"`
}

// Artist is a named performer.
type Artist struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// Album groups tracks under a title and an album artist.
type Album struct {
	ID       int64  `db:"id"`
	Title    string `db:"title"`
	ArtistID int64  `db:"artist_id"`
	Year     *int   `db:"year"`
}

// Library provides database operations for tracks and their metadata.
type Library struct {
	db *sqlx.DB
}

// New creates a new Library instance.
func New(db *sqlx.DB) *Library {
	return &Library{db: db}
}

// UpsertArtist returns the id of the artist with the given name, creating
// it if needed.
func (l *Library) UpsertArtist(ctx context.Context, name string) (int64, error) {
	var id int64
	err := l.db.GetContext(ctx, &id, `
		INSERT INTO artists (name) VALUES (?)
		ON CONFLICT(name) DO UPDATE SET name = excluded.name
		RETURNING id
	`, name)
	if err != nil {
		return 0, fmt.Errorf("upsert artist: %w", err)
	}
	return id, nil
}

// UpsertAlbum returns the id of the album (title, artistID), creating it or
// updating its year.
func (l *Library) UpsertAlbum(ctx context.Context, title string, artistID int64, year *int) (int64, error) {
	var id int64
	err := l.db.GetContext(ctx, &id, `
		INSERT INTO albums (title, artist_id, year) VALUES (?, ?, ?)
		ON CONFLICT(title, artist_id) DO UPDATE SET year = excluded.year
		RETURNING id
	`, title, artistID, year)
	if err != nil {
		return 0, fmt.Errorf("upsert album: %w", err)
	}
	return id, nil
}

// Artist returns an artist by id, or nil if it does not exist.
func (l *Library) Artist(ctx context.Context, id int64) (*Artist, error) {
	var a Artist
	err := l.db.GetContext(ctx, &a, `SELECT id, name FROM artists WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // not found is not an error
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Album returns an album by id, or nil if it does not exist.
func (l *Library) Album(ctx context.Context, id int64) (*Album, error) {
	var a Album
	err := l.db.GetContext(ctx, &a, `SELECT id, title, artist_id, year FROM albums WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // not found is not an error
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Artists returns every artist sorted by name.
func (l *Library) Artists(ctx context.Context) ([]Artist, error) {
	var artists []Artist
	err := l.db.SelectContext(ctx, &artists, `SELECT id, name FROM artists ORDER BY name COLLATE NOCASE`)
	return artists, err
}

// ArtistsByID returns the artists among ids, keyed by id.
func (l *Library) ArtistsByID(ctx context.Context, ids []int64) (map[int64]Artist, error) {
	out := make(map[int64]Artist, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`SELECT id, name FROM artists WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var artists []Artist
	if err := l.db.SelectContext(ctx, &artists, l.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, a := range artists {
		out[a.ID] = a
	}
	return out, nil
}

// DeleteArtist removes an artist with its recents entry and listening
// stats. Tracks still pointing at it are reindexed so their search rows
// stop carrying its name.
func (l *Library) DeleteArtist(ctx context.Context, id int64) error {
	return dbutil.WithTx(ctx, l.db, func(tx *sqlx.Tx) error {
		for _, q := range []string{
			`DELETE FROM recent_items WHERE kind = 'artist' AND entity_id = ?`,
			`DELETE FROM listening_stats WHERE artist_id = ?`,
			`DELETE FROM artists WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return err
			}
		}
		return search.ReindexWhere(ctx, tx, `t.artist_id = ?`, id)
	})
}

// DeleteAlbum removes an album and its recents entry, then reindexes the
// tracks that referenced it.
func (l *Library) DeleteAlbum(ctx context.Context, id int64) error {
	return dbutil.WithTx(ctx, l.db, func(tx *sqlx.Tx) error {
		for _, q := range []string{
			`DELETE FROM recent_items WHERE kind = 'album' AND entity_id = ?`,
			`DELETE FROM albums WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return err
			}
		}
		return search.ReindexWhere(ctx, tx, `t.album_id = ?`, id)
	})
}
