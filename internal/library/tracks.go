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

// MissingReason explains why a track's file cannot be played.
type MissingReason string

const (
	MissingNotFound   MissingReason = "not_found"
	MissingPermission MissingReason = "permission"
	MissingInvalidURI MissingReason = "invalid_uri"
)

// Track is a playable item. Pointer fields are optional.
type Track struct {
	ID            int64          `db:"id"`
	Source        Source         `db:"source"`
	SourceTrackID string         `db:"source_track_id"`
	Title         string         `db:"title"`
	Duration      float64        `db:"duration"`
	FileRef       *string        `db:"file_ref"`
	ContentHash   *string        `db:"content_hash"`
	FileSize      *int64         `db:"file_size"`
	TrackNumber   *int           `db:"track_number"`
	DiscNumber    *int           `db:"disc_number"`
	Missing       bool           `db:"missing"`
	MissingReason *MissingReason `db:"missing_reason"`
	Favorite      bool           `db:"favorite"`
	AlbumID       *int64         `db:"album_id"`
	ArtistID      *int64         `db:"artist_id"`
	AlbumArtistID *int64         `db:"album_artist_id"`
	ArtworkID     *int64         `db:"artwork_id"`
	Genre         *string        `db:"genre"`
	ReleaseYear   *int           `db:"release_year"`
	CreatedAt     int64          `db:"created_at"`
	UpdatedAt     int64          `db:"updated_at"`
}

// Key returns the composite identity of the track.
func (t Track) Key() Key {
	return Key{Source: t.Source, SourceTrackID: t.SourceTrackID}
}

const trackColumns = `
	id, source, source_track_id, title, duration, file_ref, content_hash, file_size,
	track_number, disc_number, missing, missing_reason, favorite, album_id, artist_id,
	album_artist_id, artwork_id, genre, release_year, created_at, updated_at
`

// created_at is kept from the first insert; every other column is replaced.
const upsertTrackQuery = `
	INSERT INTO tracks (
		source, source_track_id, title, duration, file_ref, content_hash, file_size,
		track_number, disc_number, missing, missing_reason, favorite, album_id, artist_id,
		album_artist_id, artwork_id, genre, release_year, created_at, updated_at
	) VALUES (
		:source, :source_track_id, :title, :duration, :file_ref, :content_hash, :file_size,
		:track_number, :disc_number, :missing, :missing_reason, :favorite, :album_id, :artist_id,
		:album_artist_id, :artwork_id, :genre, :release_year, :created_at, :updated_at
	)
	ON CONFLICT(source, source_track_id) DO UPDATE SET
		title = excluded.title,
		duration = excluded.duration,
		file_ref = excluded.file_ref,
		content_hash = excluded.content_hash,
		file_size = excluded.file_size,
		track_number = excluded.track_number,
		disc_number = excluded.disc_number,
		missing = excluded.missing,
		missing_reason = excluded.missing_reason,
		favorite = excluded.favorite,
		album_id = excluded.album_id,
		artist_id = excluded.artist_id,
		album_artist_id = excluded.album_artist_id,
		artwork_id = excluded.artwork_id,
		genre = excluded.genre,
		release_year = excluded.release_year,
		updated_at = excluded.updated_at
`

// UpsertTrack inserts t or replaces the mutable columns of the track with
// the same composite key, then reindexes it. The returned id is stable
// across re-imports of the same key.
func (l *Library) UpsertTrack(ctx context.Context, t Track) (int64, error) {
	var id int64
	err := dbutil.WithTx(ctx, l.db, func(tx *sqlx.Tx) error {
		var err error
		id, err = upsertTrack(ctx, tx, t)
		return err
	})
	return id, err
}

// UpsertTracks upserts a batch in one transaction and returns the ids in
// input order. Either every track is written or none is.
func (l *Library) UpsertTracks(ctx context.Context, tracks []Track) ([]int64, error) {
	ids := make([]int64, 0, len(tracks))
	err := dbutil.WithTx(ctx, l.db, func(tx *sqlx.Tx) error {
		for _, t := range tracks {
			id, err := upsertTrack(ctx, tx, t)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func upsertTrack(ctx context.Context, tx *sqlx.Tx, t Track) (int64, error) {
	if _, err := sqlx.NamedExecContext(ctx, tx, upsertTrackQuery, t); err != nil {
		return 0, fmt.Errorf("upsert track %s/%s: %w", t.Source, t.SourceTrackID, err)
	}

	var id int64
	err := tx.GetContext(ctx, &id, `
		SELECT id FROM tracks WHERE source = ? AND source_track_id = ?
	`, t.Source, t.SourceTrackID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s/%s", ErrMissingTrackAfterUpsert, t.Source, t.SourceTrackID)
	}
	if err != nil {
		return 0, err
	}

	if err := search.Reindex(ctx, tx, id); err != nil {
		return 0, err
	}
	return id, nil
}

// Track returns a track by id, or nil if it does not exist.
func (l *Library) Track(ctx context.Context, id int64) (*Track, error) {
	return trackWhere(ctx, l.db, `id = ?`, id)
}

// TrackByKey returns a track by composite key, or nil if it does not exist.
func (l *Library) TrackByKey(ctx context.Context, source Source, sourceTrackID string) (*Track, error) {
	return trackWhere(ctx, l.db, `source = ? AND source_track_id = ?`, source, sourceTrackID)
}

func trackWhere(ctx context.Context, q dbutil.Querier, where string, args ...any) (*Track, error) {
	var t Track
	err := q.GetContext(ctx, &t, `SELECT `+trackColumns+` FROM tracks WHERE `+where, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // not found is not an error
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Tracks returns the tracks among ids in the order the ids were given.
// Unknown ids are skipped.
func (l *Library) Tracks(ctx context.Context, ids []int64) ([]Track, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+trackColumns+` FROM tracks WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []Track
	if err := l.db.SelectContext(ctx, &rows, l.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	byID := make(map[int64]Track, len(rows))
	for _, t := range rows {
		byID[t.ID] = t
	}
	tracks := make([]Track, 0, len(rows))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			tracks = append(tracks, t)
		}
	}
	return tracks, nil
}

// TrackCount returns the number of tracks in the library.
func (l *Library) TrackCount(ctx context.Context) (int, error) {
	var n int
	err := l.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM tracks`)
	return n, err
}

// SetFavorite sets the favorite flag of a track.
func (l *Library) SetFavorite(ctx context.Context, id int64, favorite bool, at int64) error {
	_, err := l.db.ExecContext(ctx, `
		UPDATE tracks SET favorite = ?, updated_at = ? WHERE id = ?
	`, favorite, at, id)
	return err
}

// MarkMissing flags a track whose file cannot be reached.
func (l *Library) MarkMissing(ctx context.Context, id int64, reason MissingReason, at int64) error {
	_, err := l.db.ExecContext(ctx, `
		UPDATE tracks SET missing = 1, missing_reason = ?, updated_at = ? WHERE id = ?
	`, reason, at, id)
	return err
}

// ClearMissing clears the missing flag of a track.
func (l *Library) ClearMissing(ctx context.Context, id int64, at int64) error {
	_, err := l.db.ExecContext(ctx, `
		UPDATE tracks SET missing = 0, missing_reason = NULL, updated_at = ? WHERE id = ?
	`, at, id)
	return err
}

// MissingTracks returns every track currently flagged missing.
func (l *Library) MissingTracks(ctx context.Context) ([]Track, error) {
	var tracks []Track
	err := l.db.SelectContext(ctx, &tracks, `
		SELECT `+trackColumns+` FROM tracks WHERE missing = 1 ORDER BY id
	`)
	return tracks, err
}
