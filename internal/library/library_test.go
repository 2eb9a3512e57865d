//nolint:goconst // test files commonly repeat strings for test data
package library

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbutil "github.com/llehouerou/crate/internal/db"
	"github.com/llehouerou/crate/internal/search"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := dbutil.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr[T any](v T) *T { return &v }

// newTrack builds a local track with an artist and album created on the fly.
func newTrack(t *testing.T, lib *Library, sourceID, title, artist, album string) Track {
	t.Helper()
	ctx := context.Background()
	artistID, err := lib.UpsertArtist(ctx, artist)
	require.NoError(t, err)
	albumID, err := lib.UpsertAlbum(ctx, album, artistID, nil)
	require.NoError(t, err)
	return Track{
		Source:        SourceLocal,
		SourceTrackID: sourceID,
		Title:         title,
		Duration:      180,
		FileRef:       ptr("/music/" + sourceID + ".flac"),
		ArtistID:      &artistID,
		AlbumArtistID: &artistID,
		AlbumID:       &albumID,
		Genre:         ptr("Rock"),
		CreatedAt:     100,
		UpdatedAt:     100,
	}
}

func indexed(t *testing.T, db *sqlx.DB, id int64) *search.Projection {
	t.Helper()
	row, err := search.Row(context.Background(), db, id)
	require.NoError(t, err)
	return row
}

func TestUpsertArtistAndAlbum(t *testing.T) {
	lib := New(setupTestDB(t))
	ctx := context.Background()

	a1, err := lib.UpsertArtist(ctx, "Low")
	require.NoError(t, err)
	a2, err := lib.UpsertArtist(ctx, "Low")
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	other, err := lib.UpsertArtist(ctx, "Codeine")
	require.NoError(t, err)
	assert.NotEqual(t, a1, other)

	var n int
	require.NoError(t, lib.db.Get(&n, `SELECT COUNT(*) FROM artists`))
	assert.Equal(t, 2, n)

	al1, err := lib.UpsertAlbum(ctx, "Things We Lost", a1, nil)
	require.NoError(t, err)
	al2, err := lib.UpsertAlbum(ctx, "Things We Lost", a1, ptr(2001))
	require.NoError(t, err)
	assert.Equal(t, al1, al2)

	album, err := lib.Album(ctx, al1)
	require.NoError(t, err)
	require.NotNil(t, album.Year)
	assert.Equal(t, 2001, *album.Year)

	artists, err := lib.ArtistsByID(ctx, []int64{a1, 999})
	require.NoError(t, err)
	assert.Equal(t, map[int64]Artist{a1: {ID: a1, Name: "Low"}}, artists)

	missing, err := lib.Artist(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpsertTrack_StableIDAndIndex(t *testing.T) {
	db := setupTestDB(t)
	lib := New(db)
	ctx := context.Background()

	tr := newTrack(t, lib, "a", "Song A", "The Band", "First")
	id, err := lib.UpsertTrack(ctx, tr)
	require.NoError(t, err)

	row := indexed(t, db, id)
	require.NotNil(t, row)
	assert.Equal(t, "Song A", row.Title)
	assert.Equal(t, "The Band", row.Artist)
	assert.Equal(t, "First", row.Album)
	assert.Equal(t, "Rock", row.Genre)

	tr.Title = "Song A (Remaster)"
	tr.CreatedAt = 500
	tr.UpdatedAt = 500
	again, err := lib.UpsertTrack(ctx, tr)
	require.NoError(t, err)
	assert.Equal(t, id, again, "same composite key keeps its id")

	got, err := lib.Track(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Song A (Remaster)", got.Title)
	assert.Equal(t, int64(100), got.CreatedAt, "created_at is kept")
	assert.Equal(t, int64(500), got.UpdatedAt)
	assert.Equal(t, "Song A (Remaster)", indexed(t, db, id).Title)

	n, err := lib.TrackCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpsertTracks_Batch(t *testing.T) {
	db := setupTestDB(t)
	lib := New(db)
	ctx := context.Background()

	batch := []Track{
		newTrack(t, lib, "1", "One", "A", "X"),
		newTrack(t, lib, "2", "Two", "A", "X"),
		newTrack(t, lib, "3", "Three", "B", "Y"),
	}
	ids, err := lib.UpsertTracks(ctx, batch)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	tracks, err := lib.Tracks(ctx, []int64{ids[2], ids[0], 12345})
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "Three", tracks[0].Title)
	assert.Equal(t, "One", tracks[1].Title)
}

func TestTrackByKey(t *testing.T) {
	lib := New(setupTestDB(t))
	ctx := context.Background()

	id, err := lib.UpsertTrack(ctx, newTrack(t, lib, "k", "Keyed", "A", "X"))
	require.NoError(t, err)

	got, err := lib.TrackByKey(ctx, SourceLocal, "k")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, Key{Source: SourceLocal, SourceTrackID: "k"}, got.Key())

	got, err = lib.TrackByKey(ctx, SourceStreaming, "k")
	require.NoError(t, err)
	assert.Nil(t, got, "same id under another source is a different track")
}

func TestFlags(t *testing.T) {
	lib := New(setupTestDB(t))
	ctx := context.Background()

	id, err := lib.UpsertTrack(ctx, newTrack(t, lib, "f", "Flagged", "A", "X"))
	require.NoError(t, err)

	require.NoError(t, lib.SetFavorite(ctx, id, true, 200))
	require.NoError(t, lib.MarkMissing(ctx, id, MissingPermission, 201))

	got, err := lib.Track(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Favorite)
	assert.True(t, got.Missing)
	require.NotNil(t, got.MissingReason)
	assert.Equal(t, MissingPermission, *got.MissingReason)

	missing, err := lib.MissingTracks(ctx)
	require.NoError(t, err)
	require.Len(t, missing, 1)

	require.NoError(t, lib.ClearMissing(ctx, id, 202))
	got, err = lib.Track(ctx, id)
	require.NoError(t, err)
	assert.False(t, got.Missing)
	assert.Nil(t, got.MissingReason)
	assert.Equal(t, int64(202), got.UpdatedAt)
}

func TestOverride_SearchSync(t *testing.T) {
	db := setupTestDB(t)
	lib := New(db)
	ctx := context.Background()

	id, err := lib.UpsertTrack(ctx, newTrack(t, lib, "a", "Song A", "The Band", "First"))
	require.NoError(t, err)

	require.NoError(t, lib.SetOverride(ctx, Override{TrackID: id, Title: ptr("Song B"), UpdatedAt: 1}))
	assert.Equal(t, "Song B", indexed(t, db, id).Title)

	o, err := lib.Override(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Nil(t, o.ArtistName)

	require.NoError(t, lib.SetOverride(ctx, Override{TrackID: id, ArtistName: ptr("Someone Else"), UpdatedAt: 2}))
	row := indexed(t, db, id)
	assert.Equal(t, "Song A", row.Title, "replacing the override drops its old title")
	assert.Equal(t, "Someone Else", row.Artist)

	require.NoError(t, lib.DeleteOverride(ctx, id))
	row = indexed(t, db, id)
	assert.Equal(t, "Song A", row.Title)
	assert.Equal(t, "The Band", row.Artist)

	o, err = lib.Override(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, o)
}

func TestLyrics_SearchSync(t *testing.T) {
	db := setupTestDB(t)
	lib := New(db)
	ctx := context.Background()

	id, err := lib.UpsertTrack(ctx, newTrack(t, lib, "a", "Song A", "The Band", "First"))
	require.NoError(t, err)

	require.NoError(t, lib.SetLyrics(ctx, Lyrics{Source: SourceLocal, SourceTrackID: "a", Provider: "lrclib", Content: "la la", UpdatedAt: 1}))
	assert.Equal(t, "la la", indexed(t, db, id).Lyrics)

	require.NoError(t, lib.SetLyrics(ctx, Lyrics{Source: SourceLocal, SourceTrackID: "a", Provider: "embedded", Content: "do re mi", Synced: true, UpdatedAt: 2}))
	assert.Equal(t, "do re mi", indexed(t, db, id).Lyrics, "lowest provider wins")

	all, err := lib.Lyrics(ctx, SourceLocal, "a")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "embedded", all[0].Provider)
	assert.True(t, all[0].Synced)

	require.NoError(t, lib.DeleteLyrics(ctx, SourceLocal, "a", "embedded"))
	assert.Equal(t, "la la", indexed(t, db, id).Lyrics)

	require.NoError(t, lib.DeleteLyrics(ctx, SourceLocal, "a", "lrclib"))
	assert.Empty(t, indexed(t, db, id).Lyrics)
}

func TestLyrics_WithoutTrack(t *testing.T) {
	db := setupTestDB(t)
	lib := New(db)
	ctx := context.Background()

	require.NoError(t, lib.SetLyrics(ctx, Lyrics{Source: SourceURL, SourceTrackID: "x", Provider: "p", Content: "c", UpdatedAt: 1}))

	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM track_search`))
	assert.Equal(t, 0, n)
}

func TestDeleteArtistAndAlbum_Reindex(t *testing.T) {
	db := setupTestDB(t)
	lib := New(db)
	ctx := context.Background()

	tr := newTrack(t, lib, "a", "Song A", "The Band", "First")
	id, err := lib.UpsertTrack(ctx, tr)
	require.NoError(t, err)

	require.NoError(t, lib.DeleteArtist(ctx, *tr.ArtistID))
	assert.Empty(t, indexed(t, db, id).Artist)

	require.NoError(t, lib.DeleteAlbum(ctx, *tr.AlbumID))
	assert.Empty(t, indexed(t, db, id).Album)
	assert.Equal(t, "Song A", indexed(t, db, id).Title)
}

func TestDeleteArtistAndAlbum_Cascade(t *testing.T) {
	db := setupTestDB(t)
	lib := New(db)
	ctx := context.Background()

	tr := newTrack(t, lib, "a", "Song A", "The Band", "First")
	artistID, albumID := *tr.ArtistID, *tr.AlbumID
	keep, err := lib.UpsertArtist(ctx, "Other")
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO recent_items (kind, entity_id, last_opened_at) VALUES
		('artist', ?, 1), ('album', ?, 2), ('artist', ?, 3), ('playlist', ?, 4)`,
		artistID, albumID, keep, artistID)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO listening_stats (artist_id, day, play_count) VALUES
		(?, 20250101, 3), (?, 20250101, 1)`, artistID, keep)
	require.NoError(t, err)

	require.NoError(t, lib.DeleteArtist(ctx, artistID))
	require.NoError(t, lib.DeleteAlbum(ctx, albumID))

	var recents []string
	require.NoError(t, db.Select(&recents, `SELECT kind FROM recent_items ORDER BY last_opened_at`))
	assert.Equal(t, []string{"artist", "playlist"}, recents)

	var statArtists []int64
	require.NoError(t, db.Select(&statArtists, `SELECT artist_id FROM listening_stats`))
	assert.Equal(t, []int64{keep}, statArtists)
}
