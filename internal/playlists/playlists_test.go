//nolint:goconst // test files commonly repeat strings for test data
package playlists

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/jmoiron/sqlx"

	dbutil "github.com/llehouerou/crate/internal/db"
	"github.com/llehouerou/crate/internal/ordering"
)

// setupTestDB creates an in-memory database with the full schema.
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := dbutil.OpenMemory()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func trackIDs(t *testing.T, p *Playlists, id int64) []int64 {
	t.Helper()
	ids, err := p.TrackIDs(context.Background(), id)
	if err != nil {
		t.Fatalf("TrackIDs failed: %v", err)
	}
	return ids
}

func assertDense(t *testing.T, db *sqlx.DB, id int64) {
	t.Helper()
	ords, err := ordering.Ords(context.Background(), db, ordering.PlaylistScope(id))
	if err != nil {
		t.Fatalf("Ords failed: %v", err)
	}
	if !ordering.IsDense(ords) {
		t.Errorf("ords %v are not dense", ords)
	}
}

// Playlist CRUD tests

func TestPlaylist_Create(t *testing.T) {
	p := New(setupTestDB(t))
	ctx := context.Background()

	id, err := p.Create(ctx, "  My Playlist ", 100)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id <= 0 {
		t.Errorf("expected positive ID, got %d", id)
	}

	pl, err := p.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if pl.Name != "My Playlist" {
		t.Errorf("Name = %q, want %q", pl.Name, "My Playlist")
	}
	if pl.CreatedAt != 100 || pl.UpdatedAt != 100 {
		t.Errorf("timestamps = %d/%d, want 100/100", pl.CreatedAt, pl.UpdatedAt)
	}
	if pl.LastPlayedAt != nil {
		t.Errorf("LastPlayedAt should be nil for a new playlist")
	}
}

func TestPlaylist_CreateEmptyName(t *testing.T) {
	p := New(setupTestDB(t))

	if _, err := p.Create(context.Background(), "   ", 1); !errors.Is(err, ErrEmptyName) {
		t.Errorf("err = %v, want ErrEmptyName", err)
	}
}

func TestPlaylist_Rename(t *testing.T) {
	p := New(setupTestDB(t))
	ctx := context.Background()

	id, _ := p.Create(ctx, "Original Name", 1)

	if err := p.Rename(ctx, id, "New Name", 2); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}

	pl, _ := p.Get(ctx, id)
	if pl.Name != "New Name" {
		t.Errorf("Name = %q, want %q", pl.Name, "New Name")
	}
	if pl.UpdatedAt != 2 {
		t.Errorf("UpdatedAt = %d, want 2", pl.UpdatedAt)
	}

	if err := p.Rename(ctx, 999, "Ghost", 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPlaylist_FavoriteAndPlayed(t *testing.T) {
	p := New(setupTestDB(t))
	ctx := context.Background()

	id, _ := p.Create(ctx, "Mix", 1)
	if err := p.SetFavorite(ctx, id, true, 2); err != nil {
		t.Fatalf("SetFavorite failed: %v", err)
	}
	if err := p.MarkPlayed(ctx, id, 3); err != nil {
		t.Fatalf("MarkPlayed failed: %v", err)
	}

	pl, _ := p.Get(ctx, id)
	if !pl.Favorite {
		t.Error("expected favorite")
	}
	if pl.LastPlayedAt == nil || *pl.LastPlayedAt != 3 {
		t.Errorf("LastPlayedAt = %v, want 3", pl.LastPlayedAt)
	}
}

func TestPlaylist_Delete(t *testing.T) {
	db := setupTestDB(t)
	p := New(db)
	ctx := context.Background()

	id, _ := p.Create(ctx, "To Delete", 1)
	_ = p.AppendTracks(ctx, id, []int64{1, 2}, 1)
	_, _ = db.Exec(`INSERT INTO recent_items (kind, entity_id, last_opened_at) VALUES ('playlist', ?, 5)`, id)

	if err := p.Delete(ctx, id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	pl, err := p.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if pl != nil {
		t.Error("expected nil for deleted playlist")
	}

	var n int
	_ = db.Get(&n, `SELECT COUNT(*) FROM playlist_entries`)
	if n != 0 {
		t.Errorf("entries left = %d, want 0", n)
	}
	_ = db.Get(&n, `SELECT COUNT(*) FROM recent_items`)
	if n != 0 {
		t.Errorf("recents left = %d, want 0", n)
	}
}

func TestPlaylist_List(t *testing.T) {
	p := New(setupTestDB(t))
	ctx := context.Background()

	for _, name := range []string{"beta", "Alpha", "gamma"} {
		if _, err := p.Create(ctx, name, 1); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	list, err := p.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var names []string
	for _, pl := range list {
		names = append(names, pl.Name)
	}
	if want := []string{"Alpha", "beta", "gamma"}; !reflect.DeepEqual(names, want) {
		t.Errorf("names = %v, want %v", names, want)
	}
}

// Entry tests

func TestEntries_AppendThenInsert(t *testing.T) {
	db := setupTestDB(t)
	p := New(db)
	ctx := context.Background()

	id, _ := p.Create(ctx, "Ordered", 1)

	if err := p.AppendTracks(ctx, id, []int64{10, 11, 12}, 2); err != nil {
		t.Fatalf("AppendTracks failed: %v", err)
	}
	if err := p.InsertTracks(ctx, id, 1, []int64{99}, 3); err != nil {
		t.Fatalf("InsertTracks failed: %v", err)
	}

	entries, err := p.Entries(ctx, id)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	want := []struct {
		track int64
		ord   int
	}{{10, 0}, {99, 1}, {11, 2}, {12, 3}}
	if len(entries) != len(want) {
		t.Fatalf("len(entries) = %d, want %d", len(entries), len(want))
	}
	for i, w := range want {
		if entries[i].TrackID != w.track || entries[i].Ord != w.ord {
			t.Errorf("entry %d = (%d, %d), want (%d, %d)", i, entries[i].TrackID, entries[i].Ord, w.track, w.ord)
		}
	}

	pl, _ := p.Get(ctx, id)
	if pl.UpdatedAt != 3 {
		t.Errorf("UpdatedAt = %d, want 3", pl.UpdatedAt)
	}
}

func TestEntries_InsertBatchAndClamp(t *testing.T) {
	db := setupTestDB(t)
	p := New(db)
	ctx := context.Background()

	id, _ := p.Create(ctx, "Batch", 1)
	_ = p.AppendTracks(ctx, id, []int64{1, 2}, 1)

	if err := p.InsertTracks(ctx, id, 1, []int64{7, 8, 9}, 2); err != nil {
		t.Fatalf("InsertTracks failed: %v", err)
	}
	if err := p.InsertTracks(ctx, id, 100, []int64{5}, 3); err != nil {
		t.Fatalf("InsertTracks failed: %v", err)
	}
	if err := p.InsertTracks(ctx, id, -4, []int64{4}, 4); err != nil {
		t.Fatalf("InsertTracks failed: %v", err)
	}

	if got, want := trackIDs(t, p, id), []int64{4, 1, 7, 8, 9, 2, 5}; !reflect.DeepEqual(got, want) {
		t.Errorf("tracks = %v, want %v", got, want)
	}
	assertDense(t, db, id)
}

func TestEntries_MissingPlaylist(t *testing.T) {
	p := New(setupTestDB(t))
	ctx := context.Background()

	if err := p.AppendTracks(ctx, 42, []int64{1}, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("AppendTracks err = %v, want ErrNotFound", err)
	}
	if err := p.InsertTracks(ctx, 42, 0, []int64{1}, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("InsertTracks err = %v, want ErrNotFound", err)
	}
}

func TestEntries_RemoveLeavesGaps(t *testing.T) {
	db := setupTestDB(t)
	p := New(db)
	ctx := context.Background()

	id, _ := p.Create(ctx, "Gaps", 1)
	_ = p.AppendTracks(ctx, id, []int64{1, 2, 1, 3}, 1)

	n, err := p.RemoveTrack(ctx, id, 1, 2)
	if err != nil {
		t.Fatalf("RemoveTrack failed: %v", err)
	}
	if n != 2 {
		t.Errorf("removed = %d, want 2", n)
	}

	ok, err := p.RemoveAt(ctx, id, 3, 3)
	if err != nil || !ok {
		t.Fatalf("RemoveAt = %v, %v", ok, err)
	}
	ok, _ = p.RemoveAt(ctx, id, 3, 3)
	if ok {
		t.Error("second RemoveAt at the same ord should find nothing")
	}

	ords, _ := ordering.Ords(ctx, db, ordering.PlaylistScope(id))
	if !reflect.DeepEqual(ords, []int{1}) {
		t.Errorf("ords = %v, want [1]", ords)
	}

	if err := p.Compact(ctx, id); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}
	assertDense(t, db, id)
}

func TestEntries_Reorder(t *testing.T) {
	db := setupTestDB(t)
	p := New(db)
	ctx := context.Background()

	id, _ := p.Create(ctx, "Reorder", 1)
	_ = p.AppendTracks(ctx, id, []int64{1, 2, 3}, 10)

	if err := p.Reorder(ctx, id, []int64{3, 1, 2, 4}, 20); err != nil {
		t.Fatalf("Reorder failed: %v", err)
	}
	if got, want := trackIDs(t, p, id), []int64{3, 1, 2, 4}; !reflect.DeepEqual(got, want) {
		t.Errorf("tracks = %v, want %v", got, want)
	}
	assertDense(t, db, id)

	entries, _ := p.Entries(ctx, id)
	for _, e := range entries {
		want := int64(10)
		if e.TrackID == 4 {
			want = 20
		}
		if e.AddedAt != want {
			t.Errorf("track %d added_at = %d, want %d", e.TrackID, e.AddedAt, want)
		}
	}
}

func TestEntries_Move(t *testing.T) {
	db := setupTestDB(t)
	p := New(db)
	ctx := context.Background()

	id, _ := p.Create(ctx, "Move", 1)
	_ = p.AppendTracks(ctx, id, []int64{1, 2, 3, 4, 5}, 1)

	moved, err := p.Move(ctx, id, []int{3, 2}, -1, 2)
	if err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if !reflect.DeepEqual(moved, []int{2, 1}) {
		t.Errorf("moved = %v, want [2 1]", moved)
	}
	if got, want := trackIDs(t, p, id), []int64{1, 3, 4, 2, 5}; !reflect.DeepEqual(got, want) {
		t.Errorf("tracks = %v, want %v", got, want)
	}
	assertDense(t, db, id)

	moved, err = p.Move(ctx, id, []int{0}, -1, 3)
	if err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if !reflect.DeepEqual(moved, []int{0}) {
		t.Errorf("out of bounds move should return input, got %v", moved)
	}
}

func TestEntries_DensityAcrossOperations(t *testing.T) {
	db := setupTestDB(t)
	p := New(db)
	ctx := context.Background()

	id, _ := p.Create(ctx, "Dense", 1)
	steps := []func() error{
		func() error { return p.AppendTracks(ctx, id, []int64{1, 2, 3}, 1) },
		func() error { return p.InsertTracks(ctx, id, 0, []int64{4, 5}, 2) },
		func() error { return p.InsertTracks(ctx, id, 3, []int64{6}, 3) },
		func() error { return p.Reorder(ctx, id, []int64{6, 5, 4, 3, 2, 1}, 4) },
		func() error { return p.AppendTracks(ctx, id, []int64{7}, 5) },
		func() error { _, err := p.Move(ctx, id, []int{6}, -6, 6); return err },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		assertDense(t, db, id)
	}

	n, _ := p.TrackCount(ctx, id)
	if n != 7 {
		t.Errorf("TrackCount = %d, want 7", n)
	}
}
