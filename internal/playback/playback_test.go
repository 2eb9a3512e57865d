package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbutil "github.com/llehouerou/crate/internal/db"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := dbutil.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPosition_UpsertGetDelete(t *testing.T) {
	s := New(setupTestDB(t))
	ctx := context.Background()

	got, err := s.Position(ctx, "local", "a")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.SavePosition(ctx, Position{Source: "local", SourceTrackID: "a", Seconds: 10, UpdatedAt: 1}))
	require.NoError(t, s.SavePosition(ctx, Position{Source: "local", SourceTrackID: "a", Seconds: 42.5, UpdatedAt: 2}))

	got, err = s.Position(ctx, "local", "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, 42.5, got.Seconds, 1e-9)
	assert.Equal(t, int64(2), got.UpdatedAt)

	require.NoError(t, s.DeletePosition(ctx, "local", "a"))
	got, err = s.Position(ctx, "local", "a")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestState_Singleton(t *testing.T) {
	db := setupTestDB(t)
	s := New(db)
	ctx := context.Background()

	got, err := s.State(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveState(ctx, State{
			Source:        "local",
			SourceTrackID: "t",
			QueueIndex:    i,
			UpdatedAt:     int64(100 + i),
		}))
	}

	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM playback_state`))
	assert.Equal(t, 1, n)

	got, err = s.State(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, State{Source: "local", SourceTrackID: "t", QueueIndex: 4, UpdatedAt: 104}, *got)

	require.NoError(t, s.ClearState(ctx))
	got, err = s.State(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestState_RejectsSecondRow(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.Exec(`INSERT INTO playback_state (id, source, source_track_id, queue_index, updated_at) VALUES (2, 'local', 'x', 0, 0)`)
	require.Error(t, err)
}

func TestSaver_CoalescesAndFlushes(t *testing.T) {
	db := setupTestDB(t)
	s := New(db)
	ctx := context.Background()

	saver := NewSaver(db, time.Hour, nil)
	for i := 0; i < 10; i++ {
		saver.Save(Position{Source: "local", SourceTrackID: "a", Seconds: float64(i), UpdatedAt: int64(i)})
	}
	saver.Save(Position{Source: "local", SourceTrackID: "b", Seconds: 3, UpdatedAt: 1})

	got, err := s.Position(ctx, "local", "a")
	require.NoError(t, err)
	assert.Nil(t, got, "nothing written before the delay")

	require.NoError(t, saver.Close(ctx))

	got, err = s.Position(ctx, "local", "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, 9.0, got.Seconds, 1e-9)

	got, err = s.Position(ctx, "local", "b")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestSaver_WritesAfterDelay(t *testing.T) {
	db := setupTestDB(t)
	s := New(db)
	ctx := context.Background()

	saver := NewSaver(db, 10*time.Millisecond, nil)
	saver.Save(Position{Source: "local", SourceTrackID: "a", Seconds: 7, UpdatedAt: 1})

	require.Eventually(t, func() bool {
		got, err := s.Position(ctx, "local", "a")
		return err == nil && got != nil
	}, time.Second, 5*time.Millisecond)
}

func TestSaver_ReportsBackgroundErrors(t *testing.T) {
	db := setupTestDB(t)

	var mu sync.Mutex
	var reported error
	saver := NewSaver(db, 5*time.Millisecond, func(err error) {
		mu.Lock()
		reported = err
		mu.Unlock()
	})
	require.NoError(t, db.Close())

	saver.Save(Position{Source: "local", SourceTrackID: "a", Seconds: 1, UpdatedAt: 1})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reported != nil
	}, time.Second, 5*time.Millisecond)
}

func TestSaver_CloseWaitsForRunningFlush(t *testing.T) {
	db := setupTestDB(t)
	s := New(db)
	ctx := context.Background()

	saver := NewSaver(db, time.Hour, nil)
	saver.Save(Position{Source: "local", SourceTrackID: "a", Seconds: 4, UpdatedAt: 1})

	// Stand in for a background flush that is mid-write.
	saver.flushMu.Lock()
	done := make(chan error, 1)
	go func() { done <- saver.Close(ctx) }()

	select {
	case <-done:
		t.Fatal("Close returned while a flush was still running")
	case <-time.After(20 * time.Millisecond):
	}

	saver.flushMu.Unlock()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}

	got, err := s.Position(ctx, "local", "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, 4.0, got.Seconds, 1e-9)
}
