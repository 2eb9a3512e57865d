// Package queue stores the global play queue: one ordered list of track
// references addressed by composite key.
package queue

import (
	"context"

	"github.com/jmoiron/sqlx"

	dbutil "github.com/llehouerou/crate/internal/db"
	"github.com/llehouerou/crate/internal/ordering"
)

// Ref addresses a track by its composite key.
type Ref struct {
	Source        string `db:"source"`
	SourceTrackID string `db:"source_track_id"`
}

// Item is one queue position.
type Item struct {
	ID      int64 `db:"id"`
	Ord     int   `db:"ord"`
	AddedAt int64 `db:"added_at"`
	Ref
}

// Queue provides database operations for the play queue.
type Queue struct {
	db *sqlx.DB
}

// New creates a new Queue instance.
func New(db *sqlx.DB) *Queue {
	return &Queue{db: db}
}

// Items returns the queue in order.
func (q *Queue) Items(ctx context.Context) ([]Item, error) {
	var items []Item
	err := q.db.SelectContext(ctx, &items, `
		SELECT id, source, source_track_id, ord, added_at FROM queue_items ORDER BY ord
	`)
	return items, err
}

// Count returns the number of queued items.
func (q *Queue) Count(ctx context.Context) (int, error) {
	return ordering.Count(ctx, q.db, ordering.QueueScope)
}

// Append adds refs to the end of the queue.
func (q *Queue) Append(ctx context.Context, refs []Ref, at int64) error {
	if len(refs) == 0 {
		return nil
	}
	return dbutil.WithTx(ctx, q.db, func(tx *sqlx.Tx) error {
		start, err := ordering.Next(ctx, tx, ordering.QueueScope)
		if err != nil {
			return err
		}
		return insertRun(ctx, tx, start, refs, at)
	})
}

// Insert inserts refs at pos in the given order. pos is clamped to the
// queue bounds.
func (q *Queue) Insert(ctx context.Context, pos int, refs []Ref, at int64) error {
	if len(refs) == 0 {
		return nil
	}
	return dbutil.WithTx(ctx, q.db, func(tx *sqlx.Tx) error {
		start, err := ordering.MakeRoom(ctx, tx, ordering.QueueScope, pos, len(refs))
		if err != nil {
			return err
		}
		return insertRun(ctx, tx, start, refs, at)
	})
}

func insertRun(ctx context.Context, tx *sqlx.Tx, start int, refs []Ref, at int64) error {
	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO queue_items (source, source_track_id, ord, added_at) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range refs {
		if _, err := stmt.ExecContext(ctx, r.Source, r.SourceTrackID, start+i, at); err != nil {
			return err
		}
	}
	return nil
}

// RemoveTrack removes every item for ref without renumbering.
func (q *Queue) RemoveTrack(ctx context.Context, ref Ref) (int64, error) {
	return dbutil.Affected(ctx, q.db, `
		DELETE FROM queue_items WHERE source = ? AND source_track_id = ?
	`, ref.Source, ref.SourceTrackID)
}

// RemoveAt removes the item at ord without renumbering.
func (q *Queue) RemoveAt(ctx context.Context, ord int) (bool, error) {
	n, err := dbutil.Affected(ctx, q.db, `DELETE FROM queue_items WHERE ord = ?`, ord)
	return n > 0, err
}

// Reorder replaces the whole queue with refs in that order.
func (q *Queue) Reorder(ctx context.Context, refs []Ref, at int64) error {
	return dbutil.WithTx(ctx, q.db, func(tx *sqlx.Tx) error {
		if _, err := ordering.Clear(ctx, tx, ordering.QueueScope); err != nil {
			return err
		}
		next := ordering.Reorder(refs)
		return insertRun(ctx, tx, 0, ordering.Items(next), at)
	})
}

// Clear empties the queue.
func (q *Queue) Clear(ctx context.Context) error {
	_, err := ordering.Clear(ctx, q.db, ordering.QueueScope)
	return err
}

// Compact renumbers a queue left with gaps by removals.
func (q *Queue) Compact(ctx context.Context) error {
	return dbutil.WithTx(ctx, q.db, func(tx *sqlx.Tx) error {
		_, err := ordering.Compact(ctx, tx, ordering.QueueScope)
		return err
	})
}
