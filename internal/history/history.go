// Package history is the append-only log of playback starts.
package history

import (
	"context"

	"github.com/jmoiron/sqlx"

	dbutil "github.com/llehouerou/crate/internal/db"
)

// Entry is one playback start.
type Entry struct {
	ID            int64  `db:"id"`
	Source        string `db:"source"`
	SourceTrackID string `db:"source_track_id"`
	PlayedAt      int64  `db:"played_at"`
}

// History provides database operations for the play log.
type History struct {
	db *sqlx.DB
}

// New creates a new History instance.
func New(db *sqlx.DB) *History {
	return &History{db: db}
}

// Add records that a track started playing.
func (h *History) Add(ctx context.Context, source, sourceTrackID string, playedAt int64) (int64, error) {
	res, err := h.db.ExecContext(ctx, `
		INSERT INTO history_entries (source, source_track_id, played_at) VALUES (?, ?, ?)
	`, source, sourceTrackID, playedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Recent returns up to limit entries, most recent first.
func (h *History) Recent(ctx context.Context, limit int) ([]Entry, error) {
	var out []Entry
	err := h.db.SelectContext(ctx, &out, `
		SELECT id, source, source_track_id, played_at
		FROM history_entries
		ORDER BY played_at DESC, id DESC
		LIMIT ?
	`, limit)
	return out, err
}

// Since returns every entry played at or after at, most recent first.
func (h *History) Since(ctx context.Context, at int64) ([]Entry, error) {
	var out []Entry
	err := h.db.SelectContext(ctx, &out, `
		SELECT id, source, source_track_id, played_at
		FROM history_entries
		WHERE played_at >= ?
		ORDER BY played_at DESC, id DESC
	`, at)
	return out, err
}

// Prune deletes entries played strictly before olderThan.
func (h *History) Prune(ctx context.Context, olderThan int64) (int64, error) {
	return dbutil.Affected(ctx, h.db, `DELETE FROM history_entries WHERE played_at < ?`, olderThan)
}
