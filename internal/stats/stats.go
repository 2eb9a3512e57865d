// Package stats keeps per-artist daily play counters.
package stats

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	dbutil "github.com/llehouerou/crate/internal/db"
)

// Day converts t to the YYYYMMDD integer used as the counter key, in t's
// location.
func Day(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

// DayTime is the inverse of Day: midnight of day in loc.
func DayTime(day int, loc *time.Location) time.Time {
	return time.Date(day/10000, time.Month(day/100%100), day%100, 0, 0, 0, 0, loc)
}

// ArtistPlays is the summed play count of one artist.
type ArtistPlays struct {
	ArtistID int64 `db:"artist_id"`
	Plays    int64 `db:"plays"`
}

// Stats provides database operations for listening statistics.
type Stats struct {
	db *sqlx.DB
}

// New creates a new Stats instance.
func New(db *sqlx.DB) *Stats {
	return &Stats{db: db}
}

// Increment adds count plays for an artist on a day. Concurrent increments
// add up; none is lost.
func (s *Stats) Increment(ctx context.Context, artistID int64, day int, count int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO listening_stats (artist_id, day, play_count) VALUES (?, ?, ?)
		ON CONFLICT(artist_id, day) DO UPDATE SET
			play_count = play_count + excluded.play_count
	`, artistID, day, count)
	return err
}

// PlayCount returns the plays recorded for an artist on a day.
func (s *Stats) PlayCount(ctx context.Context, artistID int64, day int) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `
		SELECT COALESCE(SUM(play_count), 0) FROM listening_stats WHERE artist_id = ? AND day = ?
	`, artistID, day)
	return n, err
}

// TopArtists returns up to limit artists by plays summed over days >=
// sinceDay. Ties go to the lower artist id.
func (s *Stats) TopArtists(ctx context.Context, sinceDay, limit int) ([]ArtistPlays, error) {
	var out []ArtistPlays
	err := s.db.SelectContext(ctx, &out, `
		SELECT artist_id, SUM(play_count) AS plays
		FROM listening_stats
		WHERE day >= ?
		GROUP BY artist_id
		ORDER BY plays DESC, artist_id ASC
		LIMIT ?
	`, sinceDay, limit)
	return out, err
}

// Prune deletes every counter strictly older than olderThanDay.
func (s *Stats) Prune(ctx context.Context, olderThanDay int) (int64, error) {
	return dbutil.Affected(ctx, s.db, `DELETE FROM listening_stats WHERE day < ?`, olderThanDay)
}
