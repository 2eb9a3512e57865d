// Package repair deletes rows that point at entities which no longer exist.
//
// The schema declares no foreign keys, so this pass is the safety net
// behind the explicit delete cascades. It runs in one transaction: either
// every category is cleaned or nothing changes.
package repair

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	dbutil "github.com/llehouerou/crate/internal/db"
	"github.com/llehouerou/crate/internal/ordering"
	"github.com/llehouerou/crate/internal/recents"
)

// Summary counts the rows removed per category.
type Summary struct {
	QueueItems        int64
	HistoryEntries    int64
	PlaybackState     int64
	PlaybackPositions int64
	Lyrics            int64
	Overrides         int64
	PlaylistEntries   int64
	ImportRecords     int64
	RecentItems       int64
	ListeningStats    int64
	SearchRows        int64

	// Renumbered counts the playlists and queue compacted after removals.
	// It is not part of Total.
	Renumbered int64
}

// Total returns the number of rows removed across all categories.
func (s Summary) Total() int64 {
	return s.QueueItems + s.HistoryEntries + s.PlaybackState + s.PlaybackPositions +
		s.Lyrics + s.Overrides + s.PlaylistEntries + s.ImportRecords +
		s.RecentItems + s.ListeningStats + s.SearchRows
}

// Categories returns the counts with display names, in a stable order.
func (s Summary) Categories() []Category {
	return []Category{
		{"queue items", s.QueueItems},
		{"history entries", s.HistoryEntries},
		{"playback state", s.PlaybackState},
		{"playback positions", s.PlaybackPositions},
		{"lyrics", s.Lyrics},
		{"metadata overrides", s.Overrides},
		{"playlist entries", s.PlaylistEntries},
		{"import records", s.ImportRecords},
		{"recent items", s.RecentItems},
		{"listening stats", s.ListeningStats},
		{"search rows", s.SearchRows},
	}
}

// Category is one line of a Summary.
type Category struct {
	Name    string
	Removed int64
}

// noTrackByKey matches rows of alias x whose composite key has no track.
const noTrackByKey = `NOT EXISTS (
	SELECT 1 FROM tracks t WHERE t.source = x.source AND t.source_track_id = x.source_track_id
)`

type check struct {
	count *int64
	query string
}

// Run performs one repair pass. On failure nothing is changed and the
// returned Summary is zero.
func Run(ctx context.Context, db *sqlx.DB) (Summary, error) {
	var s Summary
	err := dbutil.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		var err error
		s, err = run(ctx, tx)
		return err
	})
	if err != nil {
		return Summary{}, err
	}
	return s, nil
}

func run(ctx context.Context, tx *sqlx.Tx) (Summary, error) {
	var s Summary

	// Playlists losing entries are renumbered afterwards.
	var touched []int64
	if err := tx.SelectContext(ctx, &touched, `
		SELECT DISTINCT playlist_id FROM playlist_entries x
		WHERE NOT EXISTS (SELECT 1 FROM tracks t WHERE t.id = x.track_id)
		   OR NOT EXISTS (SELECT 1 FROM playlists p WHERE p.id = x.playlist_id)
	`); err != nil {
		return Summary{}, err
	}

	checks := []check{
		{&s.QueueItems, `DELETE FROM queue_items AS x WHERE ` + noTrackByKey},
		{&s.HistoryEntries, `DELETE FROM history_entries AS x WHERE ` + noTrackByKey},
		{&s.PlaybackState, `DELETE FROM playback_state AS x WHERE ` + noTrackByKey},
		{&s.PlaybackPositions, `DELETE FROM playback_positions AS x WHERE ` + noTrackByKey},
		{&s.Lyrics, `DELETE FROM lyrics AS x WHERE ` + noTrackByKey},
		{&s.Overrides, `
			DELETE FROM metadata_overrides AS x
			WHERE NOT EXISTS (SELECT 1 FROM tracks t WHERE t.id = x.track_id)`},
		{&s.PlaylistEntries, `
			DELETE FROM playlist_entries AS x
			WHERE NOT EXISTS (SELECT 1 FROM tracks t WHERE t.id = x.track_id)
			   OR NOT EXISTS (SELECT 1 FROM playlists p WHERE p.id = x.playlist_id)`},
		{&s.ImportRecords, `
			DELETE FROM import_records AS x
			WHERE x.track_id IS NOT NULL
			  AND NOT EXISTS (SELECT 1 FROM tracks t WHERE t.id = x.track_id)`},
		{&s.ListeningStats, `
			DELETE FROM listening_stats AS x
			WHERE NOT EXISTS (SELECT 1 FROM artists a WHERE a.id = x.artist_id)`},
		{&s.SearchRows, `
			DELETE FROM track_search
			WHERE rowid NOT IN (SELECT id FROM tracks)`},
	}
	for _, c := range checks {
		n, err := dbutil.Affected(ctx, tx, c.query)
		if err != nil {
			return Summary{}, err
		}
		*c.count += n
	}

	for _, target := range recents.Targets() {
		n, err := dbutil.Affected(ctx, tx, fmt.Sprintf(`
			DELETE FROM recent_items
			WHERE kind = ? AND entity_id NOT IN (SELECT id FROM %s)
		`, target.Table), target.Kind)
		if err != nil {
			return Summary{}, fmt.Errorf("repair %s recents: %w", target.Kind, err)
		}
		s.RecentItems += n
	}

	if s.QueueItems > 0 {
		if err := renumber(ctx, tx, ordering.QueueScope, &s); err != nil {
			return Summary{}, err
		}
	}
	for _, id := range touched {
		if err := renumber(ctx, tx, ordering.PlaylistScope(id), &s); err != nil {
			return Summary{}, err
		}
	}
	return s, nil
}

func renumber(ctx context.Context, tx *sqlx.Tx, scope ordering.Scope, s *Summary) error {
	moved, err := ordering.Compact(ctx, tx, scope)
	if err != nil {
		return err
	}
	if moved > 0 {
		s.Renumbered++
	}
	return nil
}
