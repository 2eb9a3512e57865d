// Package store opens the library database and wires every repository
// over it. It also owns the operations that span several repositories or
// leave the database: track deletion with file removal, and maintenance.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/llehouerou/crate/internal/config"
	dbutil "github.com/llehouerou/crate/internal/db"
	"github.com/llehouerou/crate/internal/history"
	"github.com/llehouerou/crate/internal/imports"
	"github.com/llehouerou/crate/internal/library"
	"github.com/llehouerou/crate/internal/logger"
	"github.com/llehouerou/crate/internal/playback"
	"github.com/llehouerou/crate/internal/playlists"
	"github.com/llehouerou/crate/internal/queue"
	"github.com/llehouerou/crate/internal/recents"
	"github.com/llehouerou/crate/internal/repair"
	"github.com/llehouerou/crate/internal/search"
	"github.com/llehouerou/crate/internal/stats"
)

// Options are the settings the store needs beyond the database itself.
type Options struct {
	LibraryDir         string
	RecentsCap         int
	StatsRetentionDays int
}

// OptionsFrom extracts store options from a loaded config.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		LibraryDir:         cfg.LibraryDir,
		RecentsCap:         cfg.RecentsCap,
		StatsRetentionDays: cfg.StatsRetentionDays,
	}
}

type Store struct {
	db   *sqlx.DB
	opts Options
	log  *logger.Logger

	Library   *library.Library
	Playlists *playlists.Playlists
	Queue     *queue.Queue
	Playback  *playback.Store
	Positions *playback.Saver
	History   *history.History
	Stats     *stats.Stats
	Recents   *recents.Recents
	Imports   *imports.Imports
}

// Open opens the database named by cfg and makes sure the search index
// covers every track.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := dbutil.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	s := New(db, OptionsFrom(cfg), log)

	rebuilt, err := search.Ensure(ctx, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure search index: %w", err)
	}
	if rebuilt {
		s.log.Info("search index rebuilt")
	}
	s.log.WithField("path", cfg.DBPath).Debug("database opened")
	return s, nil
}

// New wires the repositories over an already opened database.
func New(db *sqlx.DB, opts Options, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Discard()
	}
	if opts.StatsRetentionDays <= 0 {
		opts.StatsRetentionDays = config.DefaultStatsRetentionDays
	}
	log = log.WithComponent("store")

	return &Store{
		db:        db,
		opts:      opts,
		log:       log,
		Library:   library.New(db),
		Playlists: playlists.New(db),
		Queue:     queue.New(db),
		Playback:  playback.New(db),
		Positions: playback.NewSaver(db, playback.DefaultSaveDelay, func(err error) {
			log.WithError(err).Warn("save playback position")
		}),
		History: history.New(db),
		Stats:   stats.New(db),
		Recents: recents.New(db, opts.RecentsCap),
		Imports: imports.New(db),
	}
}

// DB exposes the underlying database.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close flushes pending position saves and closes the database.
func (s *Store) Close() error {
	flushErr := s.Positions.Close(context.Background())
	return errors.Join(flushErr, s.db.Close())
}

// DeleteResult reports what DeleteTrack did.
type DeleteResult struct {
	Track       library.Track
	FileRemoved bool
}

// DeleteTrack removes a track and its dependents. With removeFile, the
// track's file is also deleted from disk after the commit, but only when it
// was imported by copy into the library directory. Returns nil when the
// track does not exist.
func (s *Store) DeleteTrack(ctx context.Context, id int64, removeFile bool) (*DeleteResult, error) {
	d, err := s.Library.DeleteTrack(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, nil //nolint:nilnil // nil result means the track did not exist
	}

	res := &DeleteResult{Track: d.Track}
	log := s.log.WithField("track_id", id)

	if removeFile {
		removed, err := s.removeFile(*d)
		if err != nil {
			log.WithError(err).Warn("track deleted but file removal failed")
			return res, err
		}
		res.FileRemoved = removed
	}

	log.WithField("file_removed", res.FileRemoved).Info("track deleted")
	return res, nil
}

// DeleteTracksUnderPath removes every track stored under dir. Files are
// left alone.
func (s *Store) DeleteTracksUnderPath(ctx context.Context, dir string) (int, error) {
	deleted, err := s.Library.DeleteTracksUnderPath(ctx, dir)
	if err != nil {
		return 0, err
	}
	s.log.WithFields(logrus.Fields{"path": dir, "tracks": len(deleted)}).Info("tracks removed under path")
	return len(deleted), nil
}

func (s *Store) removeFile(d library.Deleted) (bool, error) {
	if d.Track.FileRef == nil {
		return false, nil
	}
	path := *d.Track.FileRef
	if !imports.FileDeletable(d.Imports, path, s.opts.LibraryDir) {
		s.log.WithField("path", path).Debug("file kept: not a library copy")
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("remove %s: %w", path, err)
	}
	s.log.WithField("path", path).Info("file removed")
	return true, nil
}

// Search returns the tracks matching query, best match first.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]library.Track, error) {
	ids, err := search.Search(ctx, s.db, query, limit)
	if err != nil {
		return nil, err
	}
	return s.Library.Tracks(ctx, ids)
}

// Reindex recomputes every search row.
func (s *Store) Reindex(ctx context.Context) error {
	if err := search.Rebuild(ctx, s.db); err != nil {
		return err
	}
	s.log.Info("search index rebuilt")
	return nil
}

// Repair runs one consistency pass and logs what it removed.
func (s *Store) Repair(ctx context.Context) (repair.Summary, error) {
	summary, err := repair.Run(ctx, s.db)
	if err != nil {
		s.log.WithError(err).Error("repair failed, no changes made")
		return summary, err
	}
	fields := logrus.Fields{"removed": summary.Total(), "renumbered": summary.Renumbered}
	for _, c := range summary.Categories() {
		if c.Removed > 0 {
			fields[c.Name] = c.Removed
		}
	}
	s.log.WithFields(fields).Info("repair finished")
	return summary, nil
}

// MaintenanceResult reports a Maintain run.
type MaintenanceResult struct {
	StatsPruned int64
	Repair      repair.Summary
}

// StatsCutoff returns the first day kept by maintenance when run on today.
func (s *Store) StatsCutoff(today time.Time) int {
	return stats.Day(today.AddDate(0, 0, -s.opts.StatsRetentionDays))
}

// Maintain prunes listening stats older than the retention window, then
// runs a repair pass.
func (s *Store) Maintain(ctx context.Context, today time.Time) (MaintenanceResult, error) {
	var res MaintenanceResult

	cutoff := s.StatsCutoff(today)
	pruned, err := s.Stats.Prune(ctx, cutoff)
	if err != nil {
		return res, fmt.Errorf("prune stats: %w", err)
	}
	res.StatsPruned = pruned
	s.log.WithFields(logrus.Fields{"cutoff": cutoff, "pruned": pruned}).Info("listening stats pruned")

	summary, err := s.Repair(ctx)
	if err != nil {
		return res, fmt.Errorf("repair: %w", err)
	}
	res.Repair = summary
	return res, nil
}
