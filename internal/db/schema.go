package db

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// CurrentSchemaVersion is recorded in schema_version on first open.
const CurrentSchemaVersion = 1

// Referential integrity is deliberately not declared: dependent rows are
// cleaned up by the delete cascades and the repair pass.
const schema = `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS artists (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS albums (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		artist_id INTEGER NOT NULL DEFAULT 0,
		year INTEGER,
		UNIQUE(title, artist_id)
	);

	CREATE TABLE IF NOT EXISTS tracks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		source_track_id TEXT NOT NULL,
		title TEXT NOT NULL,
		duration REAL NOT NULL DEFAULT 0,
		file_ref TEXT,
		content_hash TEXT,
		file_size INTEGER,
		track_number INTEGER,
		disc_number INTEGER,
		missing INTEGER NOT NULL DEFAULT 0,
		missing_reason TEXT,
		favorite INTEGER NOT NULL DEFAULT 0,
		album_id INTEGER,
		artist_id INTEGER,
		album_artist_id INTEGER,
		artwork_id INTEGER,
		genre TEXT,
		release_year INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE(source, source_track_id)
	);

	CREATE INDEX IF NOT EXISTS idx_tracks_artist ON tracks(artist_id);
	CREATE INDEX IF NOT EXISTS idx_tracks_album ON tracks(album_id);
	CREATE INDEX IF NOT EXISTS idx_tracks_file_ref ON tracks(file_ref);

	CREATE TABLE IF NOT EXISTS metadata_overrides (
		track_id INTEGER PRIMARY KEY,
		title TEXT,
		artist_name TEXT,
		album_name TEXT,
		genre TEXT,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS lyrics (
		source TEXT NOT NULL,
		source_track_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		content TEXT NOT NULL,
		synced INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (source, source_track_id, provider)
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS track_search USING fts5(
		title,
		artist,
		album,
		genre,
		lyrics,
		tokenize='unicode61 remove_diacritics 2'
	);

	CREATE TABLE IF NOT EXISTS playlists (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		favorite INTEGER NOT NULL DEFAULT 0,
		last_played_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS playlist_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		playlist_id INTEGER NOT NULL,
		track_id INTEGER NOT NULL,
		ord INTEGER NOT NULL,
		added_at INTEGER NOT NULL,
		UNIQUE(playlist_id, ord)
	);

	CREATE INDEX IF NOT EXISTS idx_playlist_entries_track ON playlist_entries(track_id);

	CREATE TABLE IF NOT EXISTS queue_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		source_track_id TEXT NOT NULL,
		ord INTEGER NOT NULL UNIQUE,
		added_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS recent_items (
		kind TEXT NOT NULL,
		entity_id INTEGER NOT NULL,
		last_opened_at INTEGER NOT NULL,
		PRIMARY KEY (kind, entity_id)
	);

	CREATE INDEX IF NOT EXISTS idx_recent_items_opened ON recent_items(last_opened_at DESC);

	CREATE TABLE IF NOT EXISTS history_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		source_track_id TEXT NOT NULL,
		played_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_played_at ON history_entries(played_at DESC);

	CREATE TABLE IF NOT EXISTS listening_stats (
		artist_id INTEGER NOT NULL,
		day INTEGER NOT NULL,
		play_count INTEGER NOT NULL,
		PRIMARY KEY (artist_id, day)
	);

	CREATE TABLE IF NOT EXISTS playback_positions (
		source TEXT NOT NULL,
		source_track_id TEXT NOT NULL,
		position REAL NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (source, source_track_id)
	);

	CREATE TABLE IF NOT EXISTS playback_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		source TEXT NOT NULL,
		source_track_id TEXT NOT NULL,
		queue_index INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS import_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id TEXT NOT NULL DEFAULT '',
		original_uri TEXT NOT NULL,
		mode TEXT NOT NULL,
		state TEXT NOT NULL,
		track_id INTEGER,
		error TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_import_records_track ON import_records(track_id);
	CREATE INDEX IF NOT EXISTS idx_import_records_batch ON import_records(batch_id);
`

func initSchema(db *sqlx.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return err
	}

	_, err := db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, CurrentSchemaVersion)
	return err
}

// SchemaVersion returns the highest recorded schema version.
func SchemaVersion(db *sqlx.DB) (int, error) {
	var v sql.NullInt64
	if err := db.Get(&v, `SELECT MAX(version) FROM schema_version`); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(NullInt64Value(v)), nil
}
