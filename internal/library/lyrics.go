package library

import (
	"context"

	"github.com/jmoiron/sqlx"

	dbutil "github.com/llehouerou/crate/internal/db"
	"github.com/llehouerou/crate/internal/search"
)

// Lyrics is the text one provider supplied for a track.
type Lyrics struct {
	Source        Source `db:"source"`
	SourceTrackID string `db:"source_track_id"`
	Provider      string `db:"provider"`
	Content       string `db:"content"`
	Synced        bool   `db:"synced"`
	UpdatedAt     int64  `db:"updated_at"`
}

// SetLyrics stores lyrics from one provider and reindexes the track they
// belong to, if it exists.
func (l *Library) SetLyrics(ctx context.Context, ly Lyrics) error {
	return dbutil.WithTx(ctx, l.db, func(tx *sqlx.Tx) error {
		if _, err := sqlx.NamedExecContext(ctx, tx, `
			INSERT INTO lyrics (source, source_track_id, provider, content, synced, updated_at)
			VALUES (:source, :source_track_id, :provider, :content, :synced, :updated_at)
			ON CONFLICT(source, source_track_id, provider) DO UPDATE SET
				content = excluded.content,
				synced = excluded.synced,
				updated_at = excluded.updated_at
		`, ly); err != nil {
			return err
		}
		return search.ReindexKey(ctx, tx, string(ly.Source), ly.SourceTrackID)
	})
}

// DeleteLyrics removes one provider's lyrics and reindexes the track.
func (l *Library) DeleteLyrics(ctx context.Context, source Source, sourceTrackID, provider string) error {
	return dbutil.WithTx(ctx, l.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM lyrics WHERE source = ? AND source_track_id = ? AND provider = ?
		`, source, sourceTrackID, provider); err != nil {
			return err
		}
		return search.ReindexKey(ctx, tx, string(source), sourceTrackID)
	})
}

// Lyrics returns every provider's lyrics for a track, sorted by provider.
// The first entry is the one search sees.
func (l *Library) Lyrics(ctx context.Context, source Source, sourceTrackID string) ([]Lyrics, error) {
	var out []Lyrics
	err := l.db.SelectContext(ctx, &out, `
		SELECT source, source_track_id, provider, content, synced, updated_at
		FROM lyrics WHERE source = ? AND source_track_id = ?
		ORDER BY provider
	`, source, sourceTrackID)
	return out, err
}
