// Package playlists stores user playlists and their ordered entries.
package playlists

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	dbutil "github.com/llehouerou/crate/internal/db"
)

var (
	ErrEmptyName = errors.New("playlist name is empty")
	ErrNotFound  = errors.New("playlist not found")
)

// Playlist represents playlist metadata (without entries).
type Playlist struct {
	ID           int64  `db:"id"`
	Name         string `db:"name"`
	Favorite     bool   `db:"favorite"`
	LastPlayedAt *int64 `db:"last_played_at"`
	CreatedAt    int64  `db:"created_at"`
	UpdatedAt    int64  `db:"updated_at"`
}

// Playlists provides database operations for playlists.
type Playlists struct {
	db *sqlx.DB
}

// New creates a new Playlists instance.
func New(db *sqlx.DB) *Playlists {
	return &Playlists{db: db}
}

// Create creates a new empty playlist.
func (p *Playlists) Create(ctx context.Context, name string, at int64) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, ErrEmptyName
	}
	result, err := p.db.ExecContext(ctx, `
		INSERT INTO playlists (name, created_at, updated_at) VALUES (?, ?, ?)
	`, name, at, at)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// Rename renames a playlist.
func (p *Playlists) Rename(ctx context.Context, id int64, name string, at int64) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	return p.update(ctx, id, `UPDATE playlists SET name = ?, updated_at = ? WHERE id = ?`, name, at, id)
}

// SetFavorite sets the favorite flag of a playlist.
func (p *Playlists) SetFavorite(ctx context.Context, id int64, favorite bool, at int64) error {
	return p.update(ctx, id, `UPDATE playlists SET favorite = ?, updated_at = ? WHERE id = ?`, favorite, at, id)
}

// MarkPlayed records that a playlist started playing at the given time.
func (p *Playlists) MarkPlayed(ctx context.Context, id int64, at int64) error {
	return p.update(ctx, id, `UPDATE playlists SET last_played_at = ? WHERE id = ?`, at, id)
}

func (p *Playlists) update(ctx context.Context, id int64, query string, args ...any) error {
	n, err := dbutil.Affected(ctx, p.db, query, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete deletes a playlist, its entries and its recents row.
func (p *Playlists) Delete(ctx context.Context, id int64) error {
	return dbutil.WithTx(ctx, p.db, func(tx *sqlx.Tx) error {
		for _, q := range []string{
			`DELETE FROM playlist_entries WHERE playlist_id = ?`,
			`DELETE FROM recent_items WHERE kind = 'playlist' AND entity_id = ?`,
			`DELETE FROM playlists WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns a playlist by id, or nil if it does not exist.
func (p *Playlists) Get(ctx context.Context, id int64) (*Playlist, error) {
	var pl Playlist
	err := p.db.GetContext(ctx, &pl, `
		SELECT id, name, favorite, last_played_at, created_at, updated_at
		FROM playlists WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // not found is not an error
	}
	if err != nil {
		return nil, err
	}
	return &pl, nil
}

// List returns all playlists sorted by name.
func (p *Playlists) List(ctx context.Context) ([]Playlist, error) {
	var out []Playlist
	err := p.db.SelectContext(ctx, &out, `
		SELECT id, name, favorite, last_played_at, created_at, updated_at
		FROM playlists
		ORDER BY name COLLATE NOCASE, id
	`)
	return out, err
}

func exists(ctx context.Context, q dbutil.Querier, id int64) error {
	ok, err := dbutil.Exists(ctx, q, `SELECT 1 FROM playlists WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func touch(ctx context.Context, q dbutil.Querier, id, at int64) error {
	_, err := q.ExecContext(ctx, `UPDATE playlists SET updated_at = ? WHERE id = ?`, at, id)
	return err
}
