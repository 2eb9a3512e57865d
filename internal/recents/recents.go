// Package recents tracks recently opened albums, playlists and artists.
//
// A (kind, id) pair has at most one row: touching it again replaces the row.
// Albums and playlists also share a combined cap, so opening many of them
// pushes the oldest of either kind out.
package recents

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	dbutil "github.com/llehouerou/crate/internal/db"
)

// DefaultCap is the combined album+playlist cap used when none is given.
const DefaultCap = 50

var ErrUnknownKind = errors.New("unknown recent item kind")

// Kind is the type of entity a recent item points at.
type Kind string

const (
	KindAlbum    Kind = "album"
	KindPlaylist Kind = "playlist"
	KindArtist   Kind = "artist"
)

// Target maps a kind to the table holding the entities it refers to.
type Target struct {
	Kind  Kind
	Table string
}

var targets = []Target{
	{Kind: KindAlbum, Table: "albums"},
	{Kind: KindPlaylist, Table: "playlists"},
	{Kind: KindArtist, Table: "artists"},
}

// Targets returns the table of every known kind.
func Targets() []Target {
	out := make([]Target, len(targets))
	copy(out, targets)
	return out
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, t := range targets {
		if t.Kind == k {
			return true
		}
	}
	return false
}

// combined reports whether k counts toward the combined cap.
func (k Kind) combined() bool {
	return k == KindAlbum || k == KindPlaylist
}

// Item is one recently opened entity.
type Item struct {
	Kind         Kind  `db:"kind"`
	ID           int64 `db:"entity_id"`
	LastOpenedAt int64 `db:"last_opened_at"`
}

// Recents provides database operations for recent items.
type Recents struct {
	db  *sqlx.DB
	cap int
}

// New creates a Recents instance with the given combined cap. A cap <= 0
// means DefaultCap.
func New(db *sqlx.DB, combinedCap int) *Recents {
	if combinedCap <= 0 {
		combinedCap = DefaultCap
	}
	return &Recents{db: db, cap: combinedCap}
}

// Touch records that an entity was opened at the given time.
func (r *Recents) Touch(ctx context.Context, kind Kind, id int64, at int64) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return dbutil.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM recent_items WHERE kind = ? AND entity_id = ?
		`, kind, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO recent_items (kind, entity_id, last_opened_at) VALUES (?, ?, ?)
		`, kind, id, at); err != nil {
			return err
		}
		if !kind.combined() {
			return nil
		}
		_, err := tx.ExecContext(ctx, `
			DELETE FROM recent_items
			WHERE kind IN ('album', 'playlist') AND rowid NOT IN (
				SELECT rowid FROM recent_items
				WHERE kind IN ('album', 'playlist')
				ORDER BY last_opened_at DESC, rowid DESC
				LIMIT ?
			)
		`, r.cap)
		return err
	})
}

// Trim keeps only the keep most recent items of one kind and returns how
// many were removed.
func (r *Recents) Trim(ctx context.Context, kind Kind, keep int) (int64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return dbutil.Affected(ctx, r.db, `
		DELETE FROM recent_items
		WHERE kind = ? AND rowid NOT IN (
			SELECT rowid FROM recent_items
			WHERE kind = ?
			ORDER BY last_opened_at DESC, rowid DESC
			LIMIT ?
		)
	`, kind, kind, keep)
}

// List returns up to limit items of one kind, most recent first.
func (r *Recents) List(ctx context.Context, kind Kind, limit int) ([]Item, error) {
	var out []Item
	err := r.db.SelectContext(ctx, &out, `
		SELECT kind, entity_id, last_opened_at FROM recent_items
		WHERE kind = ?
		ORDER BY last_opened_at DESC, rowid DESC
		LIMIT ?
	`, kind, limit)
	return out, err
}

// Combined returns up to limit albums and playlists mixed, most recent
// first.
func (r *Recents) Combined(ctx context.Context, limit int) ([]Item, error) {
	var out []Item
	err := r.db.SelectContext(ctx, &out, `
		SELECT kind, entity_id, last_opened_at FROM recent_items
		WHERE kind IN ('album', 'playlist')
		ORDER BY last_opened_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	return out, err
}

// Remove forgets one item.
func (r *Recents) Remove(ctx context.Context, kind Kind, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM recent_items WHERE kind = ? AND entity_id = ?`, kind, id)
	return err
}
