// Package imports records the provenance of every imported file and drives
// its lifecycle:
//
//	referenced -> copied | failed
//	copied     -> deleted_original | failed
//
// deleted_original and failed are terminal.
package imports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	dbutil "github.com/llehouerou/crate/internal/db"
)

var (
	ErrInvalidTransition   = errors.New("invalid import state transition")
	ErrMissingErrorMessage = errors.New("failed import requires an error message")
	ErrUnknownMode         = errors.New("unknown import mode")
	ErrNotFound            = errors.New("import record not found")
)

// Mode is how a file was brought into the library.
type Mode string

const (
	ModeReference      Mode = "reference"
	ModeCopy           Mode = "copy"
	ModeCopyThenDelete Mode = "copy_then_delete"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeReference, ModeCopy, ModeCopyThenDelete:
		return true
	}
	return false
}

// CopyBased reports whether the library owns a copy of the file.
func (m Mode) CopyBased() bool {
	return m == ModeCopy || m == ModeCopyThenDelete
}

// State is the lifecycle state of an import record.
type State string

const (
	StateReferenced      State = "referenced"
	StateCopied          State = "copied"
	StateDeletedOriginal State = "deleted_original"
	StateFailed          State = "failed"
)

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s == StateDeletedOriginal || s == StateFailed
}

// InitialState returns the state a new record of mode m starts in.
func InitialState(m Mode) (State, error) {
	switch m {
	case ModeReference:
		return StateReferenced, nil
	case ModeCopy, ModeCopyThenDelete:
		return StateCopied, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, m)
}

// CanTransition reports whether a record of mode m may move from one state
// to another. Only copy_then_delete imports ever delete their original.
func CanTransition(m Mode, from, to State) bool {
	switch from {
	case StateReferenced:
		return to == StateCopied || to == StateFailed
	case StateCopied:
		if to == StateDeletedOriginal {
			return m == ModeCopyThenDelete
		}
		return to == StateFailed
	}
	return false
}

// Record is one import attempt.
type Record struct {
	ID          int64   `db:"id"`
	BatchID     string  `db:"batch_id"`
	OriginalURI string  `db:"original_uri"`
	Mode        Mode    `db:"mode"`
	State       State   `db:"state"`
	TrackID     *int64  `db:"track_id"`
	Error       *string `db:"error"`
	CreatedAt   int64   `db:"created_at"`
	UpdatedAt   int64   `db:"updated_at"`
}

const recordColumns = `id, batch_id, original_uri, mode, state, track_id, error, created_at, updated_at`

// NewBatchID returns an identifier grouping the records of one import run.
func NewBatchID() string {
	return uuid.NewString()
}

// Imports provides database operations for import records.
type Imports struct {
	db *sqlx.DB
}

// New creates a new Imports instance.
func New(db *sqlx.DB) *Imports {
	return &Imports{db: db}
}

// Create inserts a record in the initial state for its mode.
func (i *Imports) Create(ctx context.Context, batchID, originalURI string, mode Mode, at int64) (*Record, error) {
	state, err := InitialState(mode)
	if err != nil {
		return nil, err
	}
	res, err := i.db.ExecContext(ctx, `
		INSERT INTO import_records (batch_id, original_uri, mode, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, batchID, originalURI, mode, state, at, at)
	if err != nil {
		return nil, fmt.Errorf("insert import record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Record{
		ID:          id,
		BatchID:     batchID,
		OriginalURI: originalURI,
		Mode:        mode,
		State:       state,
		CreatedAt:   at,
		UpdatedAt:   at,
	}, nil
}

// Transition moves a record to a new state. Moving to failed requires a
// non-empty errMsg; other transitions clear any previous error.
func (i *Imports) Transition(ctx context.Context, id int64, to State, errMsg string, at int64) error {
	if to == StateFailed && strings.TrimSpace(errMsg) == "" {
		return ErrMissingErrorMessage
	}
	return dbutil.WithTx(ctx, i.db, func(tx *sqlx.Tx) error {
		r, err := Get(ctx, tx, id)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		if !CanTransition(r.Mode, r.State, to) {
			return fmt.Errorf("%w: %s -> %s (mode %s)", ErrInvalidTransition, r.State, to, r.Mode)
		}

		var msg *string
		if to == StateFailed {
			msg = &errMsg
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE import_records SET state = ?, error = ?, updated_at = ? WHERE id = ?
		`, to, msg, at, id)
		return err
	})
}

// LinkTrack attaches the library track produced by an import.
func (i *Imports) LinkTrack(ctx context.Context, id, trackID, at int64) error {
	n, err := dbutil.Affected(ctx, i.db, `
		UPDATE import_records SET track_id = ?, updated_at = ? WHERE id = ?
	`, trackID, at, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// Get returns a record by id, or nil if it does not exist.
func (i *Imports) Get(ctx context.Context, id int64) (*Record, error) {
	return Get(ctx, i.db, id)
}

// ListBatch returns the records of one import run in creation order.
func (i *Imports) ListBatch(ctx context.Context, batchID string) ([]Record, error) {
	var records []Record
	err := i.db.SelectContext(ctx, &records, `
		SELECT `+recordColumns+` FROM import_records WHERE batch_id = ? ORDER BY id
	`, batchID)
	return records, err
}

// ForTrack returns the records linked to a track.
func (i *Imports) ForTrack(ctx context.Context, trackID int64) ([]Record, error) {
	return ForTrack(ctx, i.db, trackID)
}

// Get returns a record by id using q, or nil if it does not exist.
func Get(ctx context.Context, q dbutil.Querier, id int64) (*Record, error) {
	var r Record
	err := q.GetContext(ctx, &r, `SELECT `+recordColumns+` FROM import_records WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // not found is not an error
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ForTrack returns the records linked to a track using q.
func ForTrack(ctx context.Context, q dbutil.Querier, trackID int64) ([]Record, error) {
	var records []Record
	err := q.SelectContext(ctx, &records, `
		SELECT `+recordColumns+` FROM import_records WHERE track_id = ? ORDER BY id
	`, trackID)
	return records, err
}

// FileDeletable reports whether the file at path may be physically removed
// when its track is deleted: it must come from a copy-based import and live
// under libraryDir. Reference imports are never removed from disk.
func FileDeletable(records []Record, path, libraryDir string) bool {
	if path == "" || libraryDir == "" {
		return false
	}
	copied := false
	for _, r := range records {
		if !r.Mode.CopyBased() {
			return false
		}
		if r.State != StateFailed {
			copied = true
		}
	}
	return copied && IsUnder(path, libraryDir)
}

// IsUnder reports whether path lies strictly inside dir.
func IsUnder(path, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
