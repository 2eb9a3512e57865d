package playback

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	dbutil "github.com/llehouerou/crate/internal/db"
)

// DefaultSaveDelay is how long the Saver waits for more updates before
// writing.
const DefaultSaveDelay = 500 * time.Millisecond

type positionKey struct {
	source, sourceTrackID string
}

// Saver coalesces frequent position updates from a player. Only the latest
// position per track is kept, and pending positions are written together
// once no update arrived for the save delay.
type Saver struct {
	db      *sqlx.DB
	delay   time.Duration
	onError func(error)

	mu      sync.Mutex
	timer   *time.Timer
	pending map[positionKey]Position

	// flushMu is held for the whole of a flush, so Close waits for a
	// timer-driven flush that already started.
	flushMu sync.Mutex
}

// NewSaver creates a Saver. onError receives failures of background
// writes; it may be nil.
func NewSaver(db *sqlx.DB, delay time.Duration, onError func(error)) *Saver {
	if delay <= 0 {
		delay = DefaultSaveDelay
	}
	return &Saver{
		db:      db,
		delay:   delay,
		onError: onError,
		pending: make(map[positionKey]Position),
	}
}

// Save schedules p to be written.
func (s *Saver) Save(p Position) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[positionKey{p.Source, p.SourceTrackID}] = p

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, func() {
		if err := s.Flush(context.Background()); err != nil && s.onError != nil {
			s.onError(err)
		}
	})
}

// Flush writes every pending position now, in one transaction.
func (s *Saver) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[positionKey]Position)
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}
	return dbutil.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, p := range pending {
			if err := savePosition(ctx, tx, p); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close stops the timer and flushes what is pending. It returns only once
// any background flush in progress has finished.
func (s *Saver) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	return s.Flush(ctx)
}
