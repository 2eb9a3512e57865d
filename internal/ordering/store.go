package ordering

import (
	"context"
	"database/sql"
	"fmt"

	dbutil "github.com/llehouerou/crate/internal/db"
)

// Scope names the table holding an ordered sequence and, for partitioned
// tables, the column and value selecting one sequence. Table and column
// names come from code, never from callers.
type Scope struct {
	Table     string
	KeyColumn string // empty when the whole table is one sequence
	Key       any
}

func (s Scope) where() (string, []any) {
	if s.KeyColumn == "" {
		return "1 = 1", nil
	}
	return s.KeyColumn + " = ?", []any{s.Key}
}

// MaxOrd returns the highest ord in the scope, invalid when it is empty.
func MaxOrd(ctx context.Context, q dbutil.Querier, s Scope) (sql.NullInt64, error) {
	where, args := s.where()
	var maxOrd sql.NullInt64
	err := q.GetContext(ctx, &maxOrd, fmt.Sprintf(`SELECT MAX(ord) FROM %s WHERE %s`, s.Table, where), args...)
	return maxOrd, err
}

// Next returns the ord an appended entry would receive.
func Next(ctx context.Context, q dbutil.Querier, s Scope) (int, error) {
	maxOrd, err := MaxOrd(ctx, q, s)
	if err != nil {
		return 0, err
	}
	if !maxOrd.Valid {
		return 0, nil
	}
	return int(maxOrd.Int64) + 1, nil
}

// Count returns the number of rows in the scope.
func Count(ctx context.Context, q dbutil.Querier, s Scope) (int, error) {
	where, args := s.where()
	var n int
	err := q.GetContext(ctx, &n, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, s.Table, where), args...)
	return n, err
}

// Ords returns every ord in the scope in ascending order.
func Ords(ctx context.Context, q dbutil.Querier, s Scope) ([]int, error) {
	where, args := s.where()
	var ords []int
	err := q.SelectContext(ctx, &ords, fmt.Sprintf(`SELECT ord FROM %s WHERE %s ORDER BY ord`, s.Table, where), args...)
	return ords, err
}

// MakeRoom prepares an insert of n entries at pos and returns the first ord
// they should take. pos is clamped to [0, next]; entries at or after it are
// shifted up by n. Must run inside the caller's transaction.
func MakeRoom(ctx context.Context, q dbutil.Querier, s Scope, pos, n int) (int, error) {
	next, err := Next(ctx, q, s)
	if err != nil {
		return 0, err
	}
	pos = Clamp(pos, next)
	if n <= 0 || pos == next {
		return pos, nil
	}
	if err := shift(ctx, q, s, pos, n); err != nil {
		return 0, err
	}
	return pos, nil
}

// shift moves every ord >= from up by n. The unique ord constraint is
// checked row by row, so shifted rows are first parked at negative ords
// (-(ord+n)-1, which cannot collide) and then flipped back.
func shift(ctx context.Context, q dbutil.Querier, s Scope, from, n int) error {
	where, args := s.where()

	park := fmt.Sprintf(`UPDATE %s SET ord = -(ord + ?) - 1 WHERE %s AND ord >= ?`, s.Table, where)
	parkArgs := append([]any{n}, args...)
	parkArgs = append(parkArgs, from)
	if _, err := q.ExecContext(ctx, park, parkArgs...); err != nil {
		return fmt.Errorf("park ords: %w", err)
	}

	restore := fmt.Sprintf(`UPDATE %s SET ord = -ord - 1 WHERE %s AND ord < 0`, s.Table, where)
	if _, err := q.ExecContext(ctx, restore, args...); err != nil {
		return fmt.Errorf("restore ords: %w", err)
	}
	return nil
}

// Clear deletes every row in the scope.
func Clear(ctx context.Context, q dbutil.Querier, s Scope) (int64, error) {
	where, args := s.where()
	return dbutil.Affected(ctx, q, fmt.Sprintf(`DELETE FROM %s WHERE %s`, s.Table, where), args...)
}

// Compact renumbers the scope to 0..n-1 keeping relative order and returns
// how many rows moved. Rows are parked at negative ords first so the unique
// constraint never sees a transient duplicate.
func Compact(ctx context.Context, q dbutil.Querier, s Scope) (int, error) {
	ords, err := Ords(ctx, q, s)
	if err != nil {
		return 0, err
	}
	if IsDense(ords) {
		return 0, nil
	}

	where, args := s.where()
	park := fmt.Sprintf(`UPDATE %s SET ord = ? WHERE %s AND ord = ?`, s.Table, where)
	moved := 0
	for i, ord := range ords {
		if ord == i {
			continue
		}
		parkArgs := append([]any{-i - 1}, args...)
		parkArgs = append(parkArgs, ord)
		if _, err := q.ExecContext(ctx, park, parkArgs...); err != nil {
			return 0, fmt.Errorf("park ord %d: %w", ord, err)
		}
		moved++
	}

	restore := fmt.Sprintf(`UPDATE %s SET ord = -ord - 1 WHERE %s AND ord < 0`, s.Table, where)
	if _, err := q.ExecContext(ctx, restore, args...); err != nil {
		return 0, fmt.Errorf("restore ords: %w", err)
	}
	return moved, nil
}

// QueueScope is the single global play queue.
var QueueScope = Scope{Table: "queue_items"}

// PlaylistScope is the entry sequence of one playlist.
func PlaylistScope(playlistID int64) Scope {
	return Scope{Table: "playlist_entries", KeyColumn: "playlist_id", Key: playlistID}
}
