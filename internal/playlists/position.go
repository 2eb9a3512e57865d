package playlists

import "sort"

// positionCalculator computes the order of a playlist after a block of
// positions moves by delta. It keeps the position arithmetic apart from the
// database writes.
type positionCalculator struct {
	sorted []int // sorted positions to move
	count  int   // total entry count
	delta  int   // movement amount (negative = up, positive = down)
}

// newPositionCalculator creates a calculator for moving positions by delta.
func newPositionCalculator(positions []int, count, delta int) *positionCalculator {
	sorted := make([]int, len(positions))
	copy(sorted, positions)
	sort.Ints(sorted)
	return &positionCalculator{sorted: sorted, count: count, delta: delta}
}

// canMove returns true if the move is valid (within bounds).
// Returns false if there are no positions to move, delta is zero,
// a position repeats, or the move would go out of bounds.
func (c *positionCalculator) canMove() bool {
	if len(c.sorted) == 0 || c.delta == 0 {
		return false
	}
	for i := 1; i < len(c.sorted); i++ {
		if c.sorted[i] == c.sorted[i-1] {
			return false
		}
	}
	if c.sorted[0] < 0 || c.sorted[len(c.sorted)-1] >= c.count {
		return false
	}
	if c.delta < 0 {
		return c.sorted[0]+c.delta >= 0
	}
	return c.sorted[len(c.sorted)-1]+c.delta < c.count
}

// newPositions returns the new positions after the move.
// The input should be the original (unsorted) positions array.
func (c *positionCalculator) newPositions(originalPositions []int) []int {
	result := make([]int, len(originalPositions))
	for i, pos := range originalPositions {
		result[i] = pos + c.delta
	}
	return result
}

// order returns, for each new position, the old position of the entry that
// lands there. Moved entries take pos+delta; the others fill the remaining
// slots in their original relative order.
func (c *positionCalculator) order() []int {
	if !c.canMove() {
		out := make([]int, c.count)
		for i := range out {
			out[i] = i
		}
		return out
	}

	out := make([]int, c.count)
	taken := make([]bool, c.count)
	selected := make(map[int]bool, len(c.sorted))
	for _, pos := range c.sorted {
		out[pos+c.delta] = pos
		taken[pos+c.delta] = true
		selected[pos] = true
	}

	slot := 0
	for pos := 0; pos < c.count; pos++ {
		if selected[pos] {
			continue
		}
		for taken[slot] {
			slot++
		}
		out[slot] = pos
		taken[slot] = true
	}
	return out
}
