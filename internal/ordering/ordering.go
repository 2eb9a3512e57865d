// Package ordering maintains dense zero-based "ord" sequences for playlist
// entries and queue items.
//
// The sequencing rules live in pure functions over []Entry so they can be
// tested without a database; store.go applies the same rules to a table.
package ordering

import "sort"

// Entry is one element of an ordered scope.
type Entry[T any] struct {
	Ord  int
	Item T
}

// NextOrd returns the ord an appended entry receives: one past the current
// maximum, or 0 for an empty scope.
func NextOrd[T any](entries []Entry[T]) int {
	next := 0
	for _, e := range entries {
		if e.Ord+1 > next {
			next = e.Ord + 1
		}
	}
	return next
}

// Clamp bounds an insert position to [0, next] so an insert can never open
// a gap past the end of the scope.
func Clamp(pos, next int) int {
	if pos < 0 {
		return 0
	}
	if pos > next {
		return next
	}
	return pos
}

// Append returns entries with items added after the current maximum, in the
// given order.
func Append[T any](entries []Entry[T], items ...T) []Entry[T] {
	next := NextOrd(entries)
	out := sorted(entries)
	for i, it := range items {
		out = append(out, Entry[T]{Ord: next + i, Item: it})
	}
	return out
}

// Insert returns entries with items placed at pos. Every existing entry with
// ord >= pos moves up by len(items) in one shift, then the new items take
// pos, pos+1, ... in caller order.
func Insert[T any](entries []Entry[T], pos int, items ...T) []Entry[T] {
	if len(items) == 0 {
		return sorted(entries)
	}
	pos = Clamp(pos, NextOrd(entries))

	out := make([]Entry[T], 0, len(entries)+len(items))
	for _, e := range entries {
		if e.Ord >= pos {
			e.Ord += len(items)
		}
		out = append(out, e)
	}
	for i, it := range items {
		out = append(out, Entry[T]{Ord: pos + i, Item: it})
	}
	return sorted(out)
}

// Reorder returns items as a fresh dense sequence with ord equal to index.
func Reorder[T any](items []T) []Entry[T] {
	out := make([]Entry[T], len(items))
	for i, it := range items {
		out[i] = Entry[T]{Ord: i, Item: it}
	}
	return out
}

// RemoveWhere drops every entry matching fn. Remaining ords are left as they
// were, so the result may have gaps.
func RemoveWhere[T any](entries []Entry[T], fn func(T) bool) []Entry[T] {
	out := make([]Entry[T], 0, len(entries))
	for _, e := range entries {
		if !fn(e.Item) {
			out = append(out, e)
		}
	}
	return sorted(out)
}

// RemoveAt drops the entry with the given ord, if any, without renumbering.
func RemoveAt[T any](entries []Entry[T], ord int) []Entry[T] {
	out := make([]Entry[T], 0, len(entries))
	for _, e := range entries {
		if e.Ord != ord {
			out = append(out, e)
		}
	}
	return sorted(out)
}

// Items returns the payloads in ord order.
func Items[T any](entries []Entry[T]) []T {
	s := sorted(entries)
	out := make([]T, len(s))
	for i, e := range s {
		out[i] = e.Item
	}
	return out
}

// IsDense reports whether the ords are exactly {0, ..., len-1}.
func IsDense(ords []int) bool {
	seen := make([]bool, len(ords))
	for _, o := range ords {
		if o < 0 || o >= len(ords) || seen[o] {
			return false
		}
		seen[o] = true
	}
	return true
}

func sorted[T any](entries []Entry[T]) []Entry[T] {
	out := make([]Entry[T], len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ord < out[j].Ord })
	return out
}
