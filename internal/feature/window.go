// Package feature implements the microstructure signal computations: the
// order-book imbalance, the taker buy/sell volume ratio over a retention
// window, and the shared store holding the latest record per instrument.
package feature

import "time"

type entry[T any] struct {
	val T
	at  time.Time
}

// Window is a time-bounded buffer that retains only entries younger than the
// configured retention. Entries are insertion-ordered with non-decreasing
// timestamps; eviction runs lazily before every read and write. A Window is
// owned by a single goroutine and needs no synchronization.
type Window[T any] struct {
	retention time.Duration
	entries   []entry[T]
}

// NewWindow creates an empty window with the given retention.
func NewWindow[T any](retention time.Duration) *Window[T] {
	return &Window[T]{retention: retention}
}

// Insert evicts expired entries and appends v stamped with now.
func (w *Window[T]) Insert(v T, now time.Time) {
	w.evict(now)
	w.entries = append(w.entries, entry[T]{val: v, at: now})
}

// Items evicts expired entries and returns the remaining values in insertion
// order. The returned slice aliases internal storage and must not be retained
// across a later Insert.
func (w *Window[T]) Items(now time.Time) []T {
	w.evict(now)
	items := make([]T, len(w.entries))
	for i, e := range w.entries {
		items[i] = e.val
	}
	return items
}

// Len evicts expired entries and returns the remaining count.
func (w *Window[T]) Len(now time.Time) int {
	w.evict(now)
	return len(w.entries)
}

func (w *Window[T]) evict(now time.Time) {
	cut := 0
	for cut < len(w.entries) && now.Sub(w.entries[cut].at) > w.retention {
		cut++
	}
	if cut == 0 {
		return
	}
	remaining := len(w.entries) - cut
	copy(w.entries, w.entries[cut:])
	for i := remaining; i < len(w.entries); i++ {
		w.entries[i] = entry[T]{}
	}
	w.entries = w.entries[:remaining]
}
