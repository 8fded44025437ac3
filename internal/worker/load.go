// Package worker implements the Worker Load Table and Worker Selector
// (spec.md §4.5, §3 "Worker Load Table"): a fixed-size array of
// non-negative counters, one per worker client, incremented when a Range
// Streamer (or a whole-file fetch) starts on a worker and decremented when
// it exits.
package worker

import "sync/atomic"

// LoadTable tracks in-flight stream counts, one slot per worker.
type LoadTable struct {
	counts []atomic.Int32
}

// NewLoadTable builds a table sized for n workers.
func NewLoadTable(n int) *LoadTable {
	return &LoadTable{counts: make([]atomic.Int32, n)}
}

// Len reports the configured worker count.
func (t *LoadTable) Len() int { return len(t.counts) }

// Inc increments the counter for idx. Called once at stream entry.
func (t *LoadTable) Inc(idx int) {
	t.counts[idx].Add(1)
}

// Dec decrements the counter for idx. Called exactly once per Inc, on any
// stream exit — completion, error, or cancellation.
func (t *LoadTable) Dec(idx int) {
	t.counts[idx].Add(-1)
}

// Load returns the current counter for idx. Reads need not be
// snapshot-consistent with concurrent Inc/Dec (spec.md §5).
func (t *LoadTable) Load(idx int) int32 {
	return t.counts[idx].Load()
}

// Select picks the worker with the minimum current load, ties broken by
// lowest index (spec.md §4.5). Select only reads the counters; the Range
// Streamer and Engine.FetchWhole do the matching Inc and Dec.
func (t *LoadTable) Select() int {
	best := 0
	bestLoad := t.counts[0].Load()
	for i := 1; i < len(t.counts); i++ {
		if l := t.counts[i].Load(); l < bestLoad {
			best = i
			bestLoad = l
		}
	}
	return best
}
