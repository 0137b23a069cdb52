package probe

import "stream-prober/internal/domain"

// WaitTracker holds the expectations currently blocking script progress.
// The script engine only advances while the tracker is empty.
type WaitTracker struct {
	waits []*domain.EventMatch
}

// Add inserts an expectation unconditionally; duplicates are allowed.
func (w *WaitTracker) Add(m *domain.EventMatch) {
	w.waits = append(w.waits, m)
}

// Remove clears at most one expectation satisfied by the observed event.
// When several entries match, the earliest-inserted one is removed; entries
// are otherwise order-independent.
func (w *WaitTracker) Remove(ev domain.StreamEvent) bool {
	for i, m := range w.waits {
		if m.Matches(ev) {
			w.waits = append(w.waits[:i], w.waits[i+1:]...)
			return true
		}
	}
	return false
}

// ClearStream removes every expectation on a stream id. Used when the
// stream finishes: those expectations can never be satisfied.
func (w *WaitTracker) ClearStream(streamID uint64) int {
	kept := w.waits[:0]
	removed := 0
	for _, m := range w.waits {
		if m.StreamID == streamID {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	w.waits = kept
	return removed
}

func (w *WaitTracker) Empty() bool { return len(w.waits) == 0 }
func (w *WaitTracker) Len() int    { return len(w.waits) }
