package fps

import (
	"sync"
	"time"
)

// Window keeps the most recent frame timestamps in a fixed ring.
type Window struct {
	mu    sync.Mutex
	times []time.Time
	next  int
	full  bool
}

// NewWindow creates a ring holding size timestamps (minimum 2).
func NewWindow(size int) *Window {
	return &Window{times: make([]time.Time, max(size, 2))}
}

// Add records a frame timestamp.
func (w *Window) Add(t time.Time) {
	w.mu.Lock()
	w.times[w.next] = t
	w.next = (w.next + 1) % len(w.times)
	if w.next == 0 {
		w.full = true
	}
	w.mu.Unlock()
}

// Reset forgets all timestamps.
func (w *Window) Reset() {
	w.mu.Lock()
	w.next = 0
	w.full = false
	w.mu.Unlock()
}

// Snapshot returns the recorded timestamps, oldest first.
func (w *Window) Snapshot() []time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.full {
		out := make([]time.Time, w.next)
		copy(out, w.times[:w.next])
		return out
	}
	out := make([]time.Time, 0, len(w.times))
	out = append(out, w.times[w.next:]...)
	return append(out, w.times[:w.next]...)
}

// Stats computes pacing statistics over the current window.
func (w *Window) Stats() Stats {
	return Calculate(w.Snapshot(), 0)
}
