// Package framebus distributes preview frames to registered observers.
//
// The camera producer calls Publish once per frame; every observer runs
// synchronously on the producer goroutine, in registration order, with its
// own copy of the frame.
//
// # Isolation
//
// Each invocation is wrapped in recover(). A panicking observer is logged
// (slog, "framebus: observer panicked") and counted; the remaining observers
// still receive the frame and Publish returns normally.
//
// A slow observer is not isolated: it throttles the producer. No timeout is
// imposed on observer execution.
//
// # Thread Safety
//
//   - Subscribe/Unsubscribe may be called concurrently with Publish
//   - An observer may unsubscribe itself (Publish works on a snapshot)
//   - Stats() can be called from any goroutine
//
// # Statistics
//
//	stats := bus.Stats()
//	fmt.Printf("published=%d delivered=%d panics=%d (%.1f%%)\n",
//	    stats.TotalPublished, stats.TotalDelivered, stats.TotalPanics,
//	    framebus.PanicRate(stats)*100)
package framebus
