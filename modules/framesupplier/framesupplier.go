// Package framesupplier holds the latest camera frame for real-time consumers.
//
// Philosophy: "Drop frames, never queue. Latency > Completeness."
//
// Design:
//   - Single-slot conflation: newest frame wins, slow readers skip frames
//   - Two views per capture instant: native and downscaled preview
//   - Copy-in on Publish, copy-out on Read (no shared mutable pixels)
//   - Non-blocking: the mutex only guards a pointer swap
package framesupplier

import (
	"github.com/e7canasta/orion-ticket-capture/modules/framesupplier/internal"
)

// Frame is re-exported from internal package to avoid import cycles.
// See internal/frame.go for full documentation.
type Frame = internal.Frame

// Stats is re-exported from internal package.
// See internal/types.go for full documentation.
type Stats = internal.Stats

// Config is re-exported from internal package.
type Config = internal.Config

// DefaultPreviewMaxDim is the preview long-edge limit used when Config leaves it zero.
const DefaultPreviewMaxDim = internal.DefaultPreviewMaxDim

// Buffer is the public interface for the frame holder.
//
// Design:
//   - Interface (not concrete type) so consumers can be tested with fakes
//   - Exactly one writer (the camera producer), any number of readers
//   - Thread-safe: all methods safe for concurrent use
//
// Implementation is in internal/buffer.go (hidden from clients).
type Buffer interface {
	// Publish stores a copy of the native frame and a preview derived from it
	// (bilinear resize, long edge <= PreviewMaxDim) in one critical section.
	//
	// Semantics:
	//   - Overwrite policy: replaces the previous pair, never queues
	//   - Assigns Seq (monotonic) to both stored frames
	//   - Fills Timestamp with time.Now() when the caller left it zero
	//   - Returns a copy of the stored preview (for observer fan-out),
	//     or nil when native is nil or malformed (nothing stored)
	//
	// The caller keeps ownership of native and may reuse its buffer.
	Publish(native *Frame) *Frame

	// ReadNative returns a copy of the newest native frame, or false if
	// nothing has been published since construction or the last Clear.
	ReadNative() (*Frame, bool)

	// ReadPreview returns a copy of the newest preview frame, or false if
	// nothing has been published since construction or the last Clear.
	ReadPreview() (*Frame, bool)

	// Clear drops both slots (camera stop). Seq keeps increasing afterwards.
	Clear()

	// Stats returns operational statistics (non-blocking snapshot).
	Stats() Stats

	// PreviewMaxDim returns the effective preview long-edge limit.
	PreviewMaxDim() int
}

// New creates an empty Buffer.
func New(cfg Config) Buffer {
	return internal.NewBuffer(cfg)
}

// PreviewSize clamps the long edge of (w, h) to maxDim, preserving aspect ratio.
//
// Example:
//
//	PreviewSize(1920, 1080, 1280) // 1280, 720
//	PreviewSize(3840, 2160, 1280) // 1280, 720
//	PreviewSize(640, 480, 1280)   // 640, 480 (already small)
func PreviewSize(w, h, maxDim int) (int, int) {
	return internal.PreviewSize(w, h, maxDim)
}
