package internal

import "time"

// DefaultPreviewMaxDim is the long-edge limit applied to preview frames.
const DefaultPreviewMaxDim = 1280

// Config configures a Buffer.
type Config struct {
	// PreviewMaxDim caps the preview long edge in pixels.
	// Zero selects DefaultPreviewMaxDim; negative disables downscaling.
	PreviewMaxDim int
}

// Stats is a snapshot of buffer operational state.
type Stats struct {
	// Published counts successful Publish calls.
	Published uint64

	// Rejected counts Publish calls with nil or malformed frames.
	Rejected uint64

	// Overwritten counts native frames replaced before anyone read them.
	// Non-zero is normal: readers poll slower than the camera produces.
	Overwritten uint64

	// NativeReads and PreviewReads count successful reads per slot.
	NativeReads  uint64
	PreviewReads uint64

	// LastSeq is the sequence number of the newest stored frame (0 = none).
	LastSeq uint64

	// LastPublishedAt is the wall time of the newest Publish (zero = none).
	LastPublishedAt time.Time
}
