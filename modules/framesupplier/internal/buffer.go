package internal

import (
	"sync"
	"sync/atomic"
	"time"
)

// Buffer is a newest-wins, single-slot holder for a native frame and its preview.
//
// Concurrency:
//   - mu guards only the slot pointers (swap in, load out)
//   - Copies and resizing happen outside mu; stored frames are immutable
//   - scaleMu serializes preview derivation (one producer in practice)
type Buffer struct {
	previewMaxDim int

	mu      sync.Mutex
	native  *Frame
	preview *Frame
	seq     uint64
	read    bool

	scaleMu sync.Mutex
	scaler  scaler

	published    uint64
	rejected     uint64
	overwritten  uint64
	nativeReads  uint64
	previewReads uint64
	lastPublish  atomic.Int64
}

// NewBuffer creates an empty buffer.
func NewBuffer(cfg Config) *Buffer {
	maxDim := cfg.PreviewMaxDim
	if maxDim == 0 {
		maxDim = DefaultPreviewMaxDim
	}
	return &Buffer{previewMaxDim: maxDim}
}

// PreviewMaxDim returns the effective preview long-edge limit.
func (b *Buffer) PreviewMaxDim() int {
	return b.previewMaxDim
}

// Publish stores a copy of native plus a derived preview and returns a copy
// of the stored preview. Returns nil (and stores nothing) for invalid frames.
func (b *Buffer) Publish(native *Frame) *Frame {
	if !native.Valid() {
		atomic.AddUint64(&b.rejected, 1)
		return nil
	}

	nat := native.Clone()
	if nat.Timestamp.IsZero() {
		nat.Timestamp = time.Now()
	}

	pw, ph := PreviewSize(nat.Width, nat.Height, b.previewMaxDim)
	b.scaleMu.Lock()
	prev := b.scaler.resize(nat, pw, ph)
	b.scaleMu.Unlock()

	b.mu.Lock()
	b.seq++
	nat.Seq = b.seq
	prev.Seq = b.seq
	if b.native != nil && !b.read {
		b.overwritten++
	}
	b.native = nat
	b.preview = prev
	b.read = false
	b.mu.Unlock()

	atomic.AddUint64(&b.published, 1)
	b.lastPublish.Store(nat.Timestamp.UnixNano())

	return prev.Clone()
}

// ReadNative returns a copy of the newest native frame.
func (b *Buffer) ReadNative() (*Frame, bool) {
	b.mu.Lock()
	f := b.native
	if f != nil {
		b.read = true
	}
	b.mu.Unlock()

	if f == nil {
		return nil, false
	}
	atomic.AddUint64(&b.nativeReads, 1)
	return f.Clone(), true
}

// ReadPreview returns a copy of the newest preview frame.
func (b *Buffer) ReadPreview() (*Frame, bool) {
	b.mu.Lock()
	f := b.preview
	if f != nil {
		b.read = true
	}
	b.mu.Unlock()

	if f == nil {
		return nil, false
	}
	atomic.AddUint64(&b.previewReads, 1)
	return f.Clone(), true
}

// Clear drops both slots. Sequence numbering continues across Clear.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.native = nil
	b.preview = nil
	b.read = false
	b.mu.Unlock()
}

// Stats returns an operational snapshot.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	var lastSeq uint64
	if b.native != nil {
		lastSeq = b.native.Seq
	}
	overwritten := b.overwritten
	b.mu.Unlock()

	stats := Stats{
		Published:    atomic.LoadUint64(&b.published),
		Rejected:     atomic.LoadUint64(&b.rejected),
		Overwritten:  overwritten,
		NativeReads:  atomic.LoadUint64(&b.nativeReads),
		PreviewReads: atomic.LoadUint64(&b.previewReads),
		LastSeq:      lastSeq,
	}
	if ns := b.lastPublish.Load(); ns != 0 {
		stats.LastPublishedAt = time.Unix(0, ns)
	}
	return stats
}
