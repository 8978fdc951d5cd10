package internal

import (
	"image"
	"time"
)

// Frame is a raw, interleaved pixel buffer.
//
// IMMUTABILITY CONTRACT:
//   - Buffer stores its own copy on Publish; callers keep ownership of theirs
//   - Frames handed out by Read*/Publish are copies, free to mutate
//   - Frames held inside Buffer are never mutated after they are stored
//
// Layout: Channels == 3 means BGR byte order (OpenCV native),
// Channels == 1 means 8-bit grayscale. Row stride is Width*Channels.
type Frame struct {
	// Data contains Width*Height*Channels bytes, row-major.
	Data []byte

	// Width of the frame in pixels
	Width int

	// Height of the frame in pixels
	Height int

	// Channels is 3 (BGR) or 1 (gray).
	Channels int

	// Timestamp when the frame was captured (source time).
	Timestamp time.Time

	// Seq is assigned by Buffer on Publish. Monotonically increasing,
	// shared by the native frame and the preview derived from it.
	Seq uint64
}

// Valid reports whether the frame geometry matches its data length.
func (f *Frame) Valid() bool {
	if f == nil || f.Width <= 0 || f.Height <= 0 {
		return false
	}
	if f.Channels != 1 && f.Channels != 3 {
		return false
	}
	return len(f.Data) == f.Width*f.Height*f.Channels
}

// Stride returns the number of bytes per row.
func (f *Frame) Stride() int {
	return f.Width * f.Channels
}

// Bounds returns the frame rectangle anchored at the origin.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// Clone returns a deep copy. Nil in, nil out.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	return &Frame{
		Data:      data,
		Width:     f.Width,
		Height:    f.Height,
		Channels:  f.Channels,
		Timestamp: f.Timestamp,
		Seq:       f.Seq,
	}
}

// Crop returns a deep copy of the pixels inside r, clipped to the frame.
// Returns nil when the clipped rectangle is empty.
func (f *Frame) Crop(r image.Rectangle) *Frame {
	r = r.Intersect(f.Bounds())
	if r.Empty() {
		return nil
	}

	w, h := r.Dx(), r.Dy()
	data := make([]byte, w*h*f.Channels)
	rowBytes := w * f.Channels
	for y := 0; y < h; y++ {
		src := (r.Min.Y+y)*f.Stride() + r.Min.X*f.Channels
		copy(data[y*rowBytes:(y+1)*rowBytes], f.Data[src:src+rowBytes])
	}

	return &Frame{
		Data:      data,
		Width:     w,
		Height:    h,
		Channels:  f.Channels,
		Timestamp: f.Timestamp,
		Seq:       f.Seq,
	}
}

// Image converts the frame into a standard library image.
// BGR frames become *image.RGBA (channels swapped), gray frames *image.Gray.
func (f *Frame) Image() image.Image {
	if f.Channels == 1 {
		gray := image.NewGray(f.Bounds())
		copy(gray.Pix, f.Data)
		return gray
	}

	rgba := image.NewRGBA(f.Bounds())
	for i, j := 0, 0; i < len(f.Data); i, j = i+3, j+4 {
		rgba.Pix[j] = f.Data[i+2]
		rgba.Pix[j+1] = f.Data[i+1]
		rgba.Pix[j+2] = f.Data[i]
		rgba.Pix[j+3] = 0xff
	}
	return rgba
}
