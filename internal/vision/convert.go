// Package vision converts between framesupplier frames and OpenCV matrices.
//
// Every Mat returned by this package is owned by the caller and must be
// closed. Mats never alias Go memory.
package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/e7canasta/orion-ticket-capture/modules/framesupplier"
)

// FrameToMat copies a frame into a new CV_8UC3 or CV_8UC1 Mat.
func FrameToMat(f *framesupplier.Frame) (gocv.Mat, error) {
	if !f.Valid() {
		return gocv.NewMat(), fmt.Errorf("vision: invalid frame")
	}

	mt := gocv.MatTypeCV8UC3
	if f.Channels == 1 {
		mt = gocv.MatTypeCV8UC1
	}

	view, err := gocv.NewMatFromBytes(f.Height, f.Width, mt, f.Data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("vision: wrap frame: %w", err)
	}
	defer view.Close()

	// view points at Go memory; hand out an OpenCV-owned copy.
	return view.Clone(), nil
}

// MatToFrame copies an 8-bit, 1- or 3-channel Mat into a new frame.
func MatToFrame(m gocv.Mat) (*framesupplier.Frame, error) {
	if m.Empty() {
		return nil, fmt.Errorf("vision: empty mat")
	}
	ch := m.Channels()
	if ch != 1 && ch != 3 {
		return nil, fmt.Errorf("vision: unsupported channel count %d", ch)
	}

	src := m
	if !m.IsContinuous() {
		src = m.Clone()
		defer src.Close()
	}

	data := src.ToBytes()
	if len(data) != src.Rows()*src.Cols()*ch {
		return nil, fmt.Errorf("vision: unexpected mat type %v", m.Type())
	}

	return &framesupplier.Frame{
		Data:     data,
		Width:    src.Cols(),
		Height:   src.Rows(),
		Channels: ch,
	}, nil
}

// Gray returns a single-channel copy of m (converted from BGR when needed).
func Gray(m gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	switch m.Channels() {
	case 1:
		m.CopyTo(&gray)
	case 4:
		gocv.CvtColor(m, &gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(m, &gray, gocv.ColorBGRToGray)
	}
	return gray
}

// GrayImage copies a CV_8UC1 Mat into an *image.Gray.
func GrayImage(m gocv.Mat) *image.Gray {
	src := m
	if !m.IsContinuous() {
		src = m.Clone()
		defer src.Close()
	}

	img := image.NewGray(image.Rect(0, 0, src.Cols(), src.Rows()))
	copy(img.Pix, src.ToBytes())
	return img
}

// Pixels returns the bytes of a CV_8UC1 Mat, row-major with stride Cols().
func Pixels(m gocv.Mat) []byte {
	if m.IsContinuous() {
		return m.ToBytes()
	}
	c := m.Clone()
	defer c.Close()
	return c.ToBytes()
}

// Crop returns an owned copy of the pixels of m inside r (clipped).
// The returned Mat is empty when r does not intersect m.
func Crop(m gocv.Mat, r image.Rectangle) gocv.Mat {
	r = r.Intersect(image.Rect(0, 0, m.Cols(), m.Rows()))
	if r.Empty() {
		return gocv.NewMat()
	}
	region := m.Region(r)
	defer region.Close()
	return region.Clone()
}
