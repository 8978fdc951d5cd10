package internal

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// PreviewSize clamps the long edge of (w, h) to maxDim, preserving aspect ratio.
// Frames already within maxDim keep their size. maxDim <= 0 disables scaling.
func PreviewSize(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}

	if w >= h {
		nh := int(math.Round(float64(h) * float64(maxDim) / float64(w)))
		return maxDim, max(nh, 1)
	}
	nw := int(math.Round(float64(w) * float64(maxDim) / float64(h)))
	return max(nw, 1), maxDim
}

// scaler resizes frames with bilinear interpolation.
//
// BGR frames are packed into an RGBA scratch image without swapping channels
// (interpolation is per channel, order is irrelevant), which keeps x/image on
// its *image.RGBA fast path. The scratch buffers are reused between calls;
// a scaler is not safe for concurrent use.
type scaler struct {
	src *image.RGBA
	dst *image.RGBA
}

func (s *scaler) resize(f *Frame, w, h int) *Frame {
	if w == f.Width && h == f.Height {
		return f.Clone()
	}

	out := &Frame{
		Width:     w,
		Height:    h,
		Channels:  f.Channels,
		Timestamp: f.Timestamp,
		Seq:       f.Seq,
	}

	if f.Channels == 1 {
		src := &image.Gray{Pix: f.Data, Stride: f.Width, Rect: f.Bounds()}
		dst := image.NewGray(image.Rect(0, 0, w, h))
		draw.BiLinear.Scale(dst, dst.Rect, src, src.Rect, draw.Src, nil)
		out.Data = dst.Pix
		return out
	}

	s.src = reuseRGBA(s.src, f.Width, f.Height)
	s.dst = reuseRGBA(s.dst, w, h)

	for i, j := 0, 0; i < len(f.Data); i, j = i+3, j+4 {
		s.src.Pix[j] = f.Data[i]
		s.src.Pix[j+1] = f.Data[i+1]
		s.src.Pix[j+2] = f.Data[i+2]
		s.src.Pix[j+3] = 0xff
	}

	draw.BiLinear.Scale(s.dst, s.dst.Rect, s.src, s.src.Rect, draw.Src, nil)

	out.Data = make([]byte, w*h*3)
	for i, j := 0, 0; j < len(out.Data); i, j = i+4, j+3 {
		out.Data[j] = s.dst.Pix[i]
		out.Data[j+1] = s.dst.Pix[i+1]
		out.Data[j+2] = s.dst.Pix[i+2]
	}
	return out
}

func reuseRGBA(img *image.RGBA, w, h int) *image.RGBA {
	if img != nil && img.Rect.Dx() == w && img.Rect.Dy() == h {
		return img
	}
	return image.NewRGBA(image.Rect(0, 0, w, h))
}
