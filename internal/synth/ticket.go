// Package synth renders synthetic ticket images for simulation mode and tests.
package synth

import (
	"fmt"
	"image"
	"math"

	"github.com/e7canasta/orion-ticket-capture/internal/symbol"
	"github.com/e7canasta/orion-ticket-capture/modules/framesupplier"
)

// Region is a rectangle in relative image coordinates (0..1).
type Region struct {
	X, Y, W, H float64
}

// Abs converts r to pixel coordinates for a w×h image, clipped to bounds.
func (r Region) Abs(w, h int) image.Rectangle {
	rect := image.Rect(
		int(math.Round(r.X*float64(w))),
		int(math.Round(r.Y*float64(h))),
		int(math.Round((r.X+r.W)*float64(w))),
		int(math.Round((r.Y+r.H)*float64(h))),
	)
	return rect.Intersect(image.Rect(0, 0, w, h))
}

// Blank returns a w×h BGR frame filled with white.
func Blank(w, h int) *framesupplier.Frame {
	data := make([]byte, w*h*3)
	for i := range data {
		data[i] = 0xff
	}
	return &framesupplier.Frame{Data: data, Width: w, Height: h, Channels: 3}
}

// Ticket renders a white w×h BGR frame with payload drawn as a Code 128
// symbol centred inside region. It returns the frame and the tight box
// around the printed bars (quiet zones excluded).
func Ticket(w, h int, region Region, payload string) (*framesupplier.Frame, image.Rectangle, error) {
	box := region.Abs(w, h)
	if box.Empty() {
		return nil, image.Rectangle{}, fmt.Errorf("synth: region %+v empty at %dx%d", region, w, h)
	}

	frame := Blank(w, h)
	bars, err := symbol.Render(payload, box.Dx(), box.Dy())
	if err != nil {
		return nil, image.Rectangle{}, err
	}

	offset := image.Pt(box.Min.X+(box.Dx()-bars.Rect.Dx())/2, box.Min.Y)
	Paste(frame, bars, offset)

	first, last := inkColumns(bars)
	if first < 0 {
		return nil, image.Rectangle{}, fmt.Errorf("synth: rendered symbol has no bars")
	}
	tight := image.Rect(offset.X+first, box.Min.Y, offset.X+last+1, box.Min.Y+bars.Rect.Dy())
	return frame, tight.Intersect(frame.Bounds()), nil
}

// Bars draws count evenly spaced black bars inside box (bar width equals gap
// width). It is not a decodable symbol; detectors that rely on shape alone
// should still find it.
func Bars(frame *framesupplier.Frame, box image.Rectangle, count int) {
	box = box.Intersect(frame.Bounds())
	if box.Empty() || count <= 0 {
		return
	}
	period := float64(box.Dx()) / float64(count)
	for i := 0; i < count; i++ {
		x0 := box.Min.X + int(math.Round(float64(i)*period))
		x1 := box.Min.X + int(math.Round(float64(i)*period+period/2))
		Fill(frame, image.Rect(x0, box.Min.Y, x1, box.Max.Y), 0)
	}
}

// Fill paints r (clipped) with a gray level.
func Fill(frame *framesupplier.Frame, r image.Rectangle, level byte) {
	r = r.Intersect(frame.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := frame.Data[y*frame.Stride():]
		for x := r.Min.X; x < r.Max.X; x++ {
			i := x * frame.Channels
			for c := 0; c < frame.Channels; c++ {
				row[i+c] = level
			}
		}
	}
}

// Paste copies a grayscale image into frame at offset (clipped).
func Paste(frame *framesupplier.Frame, img *image.Gray, offset image.Point) {
	dst := img.Rect.Add(offset).Intersect(frame.Bounds())
	for y := dst.Min.Y; y < dst.Max.Y; y++ {
		for x := dst.Min.X; x < dst.Max.X; x++ {
			v := img.GrayAt(x-offset.X+img.Rect.Min.X, y-offset.Y+img.Rect.Min.Y).Y
			i := y*frame.Stride() + x*frame.Channels
			for c := 0; c < frame.Channels; c++ {
				frame.Data[i+c] = v
			}
		}
	}
}

func inkColumns(img *image.Gray) (first, last int) {
	first, last = -1, -1
	y := img.Rect.Min.Y + img.Rect.Dy()/2
	for x := img.Rect.Min.X; x < img.Rect.Max.X; x++ {
		if img.GrayAt(x, y).Y < 0x80 {
			if first < 0 {
				first = x - img.Rect.Min.X
			}
			last = x - img.Rect.Min.X
		}
	}
	return first, last
}
