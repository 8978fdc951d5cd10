package detector

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/e7canasta/orion-ticket-capture/internal/vision"
)

// input is the per-call working set shared by the strategies. Nothing in it
// outlives one Detect call.
type input struct {
	gray gocv.Mat
	w, h int

	ink []byte // Otsu binarization of gray, 0 = ink, 255 = paper
}

func newInput(img gocv.Mat) *input {
	gray := vision.Gray(img)
	return &input{gray: gray, w: gray.Cols(), h: gray.Rows()}
}

func (in *input) close() {
	in.gray.Close()
}

func (in *input) bounds() image.Rectangle {
	return image.Rect(0, 0, in.w, in.h)
}

// inkMask returns the Otsu binarization of the whole image, computed once.
func (in *input) inkMask() []byte {
	if in.ink == nil {
		bin := gocv.NewMat()
		defer bin.Close()
		gocv.Threshold(in.gray, &bin, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
		in.ink = vision.Pixels(bin)
	}
	return in.ink
}

// inkDensity is the fraction of ink pixels inside r.
func (in *input) inkDensity(r image.Rectangle) float64 {
	r = r.Intersect(in.bounds())
	if r.Empty() {
		return 0
	}
	mask := in.inkMask()
	ink := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := mask[y*in.w : (y+1)*in.w]
		for x := r.Min.X; x < r.Max.X; x++ {
			if row[x] == 0 {
				ink++
			}
		}
	}
	return float64(ink) / float64(r.Dx()*r.Dy())
}

// candidate is a strategy's best raw box.
type candidate struct {
	box        image.Rectangle
	confidence float64
	text       string
	evaluated  int
}
