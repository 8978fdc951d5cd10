// Package symbol wraps the Code 128 reader and writer used across the station.
package symbol

import (
	"image"
	"math"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
)

// Symbol is one decoded linear barcode.
type Symbol struct {
	Text   string
	Format string

	// Points are the reader's result points in image coordinates. For a
	// linear symbol these sit on the scanned row, at the start and stop
	// pattern centres.
	Points []image.Point
}

// Bounds returns the bounding box of the result points. Linear symbols yield
// a zero-height box; callers refine it against the pixels.
func (s Symbol) Bounds() image.Rectangle {
	if len(s.Points) == 0 {
		return image.Rectangle{}
	}
	r := image.Rectangle{Min: s.Points[0], Max: s.Points[0]}
	for _, p := range s.Points[1:] {
		r.Min.X = min(r.Min.X, p.X)
		r.Min.Y = min(r.Min.Y, p.Y)
		r.Max.X = max(r.Max.X, p.X)
		r.Max.Y = max(r.Max.Y, p.Y)
	}
	return r
}

// Scan runs the Code 128 reader over img. tryHarder widens the row search
// (and lets the reader try a rotated image) at the cost of latency.
//
// A miss is (Symbol{}, false); reader errors are misses, not failures.
// Each call builds its own reader, so Scan is safe for concurrent use.
func Scan(img image.Image, tryHarder bool) (Symbol, bool) {
	if img == nil || img.Bounds().Empty() {
		return Symbol{}, false
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return Symbol{}, false
	}

	var hints map[gozxing.DecodeHintType]interface{}
	if tryHarder {
		hints = map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		}
	}

	result, err := oned.NewCode128Reader().Decode(bmp, hints)
	if err != nil || result == nil {
		return Symbol{}, false
	}

	sym := Symbol{
		Text:   result.GetText(),
		Format: result.GetBarcodeFormat().String(),
	}
	origin := img.Bounds().Min
	for _, p := range result.GetResultPoints() {
		if p == nil {
			continue
		}
		sym.Points = append(sym.Points, image.Pt(
			origin.X+int(math.Round(p.GetX())),
			origin.Y+int(math.Round(p.GetY())),
		))
	}
	return sym, sym.Text != ""
}
