package detector

import (
	"image"
)

// Extend grows box by ext and clips it to bounds. The returned rectangle is
// the usable ROI: it keeps the printed digits under the bars.
func Extend(box, bounds image.Rectangle, ext Extension) (image.Rectangle, ExtensionMetadata) {
	w, h := box.Dx(), box.Dy()
	meta := ExtensionMetadata{
		Original:   box,
		TopPx:      int(float64(h) * ext.Top),
		DownPx:     int(float64(h) * ext.Down),
		LateralPx:  int(float64(w) * ext.Lateral),
		Percentage: int(ext.Down * 100),
	}
	if w <= 0 || h <= 0 {
		meta.Extended = box
		return box, meta
	}

	want := image.Rect(
		box.Min.X-meta.LateralPx,
		box.Min.Y-meta.TopPx,
		box.Max.X+meta.LateralPx,
		box.Max.Y+meta.DownPx,
	)
	got := want.Intersect(bounds)
	meta.Extended = got
	meta.Clipped = got != want
	return got, meta
}
