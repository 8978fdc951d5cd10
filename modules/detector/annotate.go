package detector

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	extendedColor = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	originalColor = color.RGBA{R: 255, G: 0, B: 0, A: 0}
)

// Annotate draws r onto img in place: the extended region in green, the raw
// box in red and a label with strategy, extension and confidence. Thickness
// scales with the image so the overlay stays visible on 4K frames.
func Annotate(img *gocv.Mat, r Result) {
	if img == nil || img.Empty() || r.Region.Empty() {
		return
	}
	scale := max(1, max(img.Cols(), img.Rows())/1280)

	gocv.Rectangle(img, r.Region, extendedColor, 3*scale)
	if !r.Original.Empty() {
		gocv.Rectangle(img, r.Original, originalColor, 2*scale)
	}

	label := fmt.Sprintf("%s (+%d%%) (%.2f)", r.Strategy, r.Extension.Percentage, r.Confidence)
	if r.SymbolText != "" {
		label += " " + r.SymbolText
	}
	org := image.Pt(r.Region.Min.X, max(r.Region.Min.Y-10*scale, 20*scale))
	gocv.PutText(img, label, org, gocv.FontHersheySimplex, 0.6*float64(scale), extendedColor, 2*scale)
}
