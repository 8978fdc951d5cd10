package control

import (
	"image"
	"image/color"
	"image/jpeg"
	"io"

	"golang.org/x/image/draw"

	"github.com/e7canasta/orion-ticket-capture/modules/framesupplier"
)

var overlayColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// encodePreview writes f as JPEG, outlining region when it is not empty.
func encodePreview(w io.Writer, f *framesupplier.Frame, region image.Rectangle, quality int) error {
	img := f.Image()
	if !region.Empty() {
		rgba, ok := img.(*image.RGBA)
		if !ok {
			rgba = image.NewRGBA(img.Bounds())
			draw.Draw(rgba, rgba.Bounds(), img, image.Point{}, draw.Src)
		}
		outline(rgba, region.Intersect(rgba.Bounds()), 2)
		img = rgba
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}

func outline(img *image.RGBA, r image.Rectangle, thickness int) {
	if r.Empty() {
		return
	}
	src := image.NewUniform(overlayColor)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness),
		image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y),
		image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(img, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}
