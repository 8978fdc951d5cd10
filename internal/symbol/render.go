package symbol

import (
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
)

// Render draws text as a Code 128 symbol, black bars on white, including the
// writer's default quiet zone. The writer picks the largest integer module
// width that fits width; the returned image may be wider than requested when
// width is too small for the payload.
func Render(text string, width, height int) (*image.Gray, error) {
	if text == "" {
		return nil, fmt.Errorf("symbol: empty payload")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("symbol: invalid size %dx%d", width, height)
	}

	matrix, err := oned.NewCode128Writer().Encode(text, gozxing.BarcodeFormat_CODE_128, width, height, nil)
	if err != nil {
		return nil, fmt.Errorf("symbol: encode %q: %w", text, err)
	}

	w, h := matrix.GetWidth(), matrix.GetHeight()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for x := 0; x < w; x++ {
			if matrix.Get(x, y) {
				row[x] = 0
			} else {
				row[x] = 0xff
			}
		}
	}
	return img, nil
}
