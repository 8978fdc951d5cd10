package symbol

import (
	"image"
	"image/draw"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderThenScan(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"numeric", "12345678"},
		{"long numeric", "7501234567890"},
		{"alphanumeric", "TICKET-0042"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Render(tt.text, 600, 120)
			require.NoError(t, err)

			sym, ok := Scan(img, false)
			require.True(t, ok, "rendered symbol should decode")
			assert.Equal(t, tt.text, sym.Text)
			assert.Equal(t, "CODE_128", sym.Format)
			assert.Len(t, sym.Points, 2)
		})
	}
}

func TestScanReportsPositionInsideLargerImage(t *testing.T) {
	bars, err := Render("12345678", 400, 80)
	require.NoError(t, err)

	canvas := image.NewGray(image.Rect(0, 0, 1000, 600))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	at := image.Pt(300, 250)
	draw.Draw(canvas, bars.Bounds().Add(at), bars, image.Point{}, draw.Src)

	sym, ok := Scan(canvas, true)
	require.True(t, ok)

	box := sym.Bounds()
	placed := bars.Bounds().Add(at)
	assert.True(t, box.Min.X >= placed.Min.X && box.Max.X <= placed.Max.X, "points %v inside %v", box, placed)
	assert.True(t, box.Min.Y >= placed.Min.Y && box.Max.Y <= placed.Max.Y, "points %v inside %v", box, placed)
}

func TestScanNoiseIsMiss(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	img := image.NewGray(image.Rect(0, 0, 320, 120))
	rng.Read(img.Pix)

	_, ok := Scan(img, true)
	assert.False(t, ok)
}

func TestRenderRejectsBadInput(t *testing.T) {
	_, err := Render("", 100, 10)
	assert.Error(t, err)

	_, err = Render("12345678", 0, 10)
	assert.Error(t, err)
}
