package synth

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegionAbs(t *testing.T) {
	r := Region{X: 0.1, Y: 0.75, W: 0.8, H: 0.12}
	assert.Equal(t, image.Rect(384, 1620, 3456, 1879), r.Abs(3840, 2160))

	overflow := Region{X: 0.9, Y: 0.9, W: 0.5, H: 0.5}
	assert.Equal(t, image.Rect(90, 90, 100, 100), overflow.Abs(100, 100))
}

func TestTicketDrawsSymbolInsideRegion(t *testing.T) {
	region := Region{X: 0.1, Y: 0.6, W: 0.8, H: 0.2}
	frame, bars, err := Ticket(800, 400, region, "12345678")
	require.NoError(t, err)
	require.True(t, frame.Valid())

	box := region.Abs(800, 400)
	assert.True(t, bars.In(box), "bars %v inside region %v", bars, box)
	assert.Greater(t, bars.Dx(), 100)

	// Leftmost bar column is black, pixel just left of it is white.
	mid := bars.Min.Y + bars.Dy()/2
	at := func(x, y int) byte { return frame.Data[y*frame.Stride()+x*3] }
	assert.Equal(t, byte(0), at(bars.Min.X, mid))
	assert.Equal(t, byte(0xff), at(bars.Min.X-1, mid))
	assert.Equal(t, byte(0xff), at(10, 10))
}

func TestBars(t *testing.T) {
	frame := Blank(200, 100)
	Bars(frame, image.Rect(20, 20, 180, 60), 8)

	at := func(x, y int) byte { return frame.Data[y*frame.Stride()+x*3] }
	assert.Equal(t, byte(0), at(20, 30))
	assert.Equal(t, byte(0xff), at(35, 30), "gap between first and second bar")
	assert.Equal(t, byte(0xff), at(20, 70), "below the block")
}
