package detector

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/e7canasta/orion-ticket-capture/internal/synth"
	"github.com/e7canasta/orion-ticket-capture/internal/vision"
	"github.com/e7canasta/orion-ticket-capture/modules/framesupplier"
)

func iou(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := float64(inter.Dx() * inter.Dy())
	ua := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - ia
	return ia / ua
}

func toMat(t *testing.T, f *framesupplier.Frame) gocv.Mat {
	t.Helper()
	m, err := vision.FrameToMat(f)
	require.NoError(t, err)
	return m
}

// barsImage draws count uniform bars inside box on a white w×h frame.
func barsImage(w, h int, box image.Rectangle, count int) *framesupplier.Frame {
	f := synth.Blank(w, h)
	synth.Bars(f, box, count)
	return f
}

func TestExtend(t *testing.T) {
	ext := DefaultConfig().Extension
	bounds := image.Rect(0, 0, 600, 300)

	t.Run("inside bounds", func(t *testing.T) {
		box := image.Rect(150, 100, 450, 140) // 300x40
		got, meta := Extend(box, bounds, ext)

		assert.Equal(t, image.Rect(120, 92, 480, 180), got)
		assert.GreaterOrEqual(t, got.Dy(), 2*box.Dy())
		assert.LessOrEqual(t, got.Min.Y, box.Min.Y-int(0.2*float64(box.Dy())))
		assert.Equal(t, box, meta.Original)
		assert.Equal(t, got, meta.Extended)
		assert.Equal(t, 40, meta.DownPx)
		assert.Equal(t, 8, meta.TopPx)
		assert.Equal(t, 30, meta.LateralPx)
		assert.Equal(t, 100, meta.Percentage)
		assert.False(t, meta.Clipped)
	})

	t.Run("clipped at edges", func(t *testing.T) {
		box := image.Rect(10, 2, 590, 250)
		got, meta := Extend(box, bounds, ext)

		assert.Equal(t, bounds, got)
		assert.True(t, meta.Clipped)
		assert.True(t, got.In(bounds))
	})

	t.Run("empty box unchanged", func(t *testing.T) {
		got, _ := Extend(image.Rectangle{}, bounds, ext)
		assert.True(t, got.Empty())
	})
}

func TestDetect_DecodableSymbol(t *testing.T) {
	frame, truth, err := synth.Ticket(1200, 800, synth.Region{X: 0.25, Y: 0.3, W: 0.5, H: 0.15}, "12345678")
	require.NoError(t, err)
	img := toMat(t, frame)
	defer img.Close()

	d := New(DefaultConfig())
	res, ok := d.Detect(img)
	require.True(t, ok)

	assert.Equal(t, StrategyDirectSymbolScan, res.Strategy)
	assert.InDelta(t, 0.95, res.Confidence, 1e-9)
	assert.Equal(t, "12345678", res.SymbolText)
	assert.GreaterOrEqual(t, iou(res.Original, truth), 0.8,
		"original %v vs truth %v", res.Original, truth)

	assert.False(t, res.Region.Empty())
	assert.True(t, res.Region.In(image.Rect(0, 0, 1200, 800)))
	assert.True(t, res.Original.In(res.Region))

	require.NotNil(t, res.Crop)
	assert.Equal(t, res.Region.Dx(), res.Crop.Width)
	assert.Equal(t, res.Region.Dy(), res.Crop.Height)
	assert.Equal(t, 3, res.Crop.Channels)

	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.Successes)
	assert.Equal(t, uint64(1), stats.ByStrategy["direct_symbol_scan"])

	t.Logf("truth %v, original %v, region %v in %v", truth, res.Original, res.Region, res.Duration)
}

func TestDetect_BarPatternWithoutSymbol(t *testing.T) {
	truth := image.Rect(300, 300, 700, 380) // 400x80, W/H = 5
	frame := barsImage(1200, 800, truth, 40)
	img := toMat(t, frame)
	defer img.Close()

	d := New(DefaultConfig())
	res, ok := d.Detect(img)
	require.True(t, ok)

	assert.NotEqual(t, StrategyDirectSymbolScan, res.Strategy)
	assert.Empty(t, res.SymbolText)
	assert.GreaterOrEqual(t, res.Confidence, 0.4)
	assert.GreaterOrEqual(t, iou(res.Original, truth), 0.8,
		"strategy %s: original %v vs truth %v", res.Strategy, res.Original, truth)

	// Extension: height doubled plus the top margin, top edge moved up.
	h := res.Original.Dy()
	assert.GreaterOrEqual(t, res.Region.Dy(), 2*h)
	assert.LessOrEqual(t, res.Region.Min.Y, res.Original.Min.Y-int(0.2*float64(h)))
}

func TestDetect_GrayscaleInput(t *testing.T) {
	truth := image.Rect(300, 300, 700, 380)
	frame := barsImage(1200, 800, truth, 40)
	img := toMat(t, frame)
	defer img.Close()
	gray := vision.Gray(img)
	defer gray.Close()

	res, ok := New(DefaultConfig()).Detect(gray)
	require.True(t, ok)
	require.NotNil(t, res.Crop)
	assert.Equal(t, 1, res.Crop.Channels)
}

func TestDetect_BlankImageIsAMiss(t *testing.T) {
	img := toMat(t, synth.Blank(800, 600))
	defer img.Close()

	d := New(DefaultConfig())
	res, ok := d.Detect(img)
	assert.False(t, ok)
	assert.Equal(t, Result{}, res)

	empty := gocv.NewMat()
	defer empty.Close()
	_, ok = d.Detect(empty)
	assert.False(t, ok)

	stats := d.Stats()
	assert.Equal(t, uint64(0), stats.Successes)
	assert.Equal(t, uint64(2), stats.Misses)
	assert.Zero(t, stats.SuccessRate)
}

func TestDetectFast(t *testing.T) {
	truth := image.Rect(300, 300, 700, 380)
	img := toMat(t, barsImage(1200, 800, truth, 40))
	defer img.Close()

	d := New(DefaultConfig())
	res, ok := d.DetectFast(img)
	require.True(t, ok)
	assert.Equal(t, StrategyVerticalGradient, res.Strategy)
	assert.GreaterOrEqual(t, res.Confidence, 0.3)

	// Preview polling does not move the counters.
	stats := d.Stats()
	assert.Zero(t, stats.Successes)
	assert.Zero(t, stats.Misses)
}

func TestStrategies_Individually(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("vertical gradient", func(t *testing.T) {
		truth := image.Rect(300, 300, 700, 380)
		img := toMat(t, barsImage(1200, 800, truth, 40))
		defer img.Close()
		in := newInput(img)
		defer in.close()

		c, ok := scanGradient(in, cfg)
		require.True(t, ok)
		assert.GreaterOrEqual(t, c.confidence, cfg.MinConfidence)
		assert.GreaterOrEqual(t, iou(c.box, truth), 0.8, "box %v", c.box)
	})

	t.Run("horizontal projection", func(t *testing.T) {
		// Narrow span relative to the image so that it stands out of the
		// column profile by more than two standard deviations.
		truth := image.Rect(700, 260, 940, 320)
		img := toMat(t, barsImage(1600, 600, truth, 24))
		defer img.Close()
		in := newInput(img)
		defer in.close()

		c, ok := scanProjection(in, cfg)
		require.True(t, ok)
		assert.GreaterOrEqual(t, c.confidence, cfg.MinConfidence)
		assert.GreaterOrEqual(t, iou(c.box, truth), 0.7, "box %v", c.box)
	})

	t.Run("morphological contour", func(t *testing.T) {
		truth := image.Rect(300, 300, 700, 380)
		img := toMat(t, barsImage(1200, 800, truth, 40))
		defer img.Close()
		in := newInput(img)
		defer in.close()

		c, ok := scanContour(in, cfg)
		require.True(t, ok)
		assert.GreaterOrEqual(t, c.confidence, cfg.MinConfidence)
		assert.GreaterOrEqual(t, iou(c.box, truth), 0.8, "box %v", c.box)
	})

	t.Run("blank image", func(t *testing.T) {
		img := toMat(t, synth.Blank(640, 480))
		defer img.Close()
		in := newInput(img)
		defer in.close()

		_, ok := scanGradient(in, cfg)
		assert.False(t, ok)
		_, ok = scanProjection(in, cfg)
		assert.False(t, ok)
		_, ok = scanContour(in, cfg)
		assert.False(t, ok)
		_, ok = scanSymbol(in)
		assert.False(t, ok)
	})
}

func TestAnnotate(t *testing.T) {
	truth := image.Rect(300, 300, 700, 380)
	img := toMat(t, barsImage(1200, 800, truth, 40))
	defer img.Close()

	res, ok := New(DefaultConfig()).Detect(img)
	require.True(t, ok)

	Annotate(&img, res)
	px := img.GetVecbAt(res.Region.Min.Y, res.Region.Min.X)
	assert.Equal(t, uint8(0), px[0], "blue")
	assert.Equal(t, uint8(255), px[1], "green")
	assert.Equal(t, uint8(0), px[2], "red")

	// Nothing to draw for a miss.
	before := img.Clone()
	defer before.Close()
	Annotate(&img, Result{})
	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(img, before, &diff)
	gray := vision.Gray(diff)
	defer gray.Close()
	assert.Zero(t, gocv.CountNonZero(gray))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.MinConfidence = 0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.Extension.Down = -1
	assert.Error(t, bad.Validate())

	// New falls back to defaults instead of failing.
	d := New(Config{})
	assert.Equal(t, DefaultConfig(), d.Config())
}

func TestStrategyString(t *testing.T) {
	assert.Equal(t, "direct_symbol_scan", StrategyDirectSymbolScan.String())
	assert.Equal(t, "morphological_contour", StrategyMorphologicalContour.String())
	assert.Equal(t, "none", Strategy(42).String())
}

func TestRunsAbove(t *testing.T) {
	row := func(lead, span, tail int) []float64 {
		v := make([]float64, lead+span+tail)
		for i := lead; i < lead+span; i++ {
			v[i] = 1
		}
		return v
	}

	tests := []struct {
		name string
		v    []float64
		want [][2]int
	}{
		{"span of exactly minLen", row(10, 50, 10), [][2]int{{10, 60}}},
		{"one short of minLen", row(10, 49, 10), nil},
		{"exactly minLen at the end", row(10, 50, 0), [][2]int{{10, 60}}},
		{"longer span", row(0, 80, 5), [][2]int{{0, 80}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, runsAbove(tt.v, 0.5, 50))
		})
	}
}
