package detector

import (
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/e7canasta/orion-ticket-capture/internal/vision"
)

// gradientCloseWidth scales the bridging kernel with the image so that bar
// gaps close at both preview and native resolution.
func gradientCloseWidth(w int) int {
	return clamp(w/80, 21, 61)
}

// scanGradient finds blocks of dense vertical edges: CLAHE, horizontal Sobel,
// adaptive threshold, horizontal close, connected components.
func scanGradient(in *input, cfg Config) (candidate, bool) {
	clahe := gocv.NewCLAHEWithParams(3.0, image.Pt(8, 8))
	defer clahe.Close()
	eq := gocv.NewMat()
	defer eq.Close()
	clahe.Apply(in.gray, &eq)

	grad := gocv.NewMat()
	defer grad.Close()
	gocv.Sobel(eq, &grad, gocv.MatTypeCV32F, 1, 0, 3, 1, 0, gocv.BorderDefault)

	minVal, maxVal, _, _ := gocv.MinMaxLoc(grad)
	peak := math.Max(math.Abs(float64(minVal)), math.Abs(float64(maxVal)))
	if peak == 0 {
		return candidate{}, false
	}
	mag := gocv.NewMat()
	defer mag.Close()
	gocv.ConvertScaleAbs(grad, &mag, 255/peak, 0)

	// Negative C: flat areas (gradient equal to the local mean) go black.
	edges := gocv.NewMat()
	defer edges.Close()
	gocv.AdaptiveThreshold(mag, &edges, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary, 11, -5)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(gradientCloseWidth(in.w), 3))
	defer kernel.Close()
	closed := gocv.NewMat()
	defer closed.Close()
	gocv.MorphologyEx(edges, &closed, gocv.MorphClose, kernel)
	gocv.MorphologyEx(closed, &closed, gocv.MorphClose, kernel)

	labels := gocv.NewMat()
	defer labels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()
	n := gocv.ConnectedComponentsWithStats(closed, &labels, &stats, &centroids)

	mask := vision.Pixels(closed)
	imgArea := float64(in.w * in.h)

	var best candidate
	for i := 1; i < n; i++ {
		x := int(stats.GetIntAt(i, 0))
		y := int(stats.GetIntAt(i, 1))
		w := int(stats.GetIntAt(i, 2))
		h := int(stats.GetIntAt(i, 3))
		area := float64(stats.GetIntAt(i, 4))

		if w < cfg.MinWidth || h < cfg.MinHeight {
			continue
		}
		if float64(w) > float64(in.w)*0.8 || float64(h) > float64(in.h)*0.5 {
			continue
		}
		best.evaluated++

		aspect := float64(w) / float64(h)
		if aspect < 1.5 || aspect > 15.0 {
			continue
		}

		box := image.Rect(x, y, x+w, y+h)
		density := in.inkDensity(box)
		if density < 0.2 || density > 0.8 {
			continue
		}

		coverage := verticalCoverage(mask, in.w, box)
		if coverage < 0.4 {
			continue
		}

		score := math.Min(aspect, 8.0)/8.0*0.3 +
			math.Min(density, 0.6)/0.6*0.2 +
			coverage*0.3 +
			math.Min(area/(imgArea*0.1), 1.0)*0.2

		if score > best.confidence {
			best.box = box
			best.confidence = score
		}
	}
	return best, !best.box.Empty()
}

// verticalCoverage is the fraction of columns in r whose set pixels cover
// more than 30% of r's height.
func verticalCoverage(mask []byte, stride int, r image.Rectangle) float64 {
	if r.Empty() {
		return 0
	}
	covered := 0
	limit := 0.3 * float64(r.Dy())
	for x := r.Min.X; x < r.Max.X; x++ {
		set := 0
		for y := r.Min.Y; y < r.Max.Y; y++ {
			if mask[y*stride+x] != 0 {
				set++
			}
		}
		if float64(set) > limit {
			covered++
		}
	}
	return float64(covered) / float64(r.Dx())
}
