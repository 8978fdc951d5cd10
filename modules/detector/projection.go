package detector

import (
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/e7canasta/orion-ticket-capture/internal/vision"
)

const (
	projectionSmooth   = 20 // box filter width over the column profile
	projectionMinSpan  = 50 // columns
	projectionMinBlock = 10 // rows
)

// scanProjection looks for a horizontal span where the column-mean profile
// oscillates (bars), then bounds its height with a row profile of
// horizontal gradient energy inside that span.
func scanProjection(in *input, cfg Config) (candidate, bool) {
	eq := gocv.NewMat()
	defer eq.Close()
	gocv.EqualizeHist(in.gray, &eq)
	pix := vision.Pixels(eq)
	w, h := in.w, in.h

	cols := make([]float64, w)
	for y := 0; y < h; y++ {
		row := pix[y*w : (y+1)*w]
		for x, v := range row {
			cols[x] += float64(v)
		}
	}
	for x := range cols {
		cols[x] /= float64(h)
	}

	variation := smooth(absGradient(cols), projectionSmooth)
	mean, std := meanStd(variation)
	spans := runsAbove(variation, mean+2*std, projectionMinSpan)

	var best candidate
	for _, span := range spans {
		x0, x1 := span[0], span[1]
		sw := x1 - x0
		if sw < cfg.MinWidth {
			continue
		}
		best.evaluated++

		energy := make([]float64, h)
		for y := 0; y < h; y++ {
			row := pix[y*w : (y+1)*w]
			var sum float64
			for x := x0 + 1; x < x1; x++ {
				sum += math.Abs(float64(row[x]) - float64(row[x-1]))
			}
			energy[y] = sum / float64(sw)
		}
		emean, estd := meanStd(energy)
		blocks := runsAbove(energy, emean+estd, projectionMinBlock)
		if len(blocks) == 0 {
			continue
		}

		longest := blocks[0]
		for _, b := range blocks[1:] {
			if b[1]-b[0] > longest[1]-longest[0] {
				longest = b
			}
		}
		bh := longest[1] - longest[0]
		if bh < cfg.MinHeight {
			continue
		}

		aspect := float64(sw) / float64(bh)
		conf := math.Min(1.0, math.Min(aspect, 10.0)/10.0*0.7+0.3)
		if conf > best.confidence {
			best.box = image.Rect(x0, longest[0], x1, longest[1])
			best.confidence = conf
		}
	}
	return best, !best.box.Empty()
}

// absGradient is |central difference| with one-sided ends.
func absGradient(v []float64) []float64 {
	n := len(v)
	out := make([]float64, n)
	if n < 2 {
		return out
	}
	out[0] = math.Abs(v[1] - v[0])
	out[n-1] = math.Abs(v[n-1] - v[n-2])
	for i := 1; i < n-1; i++ {
		out[i] = math.Abs(v[i+1]-v[i-1]) / 2
	}
	return out
}

// smooth applies a centred box filter of width k (zero padded, same length).
func smooth(v []float64, k int) []float64 {
	n := len(v)
	out := make([]float64, n)
	prefix := make([]float64, n+1)
	for i, x := range v {
		prefix[i+1] = prefix[i] + x
	}
	half := k / 2
	for i := range out {
		lo := max(0, i-half)
		hi := min(n, i-half+k)
		out[i] = (prefix[hi] - prefix[lo]) / float64(k)
	}
	return out
}

func meanStd(v []float64) (float64, float64) {
	if len(v) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	mean := sum / float64(len(v))
	var sq float64
	for _, x := range v {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq / float64(len(v)))
}

// runsAbove returns [start, end) index pairs where v > threshold for more
// at least minLen consecutive samples.
func runsAbove(v []float64, threshold float64, minLen int) [][2]int {
	var runs [][2]int
	start := -1
	for i, x := range v {
		switch {
		case x > threshold && start < 0:
			start = i
		case x <= threshold && start >= 0:
			if i-start >= minLen {
				runs = append(runs, [2]int{start, i})
			}
			start = -1
		}
	}
	if start >= 0 && len(v)-start >= minLen {
		runs = append(runs, [2]int{start, len(v)})
	}
	return runs
}
