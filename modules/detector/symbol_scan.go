package detector

import (
	"image"

	"github.com/e7canasta/orion-ticket-capture/internal/symbol"
	"github.com/e7canasta/orion-ticket-capture/internal/vision"
)

const (
	// symbolConfidence is fixed: a symbol that decodes is ground truth.
	symbolConfidence = 0.95
	// rowMatchRatio is how many of the scan row's transitions a row needs
	// to still count as part of the bars.
	rowMatchRatio = 0.8
)

// scanSymbol reads the symbol straight off the full image and turns the
// reader's row points into a tight box around the bars.
func scanSymbol(in *input) (candidate, bool) {
	sym, ok := symbol.Scan(vision.GrayImage(in.gray), true)
	if !ok || len(sym.Points) < 2 {
		return candidate{}, false
	}

	box := refineSymbolBox(in, sym.Bounds())
	if box.Empty() {
		return candidate{}, false
	}
	return candidate{box: box, confidence: symbolConfidence, text: sym.Text, evaluated: 1}, true
}

// refineSymbolBox grows the zero-height row segment between the start and
// stop pattern centres to the full bar area: outward along the row until a
// quiet zone, then up and down while rows keep the same bar rhythm.
func refineSymbolBox(in *input, seg image.Rectangle) image.Rectangle {
	x1, x2 := clamp(seg.Min.X, 0, in.w-1), clamp(seg.Max.X, 0, in.w-1)
	row := clamp((seg.Min.Y+seg.Max.Y)/2, 0, in.h-1)
	if x2 <= x1 {
		return image.Rectangle{}
	}

	mask := in.inkMask()
	ink := func(x, y int) bool { return mask[y*in.w+x] == 0 }

	// A Code 128 character is 11 modules in 6 runs, so the mean run on the
	// scan row is ~1.8 modules. Three modules is wider than any space met
	// while walking out of the start and stop patterns and well inside the
	// 10-module quiet zone.
	runs := 1
	for x := x1 + 1; x <= x2; x++ {
		if ink(x, row) != ink(x-1, row) {
			runs++
		}
	}
	module := float64(x2-x1) / float64(runs) / 1.8
	gap := max(3, int(3*module))

	walk := func(start, dir int) int {
		last, run := start, 0
		for x := start; x >= 0 && x < in.w; x += dir {
			if ink(x, row) {
				last, run = x, 0
				continue
			}
			run++
			if run > gap {
				break
			}
		}
		return last
	}
	left, right := walk(x1, -1), walk(x2, +1)

	transitions := func(y int) int {
		n := 0
		prev := ink(left, y)
		for x := left + 1; x <= right; x++ {
			cur := ink(x, y)
			if cur != prev {
				n++
			}
			prev = cur
		}
		return n
	}

	ref := transitions(row)
	if ref < 4 {
		// Not enough structure on the scan row to follow; keep a thin band.
		return image.Rect(left, max(row-1, 0), right+1, min(row+2, in.h))
	}
	need := int(float64(ref) * rowMatchRatio)

	top := row
	for y := row - 1; y >= 0 && transitions(y) >= need; y-- {
		top = y
	}
	bottom := row
	for y := row + 1; y < in.h && transitions(y) >= need; y++ {
		bottom = y
	}
	return image.Rect(left, top, right+1, bottom+1)
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
