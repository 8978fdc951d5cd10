// Package detector locates the barcode region in an arbitrary photograph.
//
// Detection is a cascade of four strategies, cheapest and most certain
// first; the first one whose best candidate clears its threshold wins:
//
//  1. direct_symbol_scan     the symbol reader itself (confidence 0.95)
//  2. vertical_gradient      dense vertical edges → connected components
//  3. horizontal_projection  oscillating column profile → row profile
//  4. morphological_contour  Canny → dilate → close → external contours
//
// Every accepted box is extended (down 100%, top 20%, sides 10% by default)
// so that the printed digits under the bars stay inside the ROI.
//
// A miss is (Result{}, false), never an error. Detectors hold only atomic
// counters and are safe for concurrent use.
package detector

import (
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/e7canasta/orion-ticket-capture/internal/vision"
	"github.com/e7canasta/orion-ticket-capture/modules/framesupplier"
)

// Detector runs the detection cascade.
type Detector struct {
	cfg Config

	successes  atomic.Uint64
	misses     atomic.Uint64
	byStrategy [len(strategyNames)]atomic.Uint64
}

// New creates a detector. Invalid thresholds fall back to DefaultConfig
// with a warning; use Config.Validate to reject them up front.
func New(cfg Config) *Detector {
	if err := cfg.Validate(); err != nil {
		slog.Warn("detector: invalid config, using defaults", "error", err)
		cfg = DefaultConfig()
	}
	return &Detector{cfg: cfg}
}

// Config returns the thresholds in use.
func (d *Detector) Config() Config {
	return d.cfg
}

// Detect runs all four strategies with the MinConfidence threshold.
func (d *Detector) Detect(img gocv.Mat) (Result, bool) {
	return d.run(img, strategies, d.cfg.MinConfidence, false)
}

// DetectFast runs only the symbol scan and the gradient strategy with the
// relaxed FastConfidence threshold, for preview polling.
func (d *Detector) DetectFast(img gocv.Mat) (Result, bool) {
	return d.run(img, strategies[:2], d.cfg.FastConfidence, true)
}

// DetectFrame converts f and runs Detect.
func (d *Detector) DetectFrame(f *framesupplier.Frame) (Result, bool) {
	m, err := vision.FrameToMat(f)
	if err != nil {
		slog.Debug("detector: cannot convert frame", "error", err)
		d.misses.Add(1)
		return Result{}, false
	}
	defer m.Close()
	return d.Detect(m)
}

// DetectFrameFast converts f and runs DetectFast.
func (d *Detector) DetectFrameFast(f *framesupplier.Frame) (Result, bool) {
	m, err := vision.FrameToMat(f)
	if err != nil {
		return Result{}, false
	}
	defer m.Close()
	return d.DetectFast(m)
}

func (d *Detector) run(img gocv.Mat, cascade []Strategy, threshold float64, fast bool) (Result, bool) {
	start := time.Now()

	if img.Empty() {
		slog.Error("detector: empty image")
		d.miss(fast)
		return Result{}, false
	}

	in := newInput(img)
	defer in.close()

	for _, s := range cascade {
		c, ok := d.runStrategy(s, in)
		if !ok {
			continue
		}
		// The symbol scan is authoritative: it is never held to the threshold.
		if s != StrategyDirectSymbolScan && c.confidence < threshold {
			slog.Debug("detector: candidate below threshold",
				"strategy", s.String(),
				"confidence", c.confidence,
				"threshold", threshold,
			)
			continue
		}

		region, meta := Extend(c.box, in.bounds(), d.cfg.Extension)
		if s == StrategyDirectSymbolScan {
			if region.Dx() < d.cfg.MinWidth || region.Dy() < d.cfg.MinHeight {
				slog.Debug("detector: symbol region too small", "region", region)
				continue
			}
		}

		res := Result{
			Region:     region,
			Original:   c.box,
			Strategy:   s,
			Confidence: c.confidence,
			Extension:  meta,
			SymbolText: c.text,
			Candidates: c.evaluated,
		}
		res.Crop = cropFrame(img, region)
		res.Duration = time.Since(start)

		if !fast {
			d.successes.Add(1)
			d.byStrategy[s].Add(1)
			slog.Info("detector: region found",
				"strategy", s.String(),
				"confidence", res.Confidence,
				"original", res.Original.String(),
				"region", res.Region.String(),
				"duration_ms", res.Duration.Milliseconds(),
			)
		}
		return res, true
	}

	d.miss(fast)
	if !fast {
		slog.Warn("detector: no region found", "duration_ms", time.Since(start).Milliseconds())
	}
	return Result{}, false
}

func (d *Detector) runStrategy(s Strategy, in *input) (candidate, bool) {
	switch s {
	case StrategyDirectSymbolScan:
		return scanSymbol(in)
	case StrategyVerticalGradient:
		return scanGradient(in, d.cfg)
	case StrategyHorizontalProjection:
		return scanProjection(in, d.cfg)
	case StrategyMorphologicalContour:
		return scanContour(in, d.cfg)
	}
	return candidate{}, false
}

// miss counts only full detections; preview polling would drown the ratio.
func (d *Detector) miss(fast bool) {
	if !fast {
		d.misses.Add(1)
	}
}

// Stats returns detection counters (full Detect calls only).
func (d *Detector) Stats() Stats {
	s := Stats{
		Successes:  d.successes.Load(),
		Misses:     d.misses.Load(),
		ByStrategy: make(map[string]uint64, len(strategies)),
	}
	for _, st := range strategies {
		s.ByStrategy[st.String()] = d.byStrategy[st].Load()
	}
	if total := s.Successes + s.Misses; total > 0 {
		s.SuccessRate = float64(s.Successes) / float64(total) * 100
	}
	return s
}

func cropFrame(img gocv.Mat, r image.Rectangle) *framesupplier.Frame {
	roi := vision.Crop(img, r)
	defer roi.Close()
	if roi.Empty() {
		return nil
	}
	f, err := vision.MatToFrame(roi)
	if err != nil {
		slog.Debug("detector: cannot copy region", "error", err)
		return nil
	}
	return f
}
