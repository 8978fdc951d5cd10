// Package decoder reads the linear symbol inside a detected region.
//
// The ROI is tried under five preprocessings in a fixed order (gray, CLAHE,
// Otsu binary, sharpened, inverted binary). The first variant that yields
// text of at least MinLength characters after trimming wins.
package decoder

import (
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/e7canasta/orion-ticket-capture/internal/symbol"
	"github.com/e7canasta/orion-ticket-capture/internal/vision"
	"github.com/e7canasta/orion-ticket-capture/modules/framesupplier"
)

// Decoder is safe for concurrent use.
type Decoder struct {
	cfg Config

	successes atomic.Uint64
	failures  atomic.Uint64
	byVariant [len(variantNames)]atomic.Uint64
}

// New creates a decoder. An invalid config falls back to DefaultConfig.
func New(cfg Config) *Decoder {
	if err := cfg.Validate(); err != nil {
		slog.Warn("decoder: invalid config, using defaults", "error", err)
		cfg = DefaultConfig()
	}
	return &Decoder{cfg: cfg}
}

// Decode tries every variant of roi. roi is not modified.
func (d *Decoder) Decode(roi gocv.Mat) (Code, bool) {
	start := time.Now()
	if roi.Empty() {
		d.failures.Add(1)
		return Code{}, false
	}

	gray := vision.Gray(roi)
	defer gray.Close()
	binary := otsu(gray)
	defer binary.Close()

	for i, v := range variants {
		text, format, ok := d.scan(v, gray, binary)
		if !ok {
			continue
		}
		text = strings.TrimSpace(text)
		if len(text) < d.cfg.MinLength {
			slog.Debug("decoder: text rejected by length guard",
				"variant", v.String(),
				"length", len(text),
				"min_length", d.cfg.MinLength,
			)
			continue
		}

		code := Code{
			Text:              text,
			LengthGuardPassed: true,
			Variant:           v,
			Format:            format,
			Attempts:          i + 1,
			Duration:          time.Since(start),
		}
		d.successes.Add(1)
		d.byVariant[v].Add(1)
		slog.Info("decoder: code decoded",
			"code", code.Text,
			"variant", v.String(),
			"attempt", code.Attempts,
			"duration_ms", code.Duration.Milliseconds(),
		)
		return code, true
	}

	d.failures.Add(1)
	slog.Debug("decoder: no code in region", "duration_ms", time.Since(start).Milliseconds())
	return Code{}, false
}

func (d *Decoder) scan(v Variant, gray, binary gocv.Mat) (string, string, bool) {
	m := render(v, gray, binary)
	defer m.Close()
	if m.Empty() {
		return "", "", false
	}
	sym, ok := symbol.Scan(vision.GrayImage(m), d.cfg.TryHarder)
	if !ok {
		return "", "", false
	}
	return sym.Text, sym.Format, true
}

// DecodeFrame converts f and runs Decode.
func (d *Decoder) DecodeFrame(f *framesupplier.Frame) (Code, bool) {
	m, err := vision.FrameToMat(f)
	if err != nil {
		d.failures.Add(1)
		return Code{}, false
	}
	defer m.Close()
	return d.Decode(m)
}

// Stats returns the running counters.
func (d *Decoder) Stats() Stats {
	s := Stats{
		Successes: d.successes.Load(),
		Failures:  d.failures.Load(),
		ByVariant: make(map[string]uint64, len(variants)),
	}
	for _, v := range variants {
		s.ByVariant[v.String()] = d.byVariant[v].Load()
	}
	if total := s.Successes + s.Failures; total > 0 {
		s.SuccessRate = float64(s.Successes) / float64(total) * 100
	}
	return s
}
