package detector

import (
	"fmt"
	"image"
	"time"

	"github.com/e7canasta/orion-ticket-capture/modules/framesupplier"
)

// Strategy identifies which cascade stage produced a detection.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyDirectSymbolScan
	StrategyVerticalGradient
	StrategyHorizontalProjection
	StrategyMorphologicalContour
)

// strategies lists the cascade in execution order.
var strategies = []Strategy{
	StrategyDirectSymbolScan,
	StrategyVerticalGradient,
	StrategyHorizontalProjection,
	StrategyMorphologicalContour,
}

var strategyNames = [...]string{
	StrategyNone:                 "none",
	StrategyDirectSymbolScan:     "direct_symbol_scan",
	StrategyVerticalGradient:     "vertical_gradient",
	StrategyHorizontalProjection: "horizontal_projection",
	StrategyMorphologicalContour: "morphological_contour",
}

func (s Strategy) String() string {
	if s < 0 || int(s) >= len(strategyNames) {
		return "none"
	}
	return strategyNames[s]
}

// Extension is the margin added around a detected box, as fractions of the
// box's own size.
type Extension struct {
	Down    float64 // below the box, fraction of its height
	Top     float64 // above the box, fraction of its height
	Lateral float64 // each side, fraction of its width
}

// Config holds the detector thresholds.
type Config struct {
	MinWidth       int
	MinHeight      int
	MinConfidence  float64 // Detect acceptance threshold
	FastConfidence float64 // DetectFast acceptance threshold
	Extension      Extension
}

// DefaultConfig returns the tuned station thresholds.
func DefaultConfig() Config {
	return Config{
		MinWidth:       100,
		MinHeight:      30,
		MinConfidence:  0.4,
		FastConfidence: 0.3,
		Extension:      Extension{Down: 1.0, Top: 0.2, Lateral: 0.1},
	}
}

// Validate rejects thresholds that would make every detection fail or pass.
func (c Config) Validate() error {
	if c.MinWidth <= 0 || c.MinHeight <= 0 {
		return fmt.Errorf("detector: minimum size must be positive, got %dx%d", c.MinWidth, c.MinHeight)
	}
	if c.MinConfidence <= 0 || c.MinConfidence > 1 {
		return fmt.Errorf("detector: min confidence must be in (0, 1], got %.2f", c.MinConfidence)
	}
	if c.FastConfidence <= 0 || c.FastConfidence > 1 {
		return fmt.Errorf("detector: fast confidence must be in (0, 1], got %.2f", c.FastConfidence)
	}
	if c.Extension.Down < 0 || c.Extension.Top < 0 || c.Extension.Lateral < 0 {
		return fmt.Errorf("detector: extension margins must be >= 0, got %+v", c.Extension)
	}
	return nil
}

// ExtensionMetadata records how the raw box was grown.
type ExtensionMetadata struct {
	Original   image.Rectangle
	Extended   image.Rectangle
	TopPx      int
	DownPx     int
	LateralPx  int
	Clipped    bool // true when image bounds cut the requested margins
	Percentage int  // Down expressed as a percentage, for labels
}

// Result is one accepted detection.
type Result struct {
	// Region is the extended box, the usable ROI.
	Region image.Rectangle
	// Original is the raw box found by the strategy.
	Original   image.Rectangle
	Strategy   Strategy
	Confidence float64
	Extension  ExtensionMetadata
	// Crop holds the pixels of Region (same channel count as the input).
	Crop *framesupplier.Frame
	// SymbolText is set when the direct symbol scan already read the code.
	SymbolText string
	// Candidates is the number of candidates the winning strategy evaluated.
	Candidates int
	Duration   time.Duration
}

// Stats is a snapshot of detector counters.
type Stats struct {
	Successes   uint64
	Misses      uint64
	ByStrategy  map[string]uint64
	SuccessRate float64 // percent
}
