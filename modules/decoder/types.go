package decoder

import (
	"fmt"
	"time"
)

// Variant identifies one preprocessing of the ROI handed to the reader.
type Variant int

const (
	VariantGray Variant = iota
	VariantCLAHE
	VariantBinary
	VariantSharpened
	VariantInverted
)

var variantNames = [...]string{
	VariantGray:      "gray",
	VariantCLAHE:     "clahe",
	VariantBinary:    "binary",
	VariantSharpened: "sharpened",
	VariantInverted:  "inverted",
}

// variants is the fixed attempt order.
var variants = []Variant{VariantGray, VariantCLAHE, VariantBinary, VariantSharpened, VariantInverted}

func (v Variant) String() string {
	if v < 0 || int(v) >= len(variantNames) {
		return "unknown"
	}
	return variantNames[v]
}

// Config controls acceptance of decoded text.
type Config struct {
	// MinLength is the minimum trimmed length of an accepted code.
	MinLength int

	// TryHarder widens the reader's row search on every variant.
	TryHarder bool
}

// DefaultConfig returns the station defaults.
func DefaultConfig() Config {
	return Config{
		MinLength: 8,
		TryHarder: true,
	}
}

// Validate rejects a non-positive length guard.
func (c Config) Validate() error {
	if c.MinLength <= 0 {
		return fmt.Errorf("decoder: min length must be > 0, got %d", c.MinLength)
	}
	return nil
}

// Code is an accepted decode.
type Code struct {
	Text              string
	LengthGuardPassed bool
	Variant           Variant
	Format            string

	// Attempts is the number of variants tried, the winning one included.
	Attempts int
	Duration time.Duration
}

// Stats are running decoder counters.
type Stats struct {
	Successes   uint64
	Failures    uint64
	ByVariant   map[string]uint64
	SuccessRate float64 // percent
}
