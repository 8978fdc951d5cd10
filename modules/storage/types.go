package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/e7canasta/orion-ticket-capture/modules/framesupplier"
)

var (
	// ErrNoCode is returned by Save when the bundle carries no decoded code.
	ErrNoCode = errors.New("storage: no barcode to save")

	// ErrTooManyCollisions is returned when every _N suffix up to
	// maxCollisions is already taken in the date directory.
	ErrTooManyCollisions = errors.New("storage: too many file name collisions")

	// ErrEmptyImage is returned for a nil or malformed frame.
	ErrEmptyImage = errors.New("storage: empty image")
)

// File kinds, also the {tipo} placeholder values.
const (
	KindFront    = "frente"
	KindBack     = "reverso"
	KindROI      = "roi"
	KindMetadata = "metadata"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "20060102_150405"
	failedDir       = "fallidas"
	maxCollisions   = 100
	failedQuality   = 80
)

// Config describes where and how captures are written.
type Config struct {
	BaseDir     string
	Format      string // "jpg" or "png"
	JPEGQuality int    // 1-100, jpg only

	// Name patterns accept {tipo}, {codigo} and {timestamp}.
	FrontPattern    string
	BackPattern     string
	ROIPattern      string
	MetadataPattern string

	// Overwrite replaces existing files instead of appending _N.
	Overwrite bool

	// SaveFailed keeps back captures that could not be decoded under
	// <date>/fallidas for later inspection.
	SaveFailed bool

	// MinFreeMB triggers a low-space warning when preparing a directory.
	MinFreeMB float64

	// AppVersion is recorded in the metadata file.
	AppVersion string
}

// DefaultConfig returns the station defaults.
func DefaultConfig() Config {
	return Config{
		BaseDir:         "boletos",
		Format:          "jpg",
		JPEGQuality:     95,
		FrontPattern:    "frente_{codigo}_{timestamp}",
		BackPattern:     "reverso_{codigo}_{timestamp}",
		ROIPattern:      "roi_{codigo}_{timestamp}",
		MetadataPattern: "metadata_{codigo}_{timestamp}",
		SaveFailed:      true,
		MinFreeMB:       100,
		AppVersion:      "dev",
	}
}

// Validate checks the configuration and normalizes the image format.
func (c *Config) Validate() error {
	if c.BaseDir == "" {
		return fmt.Errorf("storage: base dir is required")
	}
	c.Format = strings.ToLower(c.Format)
	switch c.Format {
	case "jpg", "jpeg":
		c.Format = "jpg"
		if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
			return fmt.Errorf("storage: jpeg quality must be in [1, 100], got %d", c.JPEGQuality)
		}
	case "png":
	default:
		return fmt.Errorf("storage: unsupported image format %q (must be jpg or png)", c.Format)
	}
	for kind, p := range map[string]string{
		KindFront: c.FrontPattern, KindBack: c.BackPattern,
		KindROI: c.ROIPattern, KindMetadata: c.MetadataPattern,
	} {
		if p == "" {
			return fmt.Errorf("storage: %s name pattern is required", kind)
		}
	}
	return nil
}

// Bundle is one finished ticket, as handed over by the orchestrator.
type Bundle struct {
	Front *framesupplier.Frame
	Back  *framesupplier.Frame
	ROI   *framesupplier.Frame // optional
	Code  string

	CapturedAt time.Time

	// Detection details, recorded in metadata when present.
	Strategy   string
	Confidence float64
	Variant    string
}

// Receipt describes what Save wrote. Paths are relative to BaseDir.
type Receipt struct {
	CaptureID string    `json:"capture_id"`
	Code      string    `json:"code"`
	Dir       string    `json:"dir"`
	Front     string    `json:"front,omitempty"`
	Back      string    `json:"back,omitempty"`
	ROI       string    `json:"roi,omitempty"`
	Metadata  string    `json:"metadata"`
	Bytes     int64     `json:"bytes"`
	SavedAt   time.Time `json:"saved_at"`
}

// Metadata is the JSON document written next to the images.
type Metadata struct {
	CaptureID  string            `json:"capture_id"`
	Code       string            `json:"code"`
	CapturedAt time.Time         `json:"captured_at"`
	SavedAt    time.Time         `json:"saved_at"`
	Resolution string            `json:"resolution"`
	Images     map[string]string `json:"images"`
	Strategy   string            `json:"strategy,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
	Variant    string            `json:"decode_variant,omitempty"`
	Directory  string            `json:"directory"`
	Hostname   string            `json:"hostname,omitempty"`
	AppVersion string            `json:"app_version"`
	Notes      string            `json:"notes"`
}

// Stats are running storage counters.
type Stats struct {
	TicketsSaved uint64
	FilesSaved   uint64
	BytesSaved   uint64
	FailedSaved  uint64
	Errors       uint64
	CurrentDir   string
	BytesPerFile float64
	DirsRemoved  uint64
}
