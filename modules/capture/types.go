package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/e7canasta/orion-ticket-capture/modules/decoder"
	"github.com/e7canasta/orion-ticket-capture/modules/detector"
	"github.com/e7canasta/orion-ticket-capture/modules/framesupplier"
	"github.com/e7canasta/orion-ticket-capture/modules/storage"
)

var (
	// ErrInvalidTransition is returned when an operation is not allowed in
	// the current state. The state is left untouched.
	ErrInvalidTransition = errors.New("capture: invalid state transition")

	// ErrNoDetection means the back capture held no recognizable barcode region.
	ErrNoDetection = errors.New("capture: no barcode region detected")

	// ErrNoCode means a region was found but no variant decoded to a valid code.
	ErrNoCode = errors.New("capture: barcode could not be decoded")

	// ErrPersistence wraps a failed save; the orchestrator is in StateError.
	ErrPersistence = errors.New("capture: persistence failed")

	// ErrSaveInFlight is returned by Reset while Finalize is saving.
	ErrSaveInFlight = errors.New("capture: save in progress")
)

// State is the position of the orchestrator in the ticket cycle.
type State int

const (
	StateReady State = iota
	StateFrontCaptured
	StateBackCaptured
	StateSaving
	StateError
)

var stateNames = [...]string{
	StateReady:         "ready",
	StateFrontCaptured: "front_captured",
	StateBackCaptured:  "back_captured",
	StateSaving:        "saving",
	StateError:         "error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText renders the state name in JSON documents.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("capture: unknown state %q", b)
}

// Camera is the frame source the orchestrator pulls from.
type Camera interface {
	AcquireNative(ctx context.Context) (*framesupplier.Frame, error)
	ReadPreview() (*framesupplier.Frame, bool)
}

// Locator finds the barcode region in a frame.
type Locator interface {
	DetectFrame(f *framesupplier.Frame) (detector.Result, bool)
	DetectFrameFast(f *framesupplier.Frame) (detector.Result, bool)
}

// Reader decodes the barcode inside a region crop.
type Reader interface {
	DecodeFrame(f *framesupplier.Frame) (decoder.Code, bool)
}

// Persister stores a finished ticket.
type Persister interface {
	Save(ctx context.Context, b storage.Bundle) (storage.Receipt, error)
}

// Notifier is told about every saved ticket. Failures are logged only.
type Notifier interface {
	TicketSaved(ctx context.Context, r storage.Receipt) error
}

// FailureSink keeps back captures that could not be read.
type FailureSink interface {
	SaveFailed(f *framesupplier.Frame, reason string) (string, error)
}

// RelativeRegion is a rectangle in fractions of the frame size.
type RelativeRegion struct {
	X, Y, W, H float64
}

// Abs scales r to a w×h frame.
func (r RelativeRegion) Abs(w, h int) image.Rectangle {
	x0 := int(r.X * float64(w))
	y0 := int(r.Y * float64(h))
	return image.Rect(x0, y0, x0+int(r.W*float64(w)), y0+int(r.H*float64(h))).
		Intersect(image.Rect(0, 0, w, h))
}

// Config tunes the orchestrator.
type Config struct {
	// AssistDecodeEvery makes every Nth Assist call try a decode.
	AssistDecodeEvery int

	// AssistMinWidth and AssistMinHeight drop tiny live regions (preview pixels).
	AssistMinWidth  int
	AssistMinHeight int

	// DefaultRegion is the overlay used before anything was detected live.
	DefaultRegion RelativeRegion
}

// defaultAssistInterval is the live-assist period when none is given.
const defaultAssistInterval = 100 * time.Millisecond

// DefaultConfig returns the station defaults.
func DefaultConfig() Config {
	return Config{
		AssistDecodeEvery: 20,
		AssistMinWidth:    30,
		AssistMinHeight:   10,
		DefaultRegion:     RelativeRegion{X: 0.1, Y: 0.75, W: 0.8, H: 0.12},
	}
}

// Validate checks the assist throttle and the fallback region.
func (c Config) Validate() error {
	if c.AssistDecodeEvery <= 0 {
		return fmt.Errorf("capture: assist decode interval must be > 0, got %d", c.AssistDecodeEvery)
	}
	r := c.DefaultRegion
	if r.X < 0 || r.Y < 0 || r.W <= 0 || r.H <= 0 || r.X+r.W > 1 || r.Y+r.H > 1 {
		return fmt.Errorf("capture: default region must lie inside the unit square, got %+v", r)
	}
	return nil
}

// Artifacts are the images and data of the ticket in progress.
// Zero-valued fields have not been captured yet.
type Artifacts struct {
	Front *framesupplier.Frame
	Back  *framesupplier.Frame
	ROI   *framesupplier.Frame

	Code       string
	Region     image.Rectangle
	Strategy   string
	Confidence float64
	Variant    string
	CapturedAt time.Time
}

func (a Artifacts) clone() Artifacts {
	a.Front = a.Front.Clone()
	a.Back = a.Back.Clone()
	a.ROI = a.ROI.Clone()
	return a
}

// Empty reports whether nothing has been captured.
func (a Artifacts) Empty() bool {
	return a.Front == nil && a.Back == nil && a.ROI == nil && a.Code == ""
}

// Assist is one live-preview detection.
type Assist struct {
	Region     image.Rectangle // preview coordinates
	Strategy   string
	Confidence float64

	// Code is advisory: it is never promoted into Artifacts.
	Code string
}

// Stats are orchestrator counters for the UI.
type Stats struct {
	State            State         `json:"state"`
	TicketsProcessed uint64        `json:"tickets_processed"`
	FrontCaptures    uint64        `json:"front_captures"`
	BackCaptures     uint64        `json:"back_captures"`
	DetectionMisses  uint64        `json:"detection_misses"`
	DecodeMisses     uint64        `json:"decode_misses"`
	CameraErrors     uint64        `json:"camera_errors"`
	SaveErrors       uint64        `json:"save_errors"`
	AssistPolls      uint64        `json:"assist_polls"`
	AssistHits       uint64        `json:"assist_hits"`
	LastError        string        `json:"last_error,omitempty"`
	Uptime           time.Duration `json:"uptime_ns"`
}
