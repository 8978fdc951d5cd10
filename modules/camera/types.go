package camera

import (
	"fmt"
	"time"

	"github.com/e7canasta/orion-ticket-capture/internal/synth"
)

// Backend selects how a physical device is read.
type Backend string

const (
	// BackendOpenCV reads the device through OpenCV's VideoCapture (default).
	BackendOpenCV Backend = "opencv"
	// BackendGStreamer reads the device through a v4l2src → appsink pipeline.
	BackendGStreamer Backend = "gstreamer"
)

// Resolution is a frame size in pixels.
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Config is the immutable camera configuration snapshot.
type Config struct {
	// DeviceID is the V4L2 index (/dev/videoN).
	DeviceID int
	// Backend used when Simulation is false.
	Backend Backend
	// Resolution requested from the device (default 1920x1080).
	Resolution Resolution
	// TargetFPS paces the producer loop (default 30).
	TargetFPS float64
	// Brightness and Contrast are applied only when non-zero.
	Brightness float64
	Contrast   float64
	// PreviewMaxDim bounds the preview long edge (default 1280).
	PreviewMaxDim int

	// Simulation replaces the device with a still image.
	Simulation bool
	// SimulationImage is an optional image file; empty synthesizes a ticket.
	SimulationImage string
	// SimulationResolution is the simulated sensor size (default 3840x2160).
	SimulationResolution Resolution
	// SimulationRegion places the synthesized symbol (relative coordinates).
	SimulationRegion synth.Region
	// SimulationPayload is the text of the synthesized symbol.
	SimulationPayload string

	// RetryDelay is the fixed pause between open attempts (default 1s).
	RetryDelay time.Duration
	// WarmupAttempts × WarmupInterval bounds the wait for the first frame.
	WarmupAttempts int
	WarmupInterval time.Duration
	// ReadRetryDelay is the pause after a transient read failure (default 10ms).
	ReadRetryDelay time.Duration
	// JoinTimeout bounds how long Stop waits for the producer (default 1s).
	JoinTimeout time.Duration
	// AcquireAttempts × AcquireInterval bounds AcquireNative.
	AcquireAttempts int
	AcquireInterval time.Duration
}

// DefaultConfig returns the configuration used by a fresh station.
func DefaultConfig() Config {
	return Config{
		DeviceID:             0,
		Backend:              BackendOpenCV,
		Resolution:           Resolution{Width: 1920, Height: 1080},
		TargetFPS:            30,
		PreviewMaxDim:        1280,
		SimulationResolution: Resolution{Width: 3840, Height: 2160},
		SimulationRegion:     synth.Region{X: 0.2, Y: 0.6, W: 0.6, H: 0.15},
		SimulationPayload:    "7501234567890",
		RetryDelay:           1 * time.Second,
		WarmupAttempts:       30,
		WarmupInterval:       100 * time.Millisecond,
		ReadRetryDelay:       10 * time.Millisecond,
		JoinTimeout:          1 * time.Second,
		AcquireAttempts:      20,
		AcquireInterval:      100 * time.Millisecond,
	}
}

// Validate checks the snapshot (fail-fast, before anything is opened).
func (c Config) Validate() error {
	if c.Resolution.Width <= 0 || c.Resolution.Height <= 0 {
		return fmt.Errorf("camera: resolution must be positive, got %s", c.Resolution)
	}
	if c.TargetFPS <= 0 || c.TargetFPS > 120 {
		return fmt.Errorf("camera: target fps must be in (0, 120], got %.2f", c.TargetFPS)
	}
	if c.Brightness < 0 || c.Brightness > 255 {
		return fmt.Errorf("camera: brightness must be in [0, 255], got %.1f", c.Brightness)
	}
	if c.Contrast < 0 || c.Contrast > 255 {
		return fmt.Errorf("camera: contrast must be in [0, 255], got %.1f", c.Contrast)
	}
	if c.PreviewMaxDim < 0 {
		return fmt.Errorf("camera: preview max dim must be >= 0, got %d", c.PreviewMaxDim)
	}
	if c.DeviceID < 0 {
		return fmt.Errorf("camera: device id must be >= 0, got %d", c.DeviceID)
	}
	switch c.Backend {
	case BackendOpenCV, BackendGStreamer:
	default:
		return fmt.Errorf("camera: unknown backend %q", c.Backend)
	}
	if c.Simulation {
		if c.SimulationResolution.Width <= 0 || c.SimulationResolution.Height <= 0 {
			return fmt.Errorf("camera: simulation resolution must be positive, got %s", c.SimulationResolution)
		}
		if c.SimulationImage == "" && c.SimulationPayload == "" {
			return fmt.Errorf("camera: simulation needs an image or a payload")
		}
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("camera: retry delay must be >= 0, got %v", c.RetryDelay)
	}
	if c.WarmupAttempts < 1 || c.WarmupInterval <= 0 {
		return fmt.Errorf("camera: warm-up needs attempts >= 1 and a positive interval, got %d × %v",
			c.WarmupAttempts, c.WarmupInterval)
	}
	if c.AcquireAttempts < 1 || c.AcquireInterval <= 0 {
		return fmt.Errorf("camera: acquire needs attempts >= 1 and a positive interval, got %d × %v",
			c.AcquireAttempts, c.AcquireInterval)
	}
	if c.JoinTimeout <= 0 {
		return fmt.Errorf("camera: join timeout must be positive, got %v", c.JoinTimeout)
	}
	if c.ReadRetryDelay < 0 {
		return fmt.Errorf("camera: read retry delay must be >= 0, got %v", c.ReadRetryDelay)
	}
	return nil
}

// Stats contains current engine statistics.
type Stats struct {
	// Backend is the name of the open source ("opencv", "gstreamer", "simulation").
	Backend string
	// Active is true while the producer loop runs.
	Active bool
	// Resolution is the real native frame size, empty when stopped.
	Resolution string
	// FramesProduced counts frames published since construction.
	FramesProduced uint64
	// ReadErrors counts transient read failures.
	ReadErrors uint64
	// FramesConflated counts frames overwritten before anyone read them.
	FramesConflated uint64
	// ObserverPanics counts recovered observer panics.
	ObserverPanics uint64
	// ObserverPanicRate is ObserverPanics over all observer invocations.
	ObserverPanicRate float64
	// Observers is the number of registered observers.
	Observers int
	// StartAttempts is the number of open attempts made by the last Start.
	StartAttempts int
	// FPS summarizes pacing over the recent frames.
	FPS FPSStats
	// Uptime since the last successful Start.
	Uptime time.Duration
}
