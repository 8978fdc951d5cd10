// Package source implements the frame sources behind the camera engine:
// a V4L2/UVC device read through OpenCV, the same device read through a
// GStreamer pipeline, and a simulated still-image camera.
package source

import (
	"errors"

	"github.com/e7canasta/orion-ticket-capture/modules/framesupplier"
)

var (
	// ErrNoFrame is a transient read failure; the caller should retry.
	ErrNoFrame = errors.New("source: no frame available")

	// ErrClosed means the source can no longer deliver frames.
	ErrClosed = errors.New("source: closed")
)

// Source is an opened frame producer. Read and Close may be called from
// different goroutines; Read is only ever called by one goroutine.
type Source interface {
	// Name identifies the backend in logs ("opencv", "gstreamer", "simulation").
	Name() string

	// Read returns the next frame. Errors wrap ErrNoFrame (retry) or
	// ErrClosed (stop reading).
	Read() (*framesupplier.Frame, error)

	// Resolution returns the real frame size negotiated with the device.
	Resolution() (width, height int)

	// Close releases the device. Safe to call more than once.
	Close() error
}

// DeviceConfig holds what every device backend needs to open a camera.
type DeviceConfig struct {
	DeviceID   int
	Width      int
	Height     int
	FPS        float64
	Brightness float64 // applied only when non-zero
	Contrast   float64 // applied only when non-zero
}
