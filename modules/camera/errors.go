package camera

import (
	"errors"

	"github.com/e7canasta/orion-ticket-capture/modules/camera/internal/source"
)

var (
	// ErrDeviceUnavailable is returned by Start when every open attempt failed.
	ErrDeviceUnavailable = errors.New("camera: device unavailable")

	// ErrFrameTimeout is returned by AcquireNative when no frame arrived in time.
	ErrFrameTimeout = errors.New("camera: no frame available")

	// ErrNotStarted is returned by operations that need a running engine.
	ErrNotStarted = errors.New("camera: not started")

	// ErrAlreadyStarted is returned by Start on a running engine.
	ErrAlreadyStarted = errors.New("camera: already started")

	// ErrNoFrame is returned by a Source for a transient read failure.
	ErrNoFrame = source.ErrNoFrame

	// ErrSourceClosed is returned by a Source that can no longer deliver frames.
	ErrSourceClosed = source.ErrClosed
)
