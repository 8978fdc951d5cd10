package source

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/e7canasta/orion-ticket-capture/internal/vision"
	"github.com/e7canasta/orion-ticket-capture/modules/framesupplier"
)

// Device reads a local camera through OpenCV's VideoCapture.
type Device struct {
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	width  int
	height int
	closed bool
}

// OpenDevice opens the camera, requests the target geometry and reads back
// what the driver actually granted.
func OpenDevice(cfg DeviceConfig) (*Device, error) {
	vc, err := gocv.OpenVideoCapture(cfg.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("open device %d: %w", cfg.DeviceID, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open device %d: not opened", cfg.DeviceID)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, cfg.FPS)
	if cfg.Brightness != 0 {
		vc.Set(gocv.VideoCaptureBrightness, cfg.Brightness)
	}
	if cfg.Contrast != 0 {
		vc.Set(gocv.VideoCaptureContrast, cfg.Contrast)
	}

	d := &Device{
		vc:     vc,
		mat:    gocv.NewMat(),
		width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
		height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
	}
	if d.width <= 0 || d.height <= 0 {
		d.width, d.height = cfg.Width, cfg.Height
	}

	if d.width != cfg.Width || d.height != cfg.Height {
		slog.Warn("camera: device granted a different resolution",
			"device_id", cfg.DeviceID,
			"requested", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
			"actual", fmt.Sprintf("%dx%d", d.width, d.height),
		)
	}
	return d, nil
}

func (d *Device) Name() string { return "opencv" }

func (d *Device) Resolution() (int, int) { return d.width, d.height }

func (d *Device) Read() (*framesupplier.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}
	if !d.vc.Read(&d.mat) || d.mat.Empty() {
		if !d.vc.IsOpened() {
			return nil, fmt.Errorf("device disconnected: %w", ErrClosed)
		}
		return nil, ErrNoFrame
	}

	frame, err := vision.MatToFrame(d.mat)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoFrame, err)
	}
	frame.Timestamp = time.Now()
	return frame, nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.mat.Close()
	return d.vc.Close()
}
