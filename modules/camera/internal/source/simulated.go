package source

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/e7canasta/orion-ticket-capture/internal/synth"
	"github.com/e7canasta/orion-ticket-capture/internal/vision"
	"github.com/e7canasta/orion-ticket-capture/modules/framesupplier"
)

const (
	// noiseEvery selects which frames receive sensor noise.
	noiseEvery = 30
	// noiseSigma is the standard deviation of the added Gaussian noise.
	noiseSigma = 5.0
)

// SimConfig describes the still image served in simulation mode.
type SimConfig struct {
	ImagePath string // optional; overrides the synthesized ticket
	Width     int    // output resolution
	Height    int
	Region    synth.Region // where the synthesized symbol is printed
	Payload   string       // text encoded in the synthesized symbol
}

// Simulated serves the same still frame forever, adding Gaussian noise to
// every 30th frame.
type Simulated struct {
	mu     sync.Mutex
	base   *framesupplier.Frame
	count  uint64
	closed bool
}

// OpenSimulated loads ImagePath (resized to Width×Height) or synthesizes a
// white ticket carrying Payload inside Region.
func OpenSimulated(cfg SimConfig) (*Simulated, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("simulation resolution must be positive, got %dx%d", cfg.Width, cfg.Height)
	}

	var (
		base *framesupplier.Frame
		err  error
	)
	if cfg.ImagePath != "" {
		base, err = loadImage(cfg.ImagePath, cfg.Width, cfg.Height)
	} else {
		base, _, err = synth.Ticket(cfg.Width, cfg.Height, cfg.Region, cfg.Payload)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("camera: simulation source ready",
		"image", cfg.ImagePath,
		"resolution", fmt.Sprintf("%dx%d", base.Width, base.Height),
	)
	return &Simulated{base: base}, nil
}

func (s *Simulated) Name() string { return "simulation" }

func (s *Simulated) Resolution() (int, int) { return s.base.Width, s.base.Height }

func (s *Simulated) Read() (*framesupplier.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	s.count++

	var frame *framesupplier.Frame
	if s.count%noiseEvery == 0 {
		noisy, err := addNoise(s.base, noiseSigma)
		if err != nil {
			slog.Debug("camera: noise injection failed", "error", err)
			frame = s.base.Clone()
		} else {
			frame = noisy
		}
	} else {
		frame = s.base.Clone()
	}
	frame.Timestamp = time.Now()
	return frame, nil
}

func (s *Simulated) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func loadImage(path string, width, height int) (*framesupplier.Frame, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("cannot read simulation image %q", path)
	}

	if img.Cols() != width || img.Rows() != height {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(img, &resized, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)
		return vision.MatToFrame(resized)
	}
	return vision.MatToFrame(img)
}

// addNoise returns frame + N(0, sigma) per channel, saturated to 8 bits.
// frame must be BGR.
func addNoise(frame *framesupplier.Frame, sigma float64) (*framesupplier.Frame, error) {
	src, err := vision.FrameToMat(frame)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	wide := gocv.NewMat()
	defer wide.Close()
	noise := gocv.NewMatWithSize(src.Rows(), src.Cols(), gocv.MatTypeCV16SC3)
	defer noise.Close()
	sum := gocv.NewMat()
	defer sum.Close()
	out := gocv.NewMat()
	defer out.Close()

	src.ConvertTo(&wide, gocv.MatTypeCV16SC3)
	gocv.RandN(&noise, gocv.NewScalar(0, 0, 0, 0), gocv.NewScalar(sigma, sigma, sigma, 0))
	gocv.Add(wide, noise, &sum)
	sum.ConvertTo(&out, gocv.MatTypeCV8UC3)

	return vision.MatToFrame(out)
}
