package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/orion-ticket-capture/modules/camera/internal/fps"
	"github.com/e7canasta/orion-ticket-capture/modules/camera/internal/retry"
	"github.com/e7canasta/orion-ticket-capture/modules/camera/internal/source"
	"github.com/e7canasta/orion-ticket-capture/modules/framebus"
	"github.com/e7canasta/orion-ticket-capture/modules/framesupplier"
)

// fpsWindowSize is the number of recent frame timestamps kept for Stats.
const fpsWindowSize = 90

// Source is an opened frame producer (see internal/source).
type Source = source.Source

// SourceFactory opens a Source for the given configuration.
type SourceFactory func(cfg Config) (Source, error)

// Observer receives every preview frame on the producer goroutine.
type Observer = framebus.Observer

// Handle identifies an observer registration.
type Handle = framebus.Handle

// Option customizes an Engine.
type Option func(*Engine)

// WithSourceFactory replaces the device/simulation factory (tests, custom hardware).
func WithSourceFactory(f SourceFactory) Option {
	return func(e *Engine) { e.openSource = f }
}

// WithBuffer injects the frame buffer shared with other consumers.
func WithBuffer(b framesupplier.Buffer) Option {
	return func(e *Engine) { e.buffer = b }
}

// WithObserverBus injects the observer bus.
func WithObserverBus(b framebus.Bus) Option {
	return func(e *Engine) { e.bus = b }
}

// Engine owns one camera source and one producer goroutine.
//
// The producer is the only writer of the frame buffer; readers get copies
// through ReadNative/ReadPreview/AcquireNative, observers get the preview
// synchronously through the bus.
type Engine struct {
	cfg        Config
	buffer     framesupplier.Buffer
	bus        framebus.Bus
	openSource SourceFactory

	// Lifecycle (guarded by mu)
	mu     sync.Mutex
	src    Source
	cancel context.CancelFunc
	done   chan struct{}

	resMu      sync.RWMutex
	resolution *Resolution // nil when no device is open

	active        atomic.Bool
	lost          atomic.Bool   // the producer stopped because the source closed
	generation    atomic.Uint64 // bumped by halt; a leaked loop must not touch a newer run
	startedAt     atomic.Int64  // unix nanos
	startAttempts atomic.Int64
	backend       atomic.Value // string

	framesProduced uint64 // atomic
	readErrors     uint64 // atomic

	window *fps.Window
}

// NewEngine validates cfg and builds a stopped engine.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		openSource: OpenSource,
		window:     fps.NewWindow(fpsWindowSize),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.buffer == nil {
		e.buffer = framesupplier.New(framesupplier.Config{PreviewMaxDim: cfg.PreviewMaxDim})
	}
	if e.bus == nil {
		e.bus = framebus.New()
	}
	e.backend.Store("")
	return e, nil
}

// OpenSource is the default SourceFactory: simulation when enabled,
// otherwise the configured device backend.
func OpenSource(cfg Config) (Source, error) {
	if cfg.Simulation {
		src, err := source.OpenSimulated(source.SimConfig{
			ImagePath: cfg.SimulationImage,
			Width:     cfg.SimulationResolution.Width,
			Height:    cfg.SimulationResolution.Height,
			Region:    cfg.SimulationRegion,
			Payload:   cfg.SimulationPayload,
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	}

	dev := source.DeviceConfig{
		DeviceID:   cfg.DeviceID,
		Width:      cfg.Resolution.Width,
		Height:     cfg.Resolution.Height,
		FPS:        cfg.TargetFPS,
		Brightness: cfg.Brightness,
		Contrast:   cfg.Contrast,
	}
	if cfg.Backend == BackendGStreamer {
		src, err := source.OpenGStreamer(dev)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	src, err := source.OpenDevice(dev)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// Start opens the source, launches the producer and waits for the first
// frame. The whole sequence is retried up to maxAttempts times with a fixed
// RetryDelay between attempts.
//
// Returns an error wrapping ErrDeviceUnavailable when every attempt failed,
// ErrAlreadyStarted when running, or the context error when cancelled.
func (e *Engine) Start(ctx context.Context, maxAttempts int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.src != nil {
		return ErrAlreadyStarted
	}

	state := &retry.State{}
	err := retry.Run(ctx, func(ctx context.Context, attempt int) error {
		return e.startOnce(ctx, attempt)
	}, retry.Config{MaxAttempts: maxAttempts, Delay: e.cfg.RetryDelay}, state)
	e.startAttempts.Store(int64(state.Attempts))

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return fmt.Errorf("camera: start cancelled: %w", err)
		}
		slog.Error("camera: device unavailable",
			"device_id", e.cfg.DeviceID,
			"simulation", e.cfg.Simulation,
			"attempts", state.Attempts,
			"error", state.LastError,
		)
		return fmt.Errorf("%w after %d attempts: %w", ErrDeviceUnavailable, state.Attempts, state.LastError)
	}

	res, _ := e.Resolution()
	slog.Info("camera: started",
		"backend", e.backend.Load(),
		"resolution", res.String(),
		"preview_max_dim", e.buffer.PreviewMaxDim(),
		"target_fps", e.cfg.TargetFPS,
		"attempts", state.Attempts,
	)
	return nil
}

// startOnce runs one open → launch → warm-up sequence. On failure every
// resource it acquired is released again. Caller holds e.mu.
func (e *Engine) startOnce(ctx context.Context, attempt int) error {
	src, err := e.openSource(e.cfg)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}

	w, h := src.Resolution()
	e.setResolution(&Resolution{Width: w, Height: h})
	pw, ph := framesupplier.PreviewSize(w, h, e.buffer.PreviewMaxDim())
	slog.Debug("camera: source opened",
		"backend", src.Name(),
		"attempt", attempt,
		"resolution", fmt.Sprintf("%dx%d", w, h),
		"preview", fmt.Sprintf("%dx%d", pw, ph),
	)

	loopCtx, cancel := context.WithCancel(context.Background())
	e.src = src
	e.cancel = cancel
	e.done = make(chan struct{})
	e.backend.Store(src.Name())
	e.window.Reset()
	e.lost.Store(false)
	e.active.Store(true)

	baseline := atomic.LoadUint64(&e.framesProduced)
	go e.produce(loopCtx, src, e.done, e.generation.Load())

	for i := 0; i < e.cfg.WarmupAttempts; i++ {
		if atomic.LoadUint64(&e.framesProduced) > baseline {
			e.startedAt.Store(time.Now().UnixNano())
			return nil
		}
		if !e.active.Load() {
			break
		}
		if !sleepCtx(ctx, e.cfg.WarmupInterval) {
			e.halt()
			return ctx.Err()
		}
	}
	if atomic.LoadUint64(&e.framesProduced) > baseline {
		e.startedAt.Store(time.Now().UnixNano())
		return nil
	}

	e.halt()
	return fmt.Errorf("no frame within warm-up (%d × %v)", e.cfg.WarmupAttempts, e.cfg.WarmupInterval)
}

// produce is the producer loop: read, publish, fan out, pace.
func (e *Engine) produce(ctx context.Context, src Source, done chan struct{}, gen uint64) {
	defer close(done)
	defer func() {
		if e.generation.Load() != gen {
			return
		}
		e.active.Store(false)
		if ctx.Err() == nil {
			// Nobody asked us to stop: the device is gone. Frames from
			// before the loss must not be served as current.
			e.lost.Store(true)
			e.buffer.Clear()
		}
	}()

	interval := time.Duration(float64(time.Second) / e.cfg.TargetFPS)
	slog.Debug("camera: producer loop started", "backend", src.Name(), "interval", interval)

	for {
		if ctx.Err() != nil {
			slog.Debug("camera: producer loop stopping, context cancelled")
			return
		}
		started := time.Now()

		frame, err := src.Read()
		if err != nil {
			if errors.Is(err, source.ErrClosed) {
				if ctx.Err() == nil {
					slog.Warn("camera: source no longer readable, producer stopping",
						"backend", src.Name(),
						"error", err,
					)
				}
				return
			}
			atomic.AddUint64(&e.readErrors, 1)
			slog.Debug("camera: read failed, retrying", "error", err)
			if !sleepCtx(ctx, e.cfg.ReadRetryDelay) {
				return
			}
			continue
		}
		if ctx.Err() != nil {
			return
		}

		preview := e.buffer.Publish(frame)
		if preview == nil {
			atomic.AddUint64(&e.readErrors, 1)
			slog.Debug("camera: malformed frame dropped",
				"width", frame.Width,
				"height", frame.Height,
				"channels", frame.Channels,
				"bytes", len(frame.Data),
			)
			continue
		}
		atomic.AddUint64(&e.framesProduced, 1)
		e.window.Add(started)

		e.bus.Publish(preview)

		if residual := interval - time.Since(started); residual > 0 {
			if !sleepCtx(ctx, residual) {
				return
			}
		}
	}
}

// Stop cancels the producer, joins it within JoinTimeout, releases the
// source and clears the frame slots. Safe to call multiple times.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.src == nil {
		return nil
	}
	backend := e.src.Name()
	e.halt()
	slog.Info("camera: stopped",
		"backend", backend,
		"frames_produced", atomic.LoadUint64(&e.framesProduced),
	)
	return nil
}

// Close stops the engine and closes the observer bus. The engine cannot
// be restarted afterwards.
func (e *Engine) Close() error {
	err := e.Stop()
	e.bus.Close()
	return err
}

// halt tears down whatever startOnce set up. Caller holds e.mu.
func (e *Engine) halt() {
	if e.cancel != nil {
		e.cancel()
	}

	src, done := e.src, e.done
	joined := true
	if done != nil {
		select {
		case <-done:
		case <-time.After(e.cfg.JoinTimeout):
			joined = false
			slog.Warn("camera: producer did not stop within join timeout, releasing source anyway",
				"join_timeout", e.cfg.JoinTimeout,
			)
		}
	}

	if src != nil {
		if joined {
			if err := src.Close(); err != nil {
				slog.Warn("camera: error releasing source", "error", err)
			}
		} else {
			// The loop may still be inside Read; never block Stop on it.
			go func() {
				if err := src.Close(); err != nil {
					slog.Warn("camera: error releasing leaked source", "error", err)
				}
			}()
		}
	}

	e.generation.Add(1)
	e.src = nil
	e.cancel = nil
	e.done = nil
	e.active.Store(false)
	e.lost.Store(false)
	e.buffer.Clear()
	e.setResolution(nil)
}

// AddObserver registers fn to receive every preview frame. fn runs on the
// producer goroutine and must return quickly; panics are recovered.
func (e *Engine) AddObserver(name string, fn Observer) (Handle, error) {
	return e.bus.Subscribe(name, fn)
}

// RemoveObserver unregisters an observer.
func (e *Engine) RemoveObserver(h Handle) error {
	return e.bus.Unsubscribe(h)
}

// ReadNative returns a copy of the newest full-resolution frame.
func (e *Engine) ReadNative() (*framesupplier.Frame, bool) {
	return e.buffer.ReadNative()
}

// ReadPreview returns a copy of the newest preview frame.
func (e *Engine) ReadPreview() (*framesupplier.Frame, bool) {
	return e.buffer.ReadPreview()
}

// AcquireNative polls for a native frame (AcquireAttempts × AcquireInterval),
// falls back to the preview, and otherwise fails with ErrFrameTimeout.
//
// An engine that is not producing never serves a frame: it fails with
// ErrSourceClosed after the device was lost and ErrNotStarted otherwise.
func (e *Engine) AcquireNative(ctx context.Context) (*framesupplier.Frame, error) {
	if err := e.inactiveErr(); err != nil {
		return nil, err
	}

	for i := 0; i < e.cfg.AcquireAttempts; i++ {
		if err := e.inactiveErr(); err != nil {
			return nil, err
		}
		if f, ok := e.buffer.ReadNative(); ok {
			return f, nil
		}
		if !sleepCtx(ctx, e.cfg.AcquireInterval) {
			return nil, fmt.Errorf("%w: %w", ErrFrameTimeout, ctx.Err())
		}
	}

	if f, ok := e.buffer.ReadPreview(); ok {
		slog.Warn("camera: native frame unavailable, using preview",
			"width", f.Width,
			"height", f.Height,
		)
		return f, nil
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrFrameTimeout, e.cfg.AcquireAttempts)
}

func (e *Engine) inactiveErr() error {
	if e.active.Load() {
		return nil
	}
	if e.lost.Load() {
		return fmt.Errorf("%w: producer stopped", ErrSourceClosed)
	}
	return ErrNotStarted
}

// IsActive reports whether the producer loop is running.
func (e *Engine) IsActive() bool {
	return e.active.Load()
}

// Resolution returns the real native resolution while a device is open.
func (e *Engine) Resolution() (Resolution, bool) {
	e.resMu.RLock()
	defer e.resMu.RUnlock()
	if e.resolution == nil {
		return Resolution{}, false
	}
	return *e.resolution, true
}

// PreviewResolution returns the preview size derived from the native resolution.
func (e *Engine) PreviewResolution() (Resolution, bool) {
	res, ok := e.Resolution()
	if !ok {
		return Resolution{}, false
	}
	w, h := framesupplier.PreviewSize(res.Width, res.Height, e.buffer.PreviewMaxDim())
	return Resolution{Width: w, Height: h}, true
}

func (e *Engine) setResolution(r *Resolution) {
	e.resMu.Lock()
	e.resolution = r
	e.resMu.Unlock()
}

// Stats returns current engine statistics (thread-safe snapshot).
func (e *Engine) Stats() Stats {
	busStats := e.bus.Stats()
	bufStats := e.buffer.Stats()

	s := Stats{
		Backend:           e.backend.Load().(string),
		Active:            e.IsActive(),
		FramesProduced:    atomic.LoadUint64(&e.framesProduced),
		ReadErrors:        atomic.LoadUint64(&e.readErrors),
		FramesConflated:   bufStats.Overwritten,
		ObserverPanics:    busStats.TotalPanics,
		ObserverPanicRate: framebus.PanicRate(busStats),
		Observers:         len(busStats.Subscribers),
		StartAttempts:     int(e.startAttempts.Load()),
		FPS:               fromInternal(e.window.Stats()),
	}
	if res, ok := e.Resolution(); ok {
		s.Resolution = res.String()
	}
	if s.Active {
		s.Uptime = time.Since(time.Unix(0, e.startedAt.Load()))
	}
	return s
}

// sleepCtx sleeps for d unless ctx is done first. Reports whether the
// full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
