// Package capture sequences a two-sided ticket capture.
//
// State machine:
//
//	Ready ──CaptureFront──► FrontCaptured ──CaptureBack──► BackCaptured
//	  ▲                                                         │
//	  │                                                      Finalize
//	  │                                                         ▼
//	  └────────────────── save ok ◄─────────────────────────  Saving
//	                                                            │ save failed
//	                                                            ▼
//	                                                          Error
//
// Reset returns FrontCaptured, BackCaptured and Error to Ready, discarding
// the artifacts; it is refused while Saving. A failed capture (camera
// timeout, no region, no code) leaves the state unchanged and returns an
// error the caller can show and retry.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/orion-ticket-capture/modules/camera"
	"github.com/e7canasta/orion-ticket-capture/modules/framesupplier"
	"github.com/e7canasta/orion-ticket-capture/modules/storage"
)

// Orchestrator drives one capture station. Safe for concurrent use: the UI
// may poll State, Assist and OverlayRegion while a capture is running.
type Orchestrator struct {
	cam   Camera
	det   Locator
	dec   Reader
	store Persister

	notifier Notifier
	failures FailureSink
	cfg      Config

	// op serializes CaptureFront, CaptureBack and Finalize.
	op sync.Mutex

	mu         sync.Mutex
	state      State
	artifacts  Artifacts
	generation uint64 // bumped by Reset; a capture started before it is discarded
	live       image.Rectangle
	advisory   string
	lastErr    error

	startedAt       time.Time
	processed       atomic.Uint64
	fronts          atomic.Uint64
	backs           atomic.Uint64
	detectionMisses atomic.Uint64
	decodeMisses    atomic.Uint64
	cameraErrors    atomic.Uint64
	saveErrors      atomic.Uint64
	assistPolls     atomic.Uint64
	assistHits      atomic.Uint64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithNotifier announces saved tickets.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithFailureSink keeps undecodable back captures.
func WithFailureSink(s FailureSink) Option {
	return func(o *Orchestrator) { o.failures = s }
}

// WithConfig replaces DefaultConfig. An invalid config is ignored with a warning.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) {
		if err := cfg.Validate(); err != nil {
			slog.Warn("capture: invalid config, using defaults", "error", err)
			return
		}
		o.cfg = cfg
	}
}

// New wires the orchestrator. It starts in StateReady.
func New(cam Camera, det Locator, dec Reader, store Persister, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cam:       cam,
		det:       det,
		dec:       dec,
		store:     store,
		cfg:       DefaultConfig(),
		state:     StateReady,
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(o)
	}
	slog.Info("capture: orchestrator ready",
		"assist_decode_every", o.cfg.AssistDecodeEvery,
		"notifier", o.notifier != nil,
		"failure_sink", o.failures != nil,
	)
	return o
}

// begin checks that the state is want and returns the current generation.
func (o *Orchestrator) begin(op string, want State) (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != want {
		return 0, fmt.Errorf("%w: %s requires %s, state is %s", ErrInvalidTransition, op, want, o.state)
	}
	return o.generation, nil
}

// acquire pulls a native frame. Timeouts leave the state alone; any other
// camera failure is unrecoverable and moves the orchestrator to StateError.
func (o *Orchestrator) acquire(ctx context.Context, op string) (*framesupplier.Frame, error) {
	f, err := o.cam.AcquireNative(ctx)
	if err == nil {
		return f, nil
	}
	o.cameraErrors.Add(1)
	wrapped := fmt.Errorf("capture: %s: %w", op, err)

	o.mu.Lock()
	o.lastErr = wrapped
	if !errors.Is(err, camera.ErrFrameTimeout) && ctx.Err() == nil {
		o.state = StateError
	}
	state := o.state
	o.mu.Unlock()

	slog.Warn("capture: camera failure", "op", op, "state", state.String(), "error", err)
	return nil, wrapped
}

// CaptureFront stores the current native frame as the front side.
func (o *Orchestrator) CaptureFront(ctx context.Context) error {
	o.op.Lock()
	defer o.op.Unlock()

	gen, err := o.begin("capture front", StateReady)
	if err != nil {
		return err
	}

	slog.Info("capture: capturing front")
	f, err := o.acquire(ctx, "capture front")
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.generation != gen || o.state != StateReady {
		return fmt.Errorf("%w: reset during front capture", ErrInvalidTransition)
	}
	o.artifacts = Artifacts{Front: f}
	o.state = StateFrontCaptured
	o.fronts.Add(1)

	slog.Info("capture: front captured", "resolution", fmt.Sprintf("%dx%d", f.Width, f.Height))
	return nil
}

// CaptureBack stores the back side once its barcode has been located and
// decoded. On a miss the state stays FrontCaptured.
func (o *Orchestrator) CaptureBack(ctx context.Context) error {
	o.op.Lock()
	defer o.op.Unlock()

	gen, err := o.begin("capture back", StateFrontCaptured)
	if err != nil {
		return err
	}

	slog.Info("capture: capturing back")
	f, err := o.acquire(ctx, "capture back")
	if err != nil {
		return err
	}

	res, ok := o.det.DetectFrame(f)
	if !ok {
		o.detectionMisses.Add(1)
		o.keepFailure(f, "no barcode region")
		return o.miss(fmt.Errorf("%w in %dx%d frame", ErrNoDetection, f.Width, f.Height))
	}
	code, ok := o.dec.DecodeFrame(res.Crop)
	if !ok {
		o.decodeMisses.Add(1)
		o.keepFailure(f, "decode failed "+res.Strategy.String())
		return o.miss(fmt.Errorf("%w (region %v by %s)", ErrNoCode, res.Region, res.Strategy))
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.generation != gen || o.state != StateFrontCaptured {
		return fmt.Errorf("%w: reset during back capture", ErrInvalidTransition)
	}
	o.artifacts.Back = f
	o.artifacts.ROI = res.Crop
	o.artifacts.Code = code.Text
	o.artifacts.Region = res.Region
	o.artifacts.Strategy = res.Strategy.String()
	o.artifacts.Confidence = res.Confidence
	o.artifacts.Variant = code.Variant.String()
	o.artifacts.CapturedAt = time.Now()
	o.state = StateBackCaptured
	o.lastErr = nil
	o.backs.Add(1)

	slog.Info("capture: back captured",
		"code", code.Text,
		"strategy", res.Strategy.String(),
		"confidence", res.Confidence,
		"variant", code.Variant.String(),
	)
	return nil
}

func (o *Orchestrator) miss(err error) error {
	o.mu.Lock()
	o.lastErr = err
	o.mu.Unlock()
	slog.Warn("capture: back capture rejected", "error", err)
	return err
}

func (o *Orchestrator) keepFailure(f *framesupplier.Frame, reason string) {
	if o.failures == nil {
		return
	}
	if _, err := o.failures.SaveFailed(f, reason); err != nil {
		slog.Debug("capture: failed frame not kept", "error", err)
	}
}

// Assist runs the fast detector on the current preview frame. It only
// works while FrontCaptured; every AssistDecodeEvery-th call also tries to
// decode the region. The result is advisory.
func (o *Orchestrator) Assist() (Assist, bool) {
	if o.State() != StateFrontCaptured {
		return Assist{}, false
	}
	preview, ok := o.cam.ReadPreview()
	if !ok {
		return Assist{}, false
	}

	n := o.assistPolls.Add(1)
	res, ok := o.det.DetectFrameFast(preview)
	if !ok || res.Region.Dx() < o.cfg.AssistMinWidth || res.Region.Dy() < o.cfg.AssistMinHeight {
		return Assist{}, false
	}
	o.assistHits.Add(1)

	a := Assist{
		Region:     res.Region,
		Strategy:   res.Strategy.String(),
		Confidence: res.Confidence,
	}
	if n%uint64(o.cfg.AssistDecodeEvery) == 0 && res.Crop != nil {
		if code, ok := o.dec.DecodeFrame(res.Crop); ok {
			a.Code = code.Text
			slog.Debug("capture: live decode", "code", code.Text)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateFrontCaptured {
		return Assist{}, false
	}
	o.live = a.Region
	if a.Code != "" {
		o.advisory = a.Code
	} else {
		a.Code = o.advisory
	}
	return a, true
}

// WatchAssist calls Assist every interval until ctx is done and hands each
// hit to fn. Outside FrontCaptured the ticks are no-ops, so one watcher can
// run for the whole session.
func (o *Orchestrator) WatchAssist(ctx context.Context, every time.Duration, fn func(Assist)) {
	if every <= 0 {
		every = defaultAssistInterval
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if a, ok := o.Assist(); ok && fn != nil {
			fn(a)
		}
	}
}

// OverlayRegion returns the region to draw on the preview: the last live
// detection, else DefaultRegion scaled to the preview frame.
func (o *Orchestrator) OverlayRegion() (image.Rectangle, bool) {
	o.mu.Lock()
	live := o.live
	o.mu.Unlock()
	if !live.Empty() {
		return live, true
	}

	preview, ok := o.cam.ReadPreview()
	if !ok {
		return image.Rectangle{}, false
	}
	r := o.cfg.DefaultRegion.Abs(preview.Width, preview.Height)
	return r, !r.Empty()
}

// Finalize persists the ticket. The orchestrator is Saving while the
// Persister runs, then Ready on success or Error on failure.
func (o *Orchestrator) Finalize(ctx context.Context) (storage.Receipt, error) {
	o.op.Lock()
	defer o.op.Unlock()

	o.mu.Lock()
	if o.state != StateBackCaptured {
		state := o.state
		o.mu.Unlock()
		return storage.Receipt{}, fmt.Errorf("%w: finalize requires %s, state is %s",
			ErrInvalidTransition, StateBackCaptured, state)
	}
	o.state = StateSaving
	a := o.artifacts
	o.mu.Unlock()

	slog.Info("capture: saving ticket", "code", a.Code)
	receipt, err := o.store.Save(ctx, storage.Bundle{
		Front:      a.Front,
		Back:       a.Back,
		ROI:        a.ROI,
		Code:       a.Code,
		CapturedAt: a.CapturedAt,
		Strategy:   a.Strategy,
		Confidence: a.Confidence,
		Variant:    a.Variant,
	})

	o.mu.Lock()
	if err != nil {
		o.state = StateError
		o.lastErr = fmt.Errorf("%w: %w", ErrPersistence, err)
		wrapped := o.lastErr
		o.mu.Unlock()
		o.saveErrors.Add(1)
		slog.Error("capture: save failed, reset required", "code", a.Code, "error", err)
		return storage.Receipt{}, wrapped
	}
	o.clear()
	o.mu.Unlock()
	o.processed.Add(1)

	slog.Info("capture: ticket saved", "code", receipt.Code, "capture_id", receipt.CaptureID)
	if o.notifier != nil {
		if err := o.notifier.TicketSaved(ctx, receipt); err != nil {
			slog.Warn("capture: notification failed", "code", receipt.Code, "error", err)
		}
	}
	return receipt, nil
}

// Reset discards the ticket in progress. Refused while Saving.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateSaving {
		return ErrSaveInFlight
	}
	prev := o.state
	o.clear()
	slog.Info("capture: reset", "from", prev.String())
	return nil
}

// clear returns to Ready. Caller holds mu.
func (o *Orchestrator) clear() {
	o.state = StateReady
	o.artifacts = Artifacts{}
	o.generation++
	o.live = image.Rectangle{}
	o.advisory = ""
	o.lastErr = nil
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Artifacts returns a deep copy of the ticket in progress.
func (o *Orchestrator) Artifacts() Artifacts {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.artifacts.clone()
}

// Stats returns the counters and the current state.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	state := o.state
	lastErr := o.lastErr
	o.mu.Unlock()

	s := Stats{
		State:            state,
		TicketsProcessed: o.processed.Load(),
		FrontCaptures:    o.fronts.Load(),
		BackCaptures:     o.backs.Load(),
		DetectionMisses:  o.detectionMisses.Load(),
		DecodeMisses:     o.decodeMisses.Load(),
		CameraErrors:     o.cameraErrors.Load(),
		SaveErrors:       o.saveErrors.Load(),
		AssistPolls:      o.assistPolls.Load(),
		AssistHits:       o.assistHits.Load(),
		Uptime:           time.Since(o.startedAt),
	}
	if lastErr != nil {
		s.LastError = lastErr.Error()
	}
	return s
}
