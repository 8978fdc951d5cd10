package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-ticket-capture/modules/camera"
	"github.com/e7canasta/orion-ticket-capture/modules/decoder"
	"github.com/e7canasta/orion-ticket-capture/modules/detector"
	"github.com/e7canasta/orion-ticket-capture/modules/framesupplier"
	"github.com/e7canasta/orion-ticket-capture/modules/storage"
)

func testFrame(w, h int) *framesupplier.Frame {
	return &framesupplier.Frame{Data: make([]byte, w*h*3), Width: w, Height: h, Channels: 3}
}

type fakeCamera struct {
	mu      sync.Mutex
	err     error
	preview *framesupplier.Frame
	calls   int
}

func (c *fakeCamera) AcquireNative(ctx context.Context) (*framesupplier.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return testFrame(400, 300), nil
}

func (c *fakeCamera) ReadPreview() (*framesupplier.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.preview == nil {
		return nil, false
	}
	return c.preview.Clone(), true
}

type fakeLocator struct {
	miss   bool
	region image.Rectangle
	fast   int
}

func (l *fakeLocator) result(f *framesupplier.Frame) (detector.Result, bool) {
	if l.miss {
		return detector.Result{}, false
	}
	return detector.Result{
		Region:     l.region,
		Original:   l.region,
		Strategy:   detector.StrategyVerticalGradient,
		Confidence: 0.7,
		Crop:       f.Crop(l.region),
	}, true
}

func (l *fakeLocator) DetectFrame(f *framesupplier.Frame) (detector.Result, bool) {
	return l.result(f)
}

func (l *fakeLocator) DetectFrameFast(f *framesupplier.Frame) (detector.Result, bool) {
	l.fast++
	return l.result(f)
}

type fakeReader struct {
	text  string
	calls int
}

func (r *fakeReader) DecodeFrame(f *framesupplier.Frame) (decoder.Code, bool) {
	r.calls++
	if r.text == "" || f == nil {
		return decoder.Code{}, false
	}
	return decoder.Code{Text: r.text, LengthGuardPassed: true, Variant: decoder.VariantCLAHE}, true
}

type fakeStore struct {
	mu      sync.Mutex
	err     error
	saved   []storage.Bundle
	release chan struct{} // when set, Save blocks until closed
	entered chan struct{}
}

func (s *fakeStore) Save(ctx context.Context, b storage.Bundle) (storage.Receipt, error) {
	if s.entered != nil {
		close(s.entered)
	}
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return storage.Receipt{}, s.err
	}
	s.saved = append(s.saved, b)
	return storage.Receipt{CaptureID: fmt.Sprintf("id-%d", len(s.saved)), Code: b.Code}, nil
}

type fakeNotifier struct {
	receipts []storage.Receipt
	err      error
}

func (n *fakeNotifier) TicketSaved(_ context.Context, r storage.Receipt) error {
	n.receipts = append(n.receipts, r)
	return n.err
}

type fakeSink struct{ reasons []string }

func (s *fakeSink) SaveFailed(_ *framesupplier.Frame, reason string) (string, error) {
	s.reasons = append(s.reasons, reason)
	return "fallidas/x.jpg", nil
}

type rig struct {
	cam   *fakeCamera
	loc   *fakeLocator
	rd    *fakeReader
	store *fakeStore
	o     *Orchestrator
}

func newRig(opts ...Option) *rig {
	r := &rig{
		cam:   &fakeCamera{preview: testFrame(128, 96)},
		loc:   &fakeLocator{region: image.Rect(40, 200, 360, 260)},
		rd:    &fakeReader{text: "7501234567890"},
		store: &fakeStore{},
	}
	r.o = New(r.cam, r.loc, r.rd, r.store, opts...)
	return r
}

func TestFullCycle(t *testing.T) {
	notifier := &fakeNotifier{}
	r := newRig(WithNotifier(notifier))
	ctx := context.Background()

	assert.Equal(t, StateReady, r.o.State())
	assert.True(t, r.o.Artifacts().Empty())

	require.NoError(t, r.o.CaptureFront(ctx))
	assert.Equal(t, StateFrontCaptured, r.o.State())
	assert.NotNil(t, r.o.Artifacts().Front)

	require.NoError(t, r.o.CaptureBack(ctx))
	assert.Equal(t, StateBackCaptured, r.o.State())

	a := r.o.Artifacts()
	assert.Equal(t, "7501234567890", a.Code)
	assert.Equal(t, "vertical_gradient", a.Strategy)
	assert.Equal(t, "clahe", a.Variant)
	require.NotNil(t, a.ROI)
	assert.Equal(t, 320, a.ROI.Width)
	assert.False(t, a.CapturedAt.IsZero())

	receipt, err := r.o.Finalize(ctx)
	require.NoError(t, err)
	assert.Equal(t, "id-1", receipt.CaptureID)
	assert.Equal(t, StateReady, r.o.State())
	assert.True(t, r.o.Artifacts().Empty(), "artifacts cleared after save")

	require.Len(t, r.store.saved, 1)
	saved := r.store.saved[0]
	assert.Equal(t, "7501234567890", saved.Code)
	assert.NotNil(t, saved.Front)
	assert.NotNil(t, saved.Back)
	assert.NotNil(t, saved.ROI)

	require.Len(t, notifier.receipts, 1)

	stats := r.o.Stats()
	assert.Equal(t, uint64(1), stats.TicketsProcessed)
	assert.Equal(t, uint64(1), stats.FrontCaptures)
	assert.Equal(t, uint64(1), stats.BackCaptures)
	assert.Equal(t, StateReady, stats.State)
}

func TestInvalidTransitions(t *testing.T) {
	r := newRig()
	ctx := context.Background()

	err := r.o.CaptureBack(ctx)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StateReady, r.o.State())
	assert.True(t, r.o.Artifacts().Empty())
	assert.Zero(t, r.cam.calls, "rejected transition must not touch the camera")

	_, err = r.o.Finalize(ctx)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, r.o.CaptureFront(ctx))
	assert.ErrorIs(t, r.o.CaptureFront(ctx), ErrInvalidTransition)
	assert.Equal(t, StateFrontCaptured, r.o.State())
	assert.Empty(t, r.store.saved)
}

func TestCaptureBack_Misses(t *testing.T) {
	t.Run("no detection", func(t *testing.T) {
		sink := &fakeSink{}
		r := newRig(WithFailureSink(sink))
		r.loc.miss = true
		require.NoError(t, r.o.CaptureFront(context.Background()))

		err := r.o.CaptureBack(context.Background())
		assert.ErrorIs(t, err, ErrNoDetection)
		assert.Equal(t, StateFrontCaptured, r.o.State())
		assert.Nil(t, r.o.Artifacts().Back)
		assert.Equal(t, []string{"no barcode region"}, sink.reasons)
		assert.Equal(t, uint64(1), r.o.Stats().DetectionMisses)
		assert.Contains(t, r.o.Stats().LastError, "no barcode region")
	})

	t.Run("no code", func(t *testing.T) {
		r := newRig()
		r.rd.text = ""
		require.NoError(t, r.o.CaptureFront(context.Background()))

		err := r.o.CaptureBack(context.Background())
		assert.ErrorIs(t, err, ErrNoCode)
		assert.Equal(t, StateFrontCaptured, r.o.State())
		assert.Equal(t, uint64(1), r.o.Stats().DecodeMisses)

		// The caller retries once the ticket is readable.
		r.rd.text = "12345678"
		require.NoError(t, r.o.CaptureBack(context.Background()))
		assert.Equal(t, StateBackCaptured, r.o.State())
	})
}

func TestCameraFailures(t *testing.T) {
	t.Run("timeout keeps state", func(t *testing.T) {
		r := newRig()
		r.cam.err = fmt.Errorf("%w: no frame", camera.ErrFrameTimeout)

		err := r.o.CaptureFront(context.Background())
		assert.ErrorIs(t, err, camera.ErrFrameTimeout)
		assert.Equal(t, StateReady, r.o.State())
		assert.Equal(t, uint64(1), r.o.Stats().CameraErrors)
	})

	t.Run("closed source is unrecoverable", func(t *testing.T) {
		r := newRig()
		r.cam.err = camera.ErrSourceClosed

		err := r.o.CaptureFront(context.Background())
		assert.ErrorIs(t, err, camera.ErrSourceClosed)
		assert.Equal(t, StateError, r.o.State())

		require.NoError(t, r.o.Reset())
		assert.Equal(t, StateReady, r.o.State())
	})

	t.Run("device lost under a running engine", func(t *testing.T) {
		src := &unpluggableSource{w: 400, h: 300}
		cfg := camera.DefaultConfig()
		cfg.TargetFPS = 100
		cfg.PreviewMaxDim = 128
		cfg.WarmupInterval = 5 * time.Millisecond
		cfg.ReadRetryDelay = time.Millisecond
		cfg.JoinTimeout = 200 * time.Millisecond
		cfg.AcquireAttempts = 5
		cfg.AcquireInterval = 5 * time.Millisecond

		cam, err := camera.NewEngine(cfg, camera.WithSourceFactory(func(camera.Config) (camera.Source, error) {
			return src, nil
		}))
		require.NoError(t, err)
		defer cam.Close()
		require.NoError(t, cam.Start(context.Background(), 1))

		loc := &fakeLocator{region: image.Rect(40, 200, 360, 260)}
		rd := &fakeReader{text: "7501234567890"}
		o := New(cam, loc, rd, &fakeStore{})

		require.NoError(t, o.CaptureFront(context.Background()))

		src.unplug()
		require.Eventually(t, func() bool { return !cam.IsActive() }, time.Second, 5*time.Millisecond)

		err = o.CaptureBack(context.Background())
		assert.ErrorIs(t, err, camera.ErrSourceClosed)
		assert.Equal(t, StateError, o.State())
		assert.Nil(t, o.Artifacts().Back, "no frame from before the loss is kept")
		assert.Zero(t, rd.calls)
	})
}

// unpluggableSource delivers frames until unplug is called.
type unpluggableSource struct {
	w, h int
	gone atomic.Bool
}

func (s *unpluggableSource) Name() string           { return "unpluggable" }
func (s *unpluggableSource) Resolution() (int, int) { return s.w, s.h }
func (s *unpluggableSource) Close() error           { s.gone.Store(true); return nil }
func (s *unpluggableSource) unplug()                { s.gone.Store(true) }

func (s *unpluggableSource) Read() (*framesupplier.Frame, error) {
	if s.gone.Load() {
		return nil, camera.ErrSourceClosed
	}
	return testFrame(s.w, s.h), nil
}

func TestFinalize_PersistenceFailure(t *testing.T) {
	r := newRig()
	r.store.err = errors.New("disk full")
	ctx := context.Background()

	require.NoError(t, r.o.CaptureFront(ctx))
	require.NoError(t, r.o.CaptureBack(ctx))

	_, err := r.o.Finalize(ctx)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, StateError, r.o.State())
	assert.Equal(t, "7501234567890", r.o.Artifacts().Code, "artifacts kept for inspection")

	_, err = r.o.Finalize(ctx)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, r.o.Reset())
	assert.Equal(t, StateReady, r.o.State())
	assert.True(t, r.o.Artifacts().Empty())
	assert.Equal(t, uint64(1), r.o.Stats().SaveErrors)
}

func TestReset_RefusedWhileSaving(t *testing.T) {
	r := newRig()
	r.store.release = make(chan struct{})
	r.store.entered = make(chan struct{})
	ctx := context.Background()

	require.NoError(t, r.o.CaptureFront(ctx))
	require.NoError(t, r.o.CaptureBack(ctx))

	done := make(chan error, 1)
	go func() {
		_, err := r.o.Finalize(ctx)
		done <- err
	}()

	select {
	case <-r.store.entered:
	case <-time.After(time.Second):
		t.Fatal("save never started")
	}
	assert.Equal(t, StateSaving, r.o.State())
	assert.ErrorIs(t, r.o.Reset(), ErrSaveInFlight)
	assert.Equal(t, StateSaving, r.o.State())

	close(r.store.release)
	require.NoError(t, <-done)
	assert.Equal(t, StateReady, r.o.State())
}

func TestReset_FromEveryState(t *testing.T) {
	ctx := context.Background()
	steps := []struct {
		name string
		run  func(o *Orchestrator)
	}{
		{"ready", func(*Orchestrator) {}},
		{"front captured", func(o *Orchestrator) { _ = o.CaptureFront(ctx) }},
		{"back captured", func(o *Orchestrator) {
			_ = o.CaptureFront(ctx)
			_ = o.CaptureBack(ctx)
		}},
	}
	for _, tt := range steps {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig()
			tt.run(r.o)
			require.NoError(t, r.o.Reset())
			assert.Equal(t, StateReady, r.o.State())
			assert.True(t, r.o.Artifacts().Empty())
		})
	}
}

func TestAssist(t *testing.T) {
	r := newRig(WithConfig(Config{
		AssistDecodeEvery: 3,
		AssistMinWidth:    30,
		AssistMinHeight:   10,
		DefaultRegion:     RelativeRegion{X: 0.1, Y: 0.75, W: 0.8, H: 0.12},
	}))
	r.loc.region = image.Rect(10, 60, 110, 80)

	_, ok := r.o.Assist()
	assert.False(t, ok, "assist only runs while the front is captured")
	assert.Zero(t, r.loc.fast)

	require.NoError(t, r.o.CaptureFront(context.Background()))

	for i := 1; i <= 2; i++ {
		a, ok := r.o.Assist()
		require.True(t, ok)
		assert.Equal(t, image.Rect(10, 60, 110, 80), a.Region)
		assert.Empty(t, a.Code, "poll %d must not decode", i)
	}
	assert.Zero(t, r.rd.calls)

	a, ok := r.o.Assist()
	require.True(t, ok)
	assert.Equal(t, "7501234567890", a.Code)
	assert.Equal(t, 1, r.rd.calls)
	assert.Empty(t, r.o.Artifacts().Code, "live decode is advisory only")

	region, ok := r.o.OverlayRegion()
	require.True(t, ok)
	assert.Equal(t, image.Rect(10, 60, 110, 80), region)

	stats := r.o.Stats()
	assert.Equal(t, uint64(3), stats.AssistPolls)
	assert.Equal(t, uint64(3), stats.AssistHits)

	t.Run("tiny regions are ignored", func(t *testing.T) {
		r.loc.region = image.Rect(0, 0, 20, 5)
		_, ok := r.o.Assist()
		assert.False(t, ok)
	})
}

func TestWatchAssist_PollsOnlyWhileFrontCaptured(t *testing.T) {
	r := newRig(WithConfig(Config{
		AssistDecodeEvery: 3,
		AssistMinWidth:    30,
		AssistMinHeight:   10,
		DefaultRegion:     RelativeRegion{X: 0.1, Y: 0.75, W: 0.8, H: 0.12},
	}))
	r.loc.region = image.Rect(10, 60, 110, 80)

	ctx, cancel := context.WithCancel(context.Background())
	var (
		hits   atomic.Int32
		mu     sync.Mutex
		codes  []string
		closed = make(chan struct{})
	)
	go func() {
		defer close(closed)
		r.o.WatchAssist(ctx, 2*time.Millisecond, func(a Assist) {
			hits.Add(1)
			mu.Lock()
			codes = append(codes, a.Code)
			mu.Unlock()
		})
	}()

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, r.o.Stats().AssistPolls, "no polling while Ready")

	require.NoError(t, r.o.CaptureFront(ctx))
	require.Eventually(t, func() bool { return hits.Load() >= 4 }, time.Second, 2*time.Millisecond)

	mu.Lock()
	assert.Contains(t, codes, "7501234567890", "every third poll decodes")
	mu.Unlock()

	require.NoError(t, r.o.Reset())
	time.Sleep(10 * time.Millisecond) // a poll in flight may still land
	polls := r.o.Stats().AssistPolls
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, polls, r.o.Stats().AssistPolls, "polling stops once the front is discarded")

	cancel()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("WatchAssist did not return after cancel")
	}
}

func TestOverlayRegion_DefaultsToConfiguredROI(t *testing.T) {
	r := newRig()

	region, ok := r.o.OverlayRegion()
	require.True(t, ok)
	// 128x96 preview, relative (0.1, 0.75, 0.8, 0.12)
	assert.Equal(t, image.Rect(12, 72, 114, 83), region)

	r.cam.preview = nil
	_, ok = r.o.OverlayRegion()
	assert.False(t, ok)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.AssistDecodeEvery = 0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.DefaultRegion = RelativeRegion{X: 0.5, Y: 0.5, W: 0.6, H: 0.1}
	assert.Error(t, bad.Validate())

	o := New(&fakeCamera{}, &fakeLocator{}, &fakeReader{}, &fakeStore{}, WithConfig(bad))
	assert.Equal(t, DefaultConfig(), o.cfg)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "back_captured", StateBackCaptured.String())
	text, err := StateSaving.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "saving", string(text))
	assert.Equal(t, "state(9)", State(9).String())

	var st State
	require.NoError(t, st.UnmarshalText([]byte("front_captured")))
	assert.Equal(t, StateFrontCaptured, st)
	assert.Error(t, st.UnmarshalText([]byte("printing")))
}
