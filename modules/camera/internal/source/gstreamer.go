package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/orion-ticket-capture/modules/framesupplier"
)

// GStreamer reads a V4L2 device through a GStreamer pipeline:
//
//	v4l2src → videoconvert → videoscale → videorate → capsfilter(BGR) → appsink
//
// The appsink keeps only the newest buffer; Read waits briefly for the next
// sample and reports ErrNoFrame when none arrives in time.
type GStreamer struct {
	pipeline *gst.Pipeline
	sink     *app.Sink
	width    int
	height   int
	wait     time.Duration

	latest chan *framesupplier.Frame // capacity 1, newest wins

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	failed    atomic.Pointer[error]
	closeOnce sync.Once

	samples uint64 // atomic
	dropped uint64 // atomic
}

// OpenGStreamer builds the pipeline, brings it to PLAYING and starts the
// bus monitor. A pipeline error during start-up fails the open.
func OpenGStreamer(cfg DeviceConfig) (*GStreamer, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, fmt.Errorf("failed to create v4l2src: %w", err)
	}
	src.SetProperty("device", fmt.Sprintf("/dev/video%d", cfg.DeviceID))

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	converter.SetProperty("n-threads", 0)

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoscale: %w", err)
	}

	videorate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, fmt.Errorf("failed to create videorate: %w", err)
	}
	videorate.SetProperty("drop-only", true)
	videorate.SetProperty("skip-to-first", true)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(buildCaps(cfg.Width, cfg.Height, cfg.FPS)))

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)

	if err := pipeline.AddMany(src, converter, scaler, videorate, capsfilter, sink.Element); err != nil {
		return nil, fmt.Errorf("failed to add pipeline elements: %w", err)
	}
	if err := gst.ElementLinkMany(src, converter, scaler, videorate, capsfilter, sink.Element); err != nil {
		return nil, fmt.Errorf("failed to link pipeline elements: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &GStreamer{
		pipeline: pipeline,
		sink:     sink,
		width:    cfg.Width,
		height:   cfg.Height,
		wait:     readWait(cfg.FPS),
		latest:   make(chan *framesupplier.Frame, 1),
		ctx:      ctx,
		cancel:   cancel,
	}

	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: g.onNewSample,
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		cancel()
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("failed to start pipeline: %w", err)
	}

	if err := g.awaitPlaying(5 * time.Second); err != nil {
		cancel()
		pipeline.SetState(gst.StateNull)
		return nil, err
	}

	g.wg.Add(1)
	go g.monitorBus()

	slog.Info("camera: gstreamer pipeline playing",
		"device_id", cfg.DeviceID,
		"caps", buildCaps(cfg.Width, cfg.Height, cfg.FPS),
	)
	return g, nil
}

func (g *GStreamer) Name() string { return "gstreamer" }

// Resolution is fixed by the capsfilter, so it equals the request.
func (g *GStreamer) Resolution() (int, int) { return g.width, g.height }

func (g *GStreamer) Read() (*framesupplier.Frame, error) {
	if errp := g.failed.Load(); errp != nil {
		return nil, fmt.Errorf("%w: %v", ErrClosed, *errp)
	}

	timer := time.NewTimer(g.wait)
	defer timer.Stop()

	select {
	case f := <-g.latest:
		return f, nil
	case <-g.ctx.Done():
		return nil, ErrClosed
	case <-timer.C:
		return nil, ErrNoFrame
	}
}

func (g *GStreamer) Close() error {
	var err error
	g.closeOnce.Do(func() {
		g.cancel()
		g.wg.Wait()
		if serr := g.pipeline.SetState(gst.StateNull); serr != nil {
			err = fmt.Errorf("failed to set pipeline to NULL: %w", serr)
		}
		slog.Debug("camera: gstreamer pipeline closed",
			"samples", atomic.LoadUint64(&g.samples),
			"dropped", atomic.LoadUint64(&g.dropped),
		)
	})
	return err
}

// onNewSample copies the mapped buffer (GStreamer reuses it) and replaces
// whatever frame is still waiting in the slot.
func (g *GStreamer) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("camera: failed to pull sample from appsink, skipping frame")
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("camera: failed to get buffer from sample, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	pixels, err := packRows(mapInfo.Bytes(), g.width, g.height, 3)
	buffer.Unmap()
	if err != nil {
		slog.Warn("camera: unusable buffer received", "error", err)
		return gst.FlowOK
	}

	atomic.AddUint64(&g.samples, 1)
	frame := &framesupplier.Frame{
		Data:      pixels,
		Width:     g.width,
		Height:    g.height,
		Channels:  3,
		Timestamp: time.Now(),
	}

	for {
		select {
		case g.latest <- frame:
			return gst.FlowOK
		default:
		}
		select {
		case <-g.latest:
			atomic.AddUint64(&g.dropped, 1)
		default:
		}
	}
}

// packRows copies a mapped video buffer into a tightly packed slice.
// GStreamer pads each raw video row to a multiple of four bytes, so
// widths where width*channels is not a multiple of four arrive with a
// stride wider than the row. The stride is derived from the buffer size.
func packRows(data []byte, width, height, channels int) ([]byte, error) {
	row := width * channels
	if row <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid geometry %dx%dx%d", width, height, channels)
	}
	stride := len(data) / height
	if stride < row {
		return nil, fmt.Errorf("short buffer: %d bytes for %d rows of %d", len(data), height, row)
	}
	pixels := make([]byte, row*height)
	if stride == row {
		copy(pixels, data)
		return pixels, nil
	}
	for y := 0; y < height; y++ {
		copy(pixels[y*row:(y+1)*row], data[y*stride:y*stride+row])
	}
	return pixels, nil
}

func (g *GStreamer) awaitPlaying(timeout time.Duration) error {
	bus := g.pipeline.GetPipelineBus()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		msg := bus.TimedPop(100 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			return fmt.Errorf("pipeline error [%s]: %s", ClassifyGStreamerError(gerr), gerr.Error())
		case gst.MessageStateChanged:
			if msg.Source() != g.pipeline.GetName() {
				continue
			}
			if _, newState := msg.ParseStateChanged(); newState == gst.StatePlaying {
				return nil
			}
		}
	}
	return errors.New("pipeline did not reach PLAYING state")
}

// monitorBus marks the source failed on EOS or error so that Read reports
// ErrClosed and the engine's producer loop exits.
func (g *GStreamer) monitorBus() {
	defer g.wg.Done()
	bus := g.pipeline.GetPipelineBus()

	for {
		select {
		case <-g.ctx.Done():
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			err := errors.New("end of stream")
			g.failed.Store(&err)
			slog.Warn("camera: end of stream received", "samples", atomic.LoadUint64(&g.samples))
			return

		case gst.MessageError:
			gerr := msg.ParseError()
			category := ClassifyGStreamerError(gerr)
			err := fmt.Errorf("pipeline error [%s]: %s", category, gerr.Error())
			g.failed.Store(&err)
			slog.Error("camera: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"category", category.String(),
				"samples", atomic.LoadUint64(&g.samples),
			)
			return
		}
	}
}

// buildCaps locks the appsink output to packed BGR at the requested geometry.
// Fractional rates below 1 fps are expressed as 1/N.
func buildCaps(width, height int, fps float64) string {
	num, den := 1, 1
	if fps < 1.0 && fps > 0 {
		den = int(1.0 / fps)
	} else if fps >= 1.0 {
		num = int(fps)
	}
	return fmt.Sprintf("video/x-raw,format=BGR,width=%d,height=%d,framerate=%d/%d", width, height, num, den)
}

// readWait bounds a single Read to two frame intervals (at least 50ms).
func readWait(fps float64) time.Duration {
	if fps <= 0 {
		return 100 * time.Millisecond
	}
	return max(time.Duration(2*float64(time.Second)/fps), 50*time.Millisecond)
}
