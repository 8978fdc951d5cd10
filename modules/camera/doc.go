// Package camera runs the acquisition side of the ticket station: one
// producer goroutine that reads a webcam (or a simulated one) and keeps the
// newest frame available to everyone else.
//
// # Quick Start
//
//	cfg := camera.DefaultConfig()
//	cfg.DeviceID = 0
//
//	cam, err := camera.NewEngine(cfg)
//	if err != nil {
//	    log.Fatal(err) // invalid configuration, nothing was opened
//	}
//	defer cam.Close()
//
//	if err := cam.Start(ctx, 3); err != nil {
//	    // errors.Is(err, camera.ErrDeviceUnavailable)
//	    log.Fatal(err)
//	}
//
//	frame, err := cam.AcquireNative(ctx) // full resolution, for capture
//	preview, ok := cam.ReadPreview()     // downscaled, for display
//
// # Frame Flow
//
//	Source.Read ──► framesupplier.Buffer.Publish ──► framebus.Bus.Publish
//	                 (native + preview slots)         (observers, preview only)
//
// The buffer conflates: a slow reader skips frames, it never queues them.
// Observers run synchronously on the producer goroutine; a panicking observer
// is recovered, counted in Stats().ObserverPanics and does not stop the loop.
//
// # Sources
//
//   - BackendOpenCV: OpenCV VideoCapture on /dev/videoN (default)
//   - BackendGStreamer: v4l2src → videoconvert → videoscale → videorate →
//     capsfilter(BGR) → appsink, newest sample wins
//   - Simulation: a still image (SimulationImage, resized to
//     SimulationResolution) or a synthesized white ticket with a Code 128
//     symbol inside SimulationRegion; Gaussian noise (σ=5) on every 30th frame
//
// Tests and custom hardware plug in through WithSourceFactory.
//
// # Lifecycle
//
// Start runs open → record resolution → launch producer → warm up
// (WarmupAttempts × WarmupInterval for the first frame). Any failure
// releases what was acquired and the whole sequence is retried after a fixed
// RetryDelay, up to maxAttempts. After the last failure Start returns an
// error wrapping ErrDeviceUnavailable and Resolution reports false.
//
// Stop cancels the producer and joins it for at most JoinTimeout. If the
// loop is stuck inside a driver read, the source is released on a separate
// goroutine and Stop returns anyway. Stop clears both frame slots and is
// idempotent; the engine can be started again. Close also closes the
// observer bus.
//
// # Frame Format
//
// Frames carry interleaved BGR bytes (OpenCV order), Width × Height × 3.
// Example (1080p): 1920 × 1080 × 3 = 6,220,800 bytes (~6 MB) per native
// frame; the 1280×720 preview is ~2.6 MB.
//
// # Statistics
//
// Stats() is safe from any goroutine. FPS figures are computed over the
// last 90 frame timestamps with the same stability criteria used for
// warm-up analysis (stddev < 15% of mean, jitter < 20% of the interval).
package camera
